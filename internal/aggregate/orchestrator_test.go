package aggregate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/freetime/internal/interval"
	"github.com/teemow/freetime/internal/period"
	"github.com/teemow/freetime/internal/prefs"
	"github.com/teemow/freetime/internal/provider"
)

var cet = time.FixedZone("CET", 3600)

func at(day, hour, minute int) time.Time {
	return time.Date(2024, 3, day, hour, minute, 0, 0, cet)
}

type fakeAdapter struct {
	src        provider.Source
	busy       []provider.BusyBlock
	details    []provider.EventDetail
	busyErr    error
	detailsErr error
	// block makes FetchBusy wait until the context ends.
	block      atomic.Bool
	busyCalls  atomic.Int32
	detailCall atomic.Int32
}

func (f *fakeAdapter) Source() provider.Source { return f.src }

func (f *fakeAdapter) FetchBusy(ctx context.Context, _ period.Period) ([]provider.BusyBlock, error) {
	blocking := f.block.Load()
	f.busyCalls.Add(1)
	if blocking {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.busy, f.busyErr
}

func (f *fakeAdapter) FetchDetails(context.Context, period.Period) ([]provider.EventDetail, error) {
	f.detailCall.Add(1)
	return f.details, f.detailsErr
}

func busyBlock(src provider.Source, start, end time.Time) provider.BusyBlock {
	return provider.BusyBlock{Interval: interval.New(start, end), Source: src}
}

func dayRequest(details bool) Request {
	return Request{
		Date:        at(5, 12, 0),
		Granularity: period.Day,
		Details:     details,
		MinGap:      30 * time.Minute,
		WorkHours:   prefs.UniformWorkHours(9, 17),
	}
}

func TestRefresh_MergesBothProviders(t *testing.T) {
	ms := &fakeAdapter{src: provider.Microsoft, busy: []provider.BusyBlock{busyBlock(provider.Microsoft, at(5, 10, 0), at(5, 11, 0))}}
	g := &fakeAdapter{src: provider.Google, busy: []provider.BusyBlock{busyBlock(provider.Google, at(5, 11, 0), at(5, 12, 0))}}
	o := New([]provider.Adapter{ms, g}, WithLocation(cet))

	snap, err := o.Refresh(context.Background(), dayRequest(false))
	require.NoError(t, err)

	assert.Len(t, snap.Busy, 2)
	assert.Equal(t, []string{"2024-03-05"}, snap.Days)
	assert.Equal(t, []interval.Interval{
		interval.New(at(5, 9, 0), at(5, 10, 0)),
		interval.New(at(5, 12, 0), at(5, 17, 0)),
	}, snap.Free["2024-03-05"], "touching blocks from both providers merge")
	assert.Nil(t, snap.Details)
	assert.Zero(t, ms.detailCall.Load(), "details are only fetched in details mode")
	assert.Same(t, snap, o.Current())
	assert.Equal(t, uint64(1), snap.Generation)
}

func TestRefresh_FetchFailureFailsWholeRefresh(t *testing.T) {
	fetchErr := &provider.FetchError{Source: provider.Google, Status: 500}
	ms := &fakeAdapter{src: provider.Microsoft, busy: []provider.BusyBlock{busyBlock(provider.Microsoft, at(5, 10, 0), at(5, 11, 0))}}
	g := &fakeAdapter{src: provider.Google, busyErr: fetchErr}
	o := New([]provider.Adapter{ms, g}, WithLocation(cet))

	snap, err := o.Refresh(context.Background(), dayRequest(false))
	assert.Nil(t, snap, "no partial busy data")
	assert.ErrorIs(t, err, fetchErr)
	assert.EqualError(t, err, "google fetch failed (status 500)")
	assert.Nil(t, o.Current())
}

func TestRefresh_AuthFailureIsolated(t *testing.T) {
	ms := &fakeAdapter{
		src:     provider.Microsoft,
		busyErr: &provider.AuthError{Source: provider.Microsoft, Err: errors.New("sign-in dismissed")},
	}
	g := &fakeAdapter{src: provider.Google, busy: []provider.BusyBlock{busyBlock(provider.Google, at(5, 9, 0), at(5, 16, 45))}}
	o := New([]provider.Adapter{ms, g}, WithLocation(cet))

	snap, err := o.Refresh(context.Background(), dayRequest(false))
	require.NoError(t, err)

	assert.Len(t, snap.Busy, 1)
	assert.Contains(t, snap.AuthErrors[provider.Microsoft], "sign-in dismissed")
	assert.Empty(t, snap.Free["2024-03-05"], "a 15 minute gap is below the minimum")
}

func TestRefresh_DetailsSortedByStart(t *testing.T) {
	ms := &fakeAdapter{src: provider.Microsoft, details: []provider.EventDetail{
		provider.NewEventDetail(provider.Microsoft, at(5, 14, 0), at(5, 15, 0), "Review", "", false),
		provider.NewEventDetail(provider.Microsoft, at(5, 9, 0), at(5, 10, 0), "Standup", "", false),
	}}
	g := &fakeAdapter{src: provider.Google, details: []provider.EventDetail{
		provider.NewEventDetail(provider.Google, at(5, 11, 0), at(5, 12, 0), "Dentist", "Main St", true),
		provider.NewEventDetail(provider.Google, at(5, 9, 0), at(5, 9, 30), "Gym", "", false),
	}}
	o := New([]provider.Adapter{ms, g}, WithLocation(cet))

	snap, err := o.Refresh(context.Background(), dayRequest(true))
	require.NoError(t, err)

	titles := make([]string, 0, len(snap.Details))
	for _, d := range snap.Details {
		titles = append(titles, d.Title)
	}
	assert.Equal(t, []string{"Standup", "Gym", provider.RedactedTitle, "Review"}, titles,
		"sorted by start, equal starts keep provider order")
}

func TestRefresh_DetailsFailureFailsRefresh(t *testing.T) {
	ms := &fakeAdapter{src: provider.Microsoft, detailsErr: &provider.FetchError{Source: provider.Microsoft, Status: 403}}
	g := &fakeAdapter{src: provider.Google}
	o := New([]provider.Adapter{ms, g}, WithLocation(cet))

	_, err := o.Refresh(context.Background(), dayRequest(true))
	assert.EqualError(t, err, "microsoft fetch failed (status 403)")
}

func TestRefresh_WeekUsesEachDaysWorkHours(t *testing.T) {
	wh := prefs.UniformWorkHours(9, 17).SetDay(time.Friday, prefs.Hours{Start: 9, End: 12})
	wh = wh.SetDay(time.Saturday, prefs.Hours{Start: 0, End: 0})
	wh = wh.SetDay(time.Sunday, prefs.Hours{Start: 0, End: 0})

	o := New([]provider.Adapter{&fakeAdapter{src: provider.Google}}, WithLocation(cet))
	snap, err := o.Refresh(context.Background(), Request{
		Date:        at(6, 8, 0), // Wednesday
		Granularity: period.Week,
		MinGap:      30 * time.Minute,
		WorkHours:   wh,
	})
	require.NoError(t, err)

	require.Equal(t, []string{
		"2024-03-04", "2024-03-05", "2024-03-06", "2024-03-07",
		"2024-03-08", "2024-03-09", "2024-03-10",
	}, snap.Days)
	assert.Equal(t, []interval.Interval{interval.New(at(4, 9, 0), at(4, 17, 0))}, snap.Free["2024-03-04"])
	assert.Equal(t, []interval.Interval{interval.New(at(8, 9, 0), at(8, 12, 0))}, snap.Free["2024-03-08"])
	assert.Empty(t, snap.Free["2024-03-09"])
	assert.Empty(t, snap.Free["2024-03-10"])
}

func TestRefresh_NewerRefreshSupersedesOlder(t *testing.T) {
	slow := &fakeAdapter{src: provider.Google}
	slow.block.Store(true)
	o := New([]provider.Adapter{slow}, WithLocation(cet))

	errc := make(chan error, 1)
	go func() {
		_, err := o.Refresh(context.Background(), dayRequest(false))
		errc <- err
	}()
	require.Eventually(t, func() bool { return slow.busyCalls.Load() == 1 }, time.Second, time.Millisecond)

	slow.block.Store(false)
	snap, err := o.Refresh(context.Background(), dayRequest(false))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Generation)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("superseded refresh did not return")
	}
	assert.Same(t, snap, o.Current(), "the stale refresh never overwrites the newer snapshot")
}

func TestReset_SupersedesAndClears(t *testing.T) {
	g := &fakeAdapter{src: provider.Google}
	o := New([]provider.Adapter{g}, WithLocation(cet))

	_, err := o.Refresh(context.Background(), dayRequest(false))
	require.NoError(t, err)
	require.NotNil(t, o.Current())

	o.Reset(context.Background())
	assert.Nil(t, o.Current())
	assert.Equal(t, uint64(2), o.Generation())

	g.block.Store(true)
	errc := make(chan error, 1)
	go func() {
		_, err := o.Refresh(context.Background(), dayRequest(false))
		errc <- err
	}()
	require.Eventually(t, func() bool { return g.busyCalls.Load() == 2 }, time.Second, time.Millisecond)
	o.Reset(context.Background())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("refresh in flight survived a reset")
	}
	assert.Nil(t, o.Current())
}

func TestRefresh_NoProvidersConnected(t *testing.T) {
	o := New([]provider.Adapter{&fakeAdapter{src: provider.Microsoft}, &fakeAdapter{src: provider.Google}}, WithLocation(cet))

	snap, err := o.Refresh(context.Background(), dayRequest(true))
	require.NoError(t, err)
	assert.Empty(t, snap.Busy)
	assert.Empty(t, snap.Details)
	assert.Equal(t, []interval.Interval{interval.New(at(5, 9, 0), at(5, 17, 0))}, snap.Free["2024-03-05"])
}

func TestFreeSlots_BlockSpanningMidnight(t *testing.T) {
	p := period.ForDate(at(5, 0, 0), period.Week, cet)
	busy := []provider.BusyBlock{busyBlock(provider.Microsoft, at(5, 16, 0), at(6, 10, 0))}

	free, days := FreeSlots(busy, p, prefs.DefaultWorkHours(), 30*time.Minute, cet)
	require.Len(t, days, 7)
	assert.Equal(t, []interval.Interval{interval.New(at(5, 9, 0), at(5, 16, 0))}, free["2024-03-05"])
	assert.Equal(t, []interval.Interval{interval.New(at(6, 10, 0), at(6, 17, 0))}, free["2024-03-06"])
}
