package msgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/freetime/internal/period"
	"github.com/teemow/freetime/internal/provider"
	"github.com/teemow/freetime/internal/retry"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) AccessToken(_ context.Context, _ provider.Source) (string, error) {
	return s.token, s.err
}

func event(subject, start, end, showAs, sensitivity string) map[string]interface{} {
	return map[string]interface{}{
		"subject":     subject,
		"start":       map[string]string{"dateTime": start, "timeZone": "UTC"},
		"end":         map[string]string{"dateTime": end, "timeZone": "UTC"},
		"showAs":      showAs,
		"sensitivity": sensitivity,
		"location":    map[string]string{"displayName": "Room " + subject},
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func testPeriod() period.Period {
	return period.ForDate(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), period.Day, time.UTC)
}

func newTestClient(srv *httptest.Server, tokens provider.TokenSource) *Client {
	policy := retry.NewPolicy(time.Millisecond, 2*time.Millisecond, 3)
	return NewClient(tokens,
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithRetryPolicy(policy),
		WithLocation(time.UTC),
	)
}

func TestIsBusy(t *testing.T) {
	tests := map[string]bool{
		"free":             false,
		"Free":             true,
		"FREE":             true,
		"busy":             true,
		"tentative":        true,
		"oof":              true,
		"workingElsewhere": true,
		"unknown":          true,
		"":                 true,
	}
	for showAs, want := range tests {
		assert.Equal(t, want, IsBusy(showAs), "showAs %q", showAs)
	}
}

func TestIsPrivate(t *testing.T) {
	assert.False(t, IsPrivate(""))
	assert.False(t, IsPrivate("normal"))
	assert.True(t, IsPrivate("private"))
	assert.True(t, IsPrivate("confidential"))
	assert.True(t, IsPrivate("personal"))
}

func TestFetchBusyFollowsPaginationAndFiltersFree(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, `outlook.timezone="UTC"`, r.Header.Get("Prefer"))

		if r.URL.Query().Get("page") == "2" {
			writeJSON(t, w, map[string]interface{}{
				"value": []interface{}{
					event("c", "2024-03-04T13:00:00.0000000", "2024-03-04T14:00:00.0000000", "oof", "normal"),
				},
			})
			return
		}

		assert.Equal(t, "/me/calendarView", r.URL.Path)
		assert.Contains(t, r.URL.Query().Get("$select"), "showAs")
		assert.NotContains(t, r.URL.Query().Get("$select"), "subject")
		assert.Equal(t, "start/dateTime", r.URL.Query().Get("$orderby"))

		writeJSON(t, w, map[string]interface{}{
			"value": []interface{}{
				event("a", "2024-03-04T09:00:00.0000000", "2024-03-04T10:00:00.0000000", "busy", "normal"),
				event("b", "2024-03-04T10:00:00", "2024-03-04T11:00:00", "free", "normal"),
				event("t", "2024-03-04T11:00:00", "2024-03-04T11:30:00", "tentative", "normal"),
				event("w", "2024-03-04T12:00:00", "2024-03-04T12:30:00", "workingElsewhere", "normal"),
				event("z", "2024-03-04T12:30:00", "2024-03-04T12:30:00", "busy", "normal"),
			},
			"@odata.nextLink": srvURL + "/me/calendarView?page=2",
		})
	}))
	defer srv.Close()
	srvURL = srv.URL

	c := newTestClient(srv, staticTokens{token: "tok"})
	blocks, err := c.FetchBusy(context.Background(), testPeriod())
	require.NoError(t, err)

	require.Len(t, blocks, 4)
	for _, b := range blocks {
		assert.Equal(t, provider.Microsoft, b.Source)
		assert.True(t, b.Valid())
	}
	assert.Equal(t, 9, blocks[0].Start.Hour())
	assert.Equal(t, 11, blocks[1].Start.Hour())
	assert.Equal(t, 12, blocks[2].Start.Hour())
	assert.Equal(t, 13, blocks[3].Start.Hour())
}

func TestFetchBusyKeepsCancelledEntriesThatAreNotFree(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotContains(t, r.URL.Query().Get("$select"), "isCancelled")
		cancelled := event("a", "2024-03-04T09:00:00", "2024-03-04T10:00:00", "busy", "normal")
		cancelled["isCancelled"] = true
		writeJSON(t, w, map[string]interface{}{
			"value": []interface{}{
				cancelled,
				event("b", "2024-03-04T11:00:00", "2024-03-04T12:00:00", "Free", "normal"),
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv, staticTokens{token: "tok"})
	blocks, err := c.FetchBusy(context.Background(), testPeriod())
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, 9, blocks[0].Start.Hour())
	assert.Equal(t, 11, blocks[1].Start.Hour())
}

func TestFetchRefusesForeignNextLink(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(t, w, map[string]interface{}{
			"value": []interface{}{
				event("a", "2024-03-04T09:00:00", "2024-03-04T10:00:00", "busy", "normal"),
			},
			"@odata.nextLink": "https://attacker.example/me/calendarView?page=2",
		})
	}))
	defer srv.Close()

	c := newTestClient(srv, staticTokens{token: "tok"})
	_, err := c.FetchBusy(context.Background(), testPeriod())
	require.Error(t, err)

	var fetchErr *provider.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, fetchErr.Err.Error(), "attacker.example")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchDetailsSkipsCancelledEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("$select"), "isCancelled")
		cancelled := event("Gone", "2024-03-04T09:00:00", "2024-03-04T10:00:00", "busy", "normal")
		cancelled["isCancelled"] = true
		writeJSON(t, w, map[string]interface{}{
			"value": []interface{}{
				cancelled,
				event("Kept", "2024-03-04T11:00:00", "2024-03-04T12:00:00", "busy", "normal"),
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv, staticTokens{token: "tok"})
	details, err := c.FetchDetails(context.Background(), testPeriod())
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "Kept", details[0].Title)
}

func TestFetchDetailsRedactsPrivateEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("$select"), "subject")
		assert.Contains(t, r.URL.Query().Get("$select"), "location")
		writeJSON(t, w, map[string]interface{}{
			"value": []interface{}{
				event("Standup", "2024-03-04T09:00:00", "2024-03-04T09:15:00", "busy", "normal"),
				event("Doctor", "2024-03-04T10:00:00", "2024-03-04T11:00:00", "busy", "private"),
				event("Offsite", "2024-03-04T12:00:00", "2024-03-04T13:00:00", "free", "confidential"),
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv, staticTokens{token: "tok"})
	details, err := c.FetchDetails(context.Background(), testPeriod())
	require.NoError(t, err)
	require.Len(t, details, 3)

	assert.Equal(t, "Standup", details[0].Title)
	assert.Equal(t, "Room Standup", details[0].Location)
	assert.False(t, details[0].IsPrivate)

	for _, d := range details[1:] {
		assert.True(t, d.IsPrivate)
		assert.Equal(t, provider.RedactedTitle, d.Title)
		assert.Empty(t, d.Location)
	}
}

func TestFetchWithoutTokenMakesNoRequest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := newTestClient(srv, staticTokens{})
	blocks, err := c.FetchBusy(context.Background(), testPeriod())
	require.NoError(t, err)
	assert.Empty(t, blocks)

	details, err := c.FetchDetails(context.Background(), testPeriod())
	require.NoError(t, err)
	assert.Empty(t, details)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestFetchPassesAuthErrorThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	defer srv.Close()

	authErr := &provider.AuthError{Source: provider.Microsoft, Err: fmt.Errorf("declined")}
	c := newTestClient(srv, staticTokens{err: authErr})
	_, err := c.FetchBusy(context.Background(), testPeriod())
	assert.True(t, provider.IsAuthError(err))
}

func TestFetchRetriesThrottledRequests(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			writeJSON(t, w, map[string]interface{}{
				"value": []interface{}{
					event("a", "2024-03-04T09:00:00", "2024-03-04T10:00:00", "busy", "normal"),
				},
			})
		}
	}))
	defer srv.Close()

	c := newTestClient(srv, staticTokens{token: "tok"})
	blocks, err := c.FetchBusy(context.Background(), testPeriod())
	require.NoError(t, err)
	assert.Len(t, blocks, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"ErrorAccessDenied"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv, staticTokens{token: "tok"})
	_, err := c.FetchBusy(context.Background(), testPeriod())
	require.Error(t, err)

	var fetchErr *provider.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, provider.Microsoft, fetchErr.Source)
	assert.Equal(t, http.StatusForbidden, fetchErr.Status)
	assert.Equal(t, "microsoft fetch failed (status 403)", err.Error())
}

func TestFetchExhaustedRetriesSurfaceStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv, staticTokens{token: "tok"})
	_, err := c.FetchBusy(context.Background(), testPeriod())

	var fetchErr *provider.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusServiceUnavailable, fetchErr.Status)
	assert.ErrorIs(t, err, retry.ErrExhausted)
}

func TestPreferHeaderUsesConfiguredZone(t *testing.T) {
	loc := time.FixedZone("Europe/Test", 2*60*60)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.Contains(r.Header.Get("Prefer"), "Europe/Test"))
		writeJSON(t, w, map[string]interface{}{
			"value": []interface{}{
				map[string]interface{}{
					"start":  map[string]string{"dateTime": "2024-03-04T09:00:00", "timeZone": "Europe/Test"},
					"end":    map[string]string{"dateTime": "2024-03-04T10:00:00", "timeZone": "Europe/Test"},
					"showAs": "busy",
				},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(staticTokens{token: "tok"}, WithBaseURL(srv.URL), WithLocation(loc))
	blocks, err := c.FetchBusy(context.Background(), period.ForDate(time.Date(2024, 3, 4, 0, 0, 0, 0, loc), period.Day, loc))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, 9, blocks[0].Start.Hour())
	assert.Equal(t, 7, blocks[0].Start.UTC().Hour())
}
