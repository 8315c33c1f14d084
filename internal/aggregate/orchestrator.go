package aggregate

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teemow/freetime/internal/instrumentation"
	"github.com/teemow/freetime/internal/interval"
	"github.com/teemow/freetime/internal/logging"
	"github.com/teemow/freetime/internal/period"
	"github.com/teemow/freetime/internal/prefs"
	"github.com/teemow/freetime/internal/provider"
)

// ErrSuperseded is returned by a refresh that a newer refresh or a reset
// overtook before it could commit.
var ErrSuperseded = errors.New("refresh superseded by a newer request")

// Request selects what a refresh fetches and how free slots are derived.
type Request struct {
	Date        time.Time
	Granularity period.Granularity
	Details     bool
	MinGap      time.Duration
	WorkHours   prefs.WorkHours
}

// Snapshot is the committed result of one refresh. Free holds the free
// slots of each civil day keyed by YYYY-MM-DD and Days lists those keys in
// calendar order.
type Snapshot struct {
	Generation uint64                         `json:"generation"`
	Period     period.Period                  `json:"period"`
	Busy       []provider.BusyBlock           `json:"busy"`
	Details    []provider.EventDetail         `json:"details,omitempty"`
	Free       map[string][]interval.Interval `json:"free"`
	Days       []string                       `json:"days"`
	AuthErrors map[provider.Source]string     `json:"authErrors,omitempty"`
	FetchedAt  time.Time                      `json:"fetchedAt"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLocation sets the zone used for days and work hours.
func WithLocation(loc *time.Location) Option {
	return func(o *Orchestrator) { o.loc = loc }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMetrics records refresh and per-provider fetch metrics.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = metrics }
}

// Orchestrator fans each refresh out to every adapter and commits the
// result of the newest refresh only.
type Orchestrator struct {
	adapters []provider.Adapter
	loc      *time.Location
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
	now      func() time.Time

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	current *Snapshot
}

// New creates an orchestrator over the given adapters.
func New(adapters []provider.Adapter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		adapters: adapters,
		loc:      time.Local,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.loc == nil {
		o.loc = time.Local
	}
	o.logger = logging.WithOperation(o.logger, "refresh")
	return o
}

// Refresh fetches busy blocks from every adapter concurrently, optionally
// event details, and derives free slots for each day of the period.
//
// Any fetch failure fails the whole refresh. Authentication failures do not:
// the provider contributes nothing and is listed in Snapshot.AuthErrors.
// Starting a refresh cancels the one in flight, which then returns
// ErrSuperseded.
func (o *Orchestrator) Refresh(ctx context.Context, req Request) (*Snapshot, error) {
	gen, ctx, done := o.begin(ctx)
	defer done()

	p := period.ForDate(req.Date, req.Granularity, o.loc)
	start := o.now()
	logger := o.logger.With(logging.Generation(gen), logging.Period(p.Start, p.End))

	ctx, span := instrumentation.StartRefreshSpan(ctx, instrumentation.NewSpanAttributeBuilder().
		WithPeriod(p.Start, p.End, string(p.Granularity)).
		WithGeneration(gen).
		WithDetails(req.Details).
		Build()...)
	defer span.End()

	snap, err := o.collect(ctx, p, req)
	if err != nil {
		if !o.isCurrent(gen) {
			err = ErrSuperseded
		}
		instrumentation.SetSpanError(span, err)
		o.metrics.RecordRefresh(ctx, string(p.Granularity), instrumentation.StatusError, o.now().Sub(start))
		logger.Warn("refresh failed", logging.Err(err))
		return nil, err
	}

	snap.Generation = gen
	snap.FetchedAt = o.now()

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		instrumentation.SetSpanError(span, ErrSuperseded)
		logger.Debug("discarding superseded refresh")
		return nil, ErrSuperseded
	}
	o.current = snap
	o.mu.Unlock()

	instrumentation.SetSpanSuccess(span)
	o.metrics.RecordRefresh(ctx, string(p.Granularity), instrumentation.StatusSuccess, o.now().Sub(start))
	logger.Info("refresh committed",
		slog.Int("busy_blocks", len(snap.Busy)),
		slog.Int("auth_errors", len(snap.AuthErrors)))
	return snap, nil
}

// Current returns the last committed snapshot, or nil.
func (o *Orchestrator) Current() *Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Reset drops the committed snapshot and supersedes any refresh in flight.
func (o *Orchestrator) Reset(context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.gen++
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.current = nil
}

// Generation returns the number of the newest refresh or reset.
func (o *Orchestrator) Generation() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gen
}

func (o *Orchestrator) begin(parent context.Context) (uint64, context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.gen++
	gen := o.gen
	o.cancel = cancel

	return gen, ctx, func() {
		cancel()
		o.mu.Lock()
		if o.gen == gen {
			o.cancel = nil
		}
		o.mu.Unlock()
	}
}

func (o *Orchestrator) isCurrent(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gen == gen
}

func (o *Orchestrator) collect(ctx context.Context, p period.Period, req Request) (*Snapshot, error) {
	authErrs := newAuthErrors()

	busySets := make([][]provider.BusyBlock, len(o.adapters))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range o.adapters {
		g.Go(func() error {
			err := o.fetch(gctx, a, instrumentation.OperationBusy, func(ctx context.Context) (int, error) {
				var err error
				busySets[i], err = a.FetchBusy(ctx, p)
				return len(busySets[i]), err
			})
			return authErrs.absorb(a.Source(), err)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := &Snapshot{Period: p, Busy: []provider.BusyBlock{}}
	for _, set := range busySets {
		snap.Busy = append(snap.Busy, set...)
	}

	if req.Details {
		detailSets := make([][]provider.EventDetail, len(o.adapters))
		g, gctx := errgroup.WithContext(ctx)
		for i, a := range o.adapters {
			g.Go(func() error {
				err := o.fetch(gctx, a, instrumentation.OperationDetails, func(ctx context.Context) (int, error) {
					var err error
					detailSets[i], err = a.FetchDetails(ctx, p)
					return len(detailSets[i]), err
				})
				return authErrs.absorb(a.Source(), err)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		snap.Details = []provider.EventDetail{}
		for _, set := range detailSets {
			snap.Details = append(snap.Details, set...)
		}
		sort.SliceStable(snap.Details, func(i, j int) bool {
			return snap.Details[i].Start.Before(snap.Details[j].Start)
		})
	}

	snap.Free, snap.Days = FreeSlots(snap.Busy, p, req.WorkHours, req.MinGap, o.loc)
	snap.AuthErrors = authErrs.result()
	return snap, nil
}

// fetch runs one adapter call inside a provider span and records its metrics.
func (o *Orchestrator) fetch(ctx context.Context, a provider.Adapter, operation string, call func(ctx context.Context) (int, error)) error {
	label := instrumentation.ProviderLabel(a.Source())
	ctx, span := instrumentation.StartProviderSpan(ctx, label, operation)
	defer span.End()

	start := o.now()
	n, err := call(ctx)

	status := instrumentation.StatusSuccess
	switch {
	case provider.IsAuthError(err):
		status = instrumentation.StatusAuth
		instrumentation.SetSpanError(span, err)
	case err != nil:
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	default:
		span.SetAttributes(instrumentation.NewSpanAttributeBuilder().WithBlockCount(n).Build()...)
		instrumentation.SetSpanSuccess(span)
	}
	o.metrics.RecordProviderFetch(ctx, label, operation, status, "", o.now().Sub(start))
	return err
}

// FreeSlots derives the free slots of every civil day in p, each against
// that weekday's work hours. It returns the slots keyed by YYYY-MM-DD and
// the keys in calendar order.
func FreeSlots(busy []provider.BusyBlock, p period.Period, wh prefs.WorkHours, minGap time.Duration, loc *time.Location) (map[string][]interval.Interval, []string) {
	if loc == nil {
		loc = time.Local
	}

	intervals := make([]interval.Interval, 0, len(busy))
	for _, b := range busy {
		intervals = append(intervals, b.Interval)
	}
	merged := interval.Merge(intervals)

	free := make(map[string][]interval.Interval)
	var days []string
	for _, day := range period.Days(p.Start.In(loc), p.End.In(loc)) {
		window := wh.Window(day, loc)
		key := period.Key(day)
		free[key] = interval.InvertToFree(merged, window.Start, window.End, minGap)
		days = append(days, key)
	}
	return free, days
}

type authErrors struct {
	mu   sync.Mutex
	errs map[provider.Source]string
}

func newAuthErrors() *authErrors {
	return &authErrors{errs: make(map[provider.Source]string)}
}

// absorb swallows authentication failures, recording them per provider.
// Every other error is returned so the errgroup fails fast.
func (a *authErrors) absorb(src provider.Source, err error) error {
	if err == nil {
		return nil
	}
	if provider.IsAuthError(err) {
		a.mu.Lock()
		a.errs[src] = err.Error()
		a.mu.Unlock()
		return nil
	}
	return err
}

func (a *authErrors) result() map[provider.Source]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.errs) == 0 {
		return nil
	}
	return a.errs
}
