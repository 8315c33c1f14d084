// Package retry implements the throttling policy shared by both calendar
// providers: only 429 and 503 responses are retried, honouring a numeric
// Retry-After header when present.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultBase is the lower bound of a wait without Retry-After.
	DefaultBase = time.Second

	// DefaultCap bounds every wait computed without Retry-After.
	DefaultCap = 8 * time.Second

	// DefaultMaxAttempts bounds the number of requests per call.
	DefaultMaxAttempts = 8
)

// ErrExhausted is returned once MaxAttempts throttled responses were seen.
var ErrExhausted = errors.New("retries exhausted")

// ThrottleError marks a retryable response. Adapters return it from the
// function passed to Do.
type ThrottleError struct {
	Status int
	Header http.Header
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled (status %d)", e.Status)
}

// Retryable reports whether a status is retried: 429 and 503 only.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// Policy computes waits and drives the retry loop.
type Policy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int // 0 retries until ctx ends

	// Notify, when set, is called before each wait.
	Notify func(attempt, status int, wait time.Duration)

	mu   sync.Mutex
	rand *rand.Rand
	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPolicy returns a policy with the given bounds. Zero values fall back to defaults.
func NewPolicy(base, maxWait time.Duration, maxAttempts int) *Policy {
	if base <= 0 {
		base = DefaultBase
	}
	if maxWait <= 0 {
		maxWait = DefaultCap
	}
	if maxAttempts < 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Policy{
		Base:        base,
		Cap:         maxWait,
		MaxAttempts: maxAttempts,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:       Sleep,
	}
}

// DefaultPolicy returns a policy with base 1s, cap 8s and 8 attempts.
func DefaultPolicy() *Policy {
	return NewPolicy(DefaultBase, DefaultCap, DefaultMaxAttempts)
}

func (p *Policy) float() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rand == nil {
		p.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return p.rand.Float64()
}

// Wait returns how long to pause before retrying a throttled response.
//
// A numeric Retry-After of N yields N seconds plus up to one second of
// jitter. Otherwise the wait is uniform in [Base, 3*Base], capped at Cap.
func (p *Policy) Wait(header http.Header) time.Duration {
	if secs, ok := retryAfter(header); ok {
		return time.Duration(secs)*time.Second + time.Duration(p.float()*float64(time.Second))
	}

	wait := p.Base + time.Duration(p.float()*float64(2*p.Base))
	if wait > p.Cap {
		wait = p.Cap
	}
	return wait
}

func retryAfter(header http.Header) (int, bool) {
	if header == nil {
		return 0, false
	}
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return secs, true
}

// Do calls fn until it returns something other than a *ThrottleError.
// Throttled attempts wait per Wait; the wait suspends only the caller and
// ends early when ctx is done. After MaxAttempts throttled responses the
// last throttle error is returned wrapped in ErrExhausted.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = Sleep
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		var throttle *ThrottleError
		if !errors.As(err, &throttle) {
			return err
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
		}

		wait := p.Wait(throttle.Header)
		if p.Notify != nil {
			p.Notify(attempt, throttle.Status, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
