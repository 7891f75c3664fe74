package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cvectl/pkg/logging"
)

// ErrTimedOut is returned when a target did not become ready in time.
var ErrTimedOut = errors.New("readiness timed out")

// Default polling bounds.
const (
	DefaultTimeout        = 120 * time.Second
	DefaultInterval       = 2 * time.Second
	DefaultAttemptTimeout = 5 * time.Second
)

// Clock abstracts time so polling can be tested without sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Monitor polls probers until they succeed, time out, or the context ends.
type Monitor struct {
	clock          Clock
	attemptTimeout time.Duration
}

// NewMonitor returns a monitor using clock, or the wall clock if nil.
func NewMonitor(clock Clock) *Monitor {
	if clock == nil {
		clock = realClock{}
	}
	return &Monitor{clock: clock, attemptTimeout: DefaultAttemptTimeout}
}

// AwaitReady polls an HTTP health endpoint.
func (m *Monitor) AwaitReady(ctx context.Context, probeURL string, timeout, interval time.Duration) (Report, error) {
	return m.Await(ctx, NewHTTPProber(probeURL), timeout, interval)
}

// Await probes p immediately and then every interval until it succeeds or
// timeout has elapsed. It never waits past the deadline; the last attempt is
// made at the deadline itself. On timeout the report of the last attempt is
// returned together with ErrTimedOut.
func (m *Monitor) Await(ctx context.Context, p Prober, timeout, interval time.Duration) (Report, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	start := m.clock.Now()
	deadline := start.Add(timeout)

	var last Report
	var lastErr error
	for attempt := 1; ; attempt++ {
		rep, err := m.Check(ctx, p)
		if err == nil {
			logging.Debug("HealthMonitor", "%s ready after %d attempt(s)", p.Target(), attempt)
			return rep, nil
		}
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		last, lastErr = rep, err
		logging.Debug("HealthMonitor", "%s not ready (attempt %d): %v", p.Target(), attempt, err)

		remaining := deadline.Sub(m.clock.Now())
		if remaining <= 0 {
			return last, fmt.Errorf("%w: %s after %s (%d attempts): %v", ErrTimedOut, p.Target(), timeout, attempt, lastErr)
		}

		wait := interval
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-m.clock.After(wait):
		}
	}
}

// Check runs a single bounded probe.
func (m *Monitor) Check(ctx context.Context, p Prober) (Report, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, m.attemptTimeout)
	defer cancel()

	rep, err := p.Probe(attemptCtx)
	rep.CheckedAt = m.clock.Now()
	return rep, err
}
