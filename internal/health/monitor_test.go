package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances instantly whenever After is called.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// scriptedProber fails a fixed number of times before succeeding, recording
// when each attempt happened.
type scriptedProber struct {
	clock    Clock
	failures int
	attempts []time.Time
}

func (p *scriptedProber) Target() string { return "scripted" }

func (p *scriptedProber) Probe(context.Context) (Report, error) {
	p.attempts = append(p.attempts, p.clock.Now())
	if p.failures < 0 || len(p.attempts) <= p.failures {
		return Report{}, errors.New("connection refused")
	}
	return Report{Reachable: true, Status: "healthy", ModelLoaded: true}, nil
}

func TestAwait_SucceedsOnThirdAttempt(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	p := &scriptedProber{clock: clock, failures: 2}

	rep, err := NewMonitor(clock).Await(context.Background(), p, 120*time.Second, 2*time.Second)

	require.NoError(t, err)
	assert.Equal(t, "healthy", rep.Status)
	require.Len(t, p.attempts, 3)
	elapsed := p.attempts[2].Sub(start)
	assert.GreaterOrEqual(t, elapsed, 4*time.Second)
	assert.LessOrEqual(t, elapsed, 6*time.Second)
}

func TestAwait_TimesOutWithinBound(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	p := &scriptedProber{clock: clock, failures: -1}

	_, err := NewMonitor(clock).Await(context.Background(), p, 5*time.Second, time.Second)

	require.ErrorIs(t, err, ErrTimedOut)
	assert.LessOrEqual(t, clock.Now().Sub(start), 6*time.Second)
	assert.Len(t, p.attempts, 6, "attempts at 0s through 5s")
}

func TestAwait_DoesNotOvershootDeadline(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	p := &scriptedProber{clock: clock, failures: -1}

	_, err := NewMonitor(clock).Await(context.Background(), p, 5*time.Second, 2*time.Second)

	require.ErrorIs(t, err, ErrTimedOut)
	assert.Equal(t, 5*time.Second, clock.Now().Sub(start))
}

func TestAwait_WallClockTermination(t *testing.T) {
	p := &scriptedProber{clock: RealClock(), failures: -1}
	timeout, interval := 100*time.Millisecond, 20*time.Millisecond

	begin := time.Now()
	_, err := NewMonitor(nil).Await(context.Background(), p, timeout, interval)

	require.ErrorIs(t, err, ErrTimedOut)
	assert.Less(t, time.Since(begin), timeout+interval+time.Second)
}

func TestAwait_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &scriptedProber{clock: RealClock(), failures: -1}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	begin := time.Now()
	_, err := NewMonitor(nil).Await(ctx, p, time.Minute, 10*time.Second)

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(begin), 5*time.Second)
}

func TestAwaitReady_HTTP(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			http.Error(w, "starting", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","timestamp":"2024-01-01T00:00:00","model_loaded":true,"database_records":42}`))
	}))
	defer srv.Close()

	rep, err := NewMonitor(newFakeClock()).AwaitReady(context.Background(), srv.URL+"/health", 10*time.Second, time.Second)

	require.NoError(t, err)
	assert.True(t, rep.Reachable)
	assert.True(t, rep.ModelLoaded)
	require.NotNil(t, rep.DatabaseRecords)
	assert.Equal(t, 42, *rep.DatabaseRecords)
	assert.Nil(t, rep.LastUpdate)
	assert.Equal(t, 2, calls)
}
