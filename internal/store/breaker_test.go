package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cachetune/cachetune/pkg/errors"
	"github.com/cachetune/cachetune/pkg/types"
)

type breakerClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *breakerClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *breakerClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// flakyStore fails every operation while failing is set
type flakyStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	failing bool
	calls   int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{data: make(map[string][]byte)}
}

func (f *flakyStore) fail(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = on
}

func (f *flakyStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *flakyStore) op() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failing {
		return errors.NewError(errors.ErrCodeConnectionFailed, "backend down")
	}
	return nil
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := f.op(); err != nil {
		return nil, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.data[key]
	return value, ok, nil
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := f.op(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *flakyStore) Refresh(ctx context.Context, key string, ttl time.Duration) error {
	return f.op()
}

func (f *flakyStore) Remove(ctx context.Context, key string) error {
	if err := f.op(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *flakyStore) Keys(ctx context.Context) ([]string, error) {
	if err := f.op(); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *flakyStore) Close(ctx context.Context) error { return nil }

func newTestBreaker(t *testing.T) (*flakyStore, *BreakerStore, *breakerClock) {
	t.Helper()
	clock := &breakerClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	inner := newFlakyStore()
	b := NewBreakerStore(inner, BreakerConfig{
		MaxProbes: 1,
		Interval:  time.Minute,
		Timeout:   30 * time.Second,
		ReadyToTrip: func(counts BreakerCounts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		Clock: clock,
	})
	return inner, b, clock
}

func tripBreaker(t *testing.T, inner *flakyStore, b *BreakerStore) {
	t.Helper()
	inner.fail(true)
	for i := 0; i < 3; i++ {
		_, _, err := b.Get(context.Background(), "k")
		require.Error(t, err)
	}
	require.Equal(t, BreakerOpen, b.State())
}

func TestBreakerStorePassThrough(t *testing.T) {
	inner, b, _ := newTestBreaker(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "k", []byte("v"), 0))
	value, found, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), value)
	assert.Equal(t, BreakerClosed, b.State())
	assert.Equal(t, 2, inner.callCount())
}

func TestBreakerStoreTripsAfterConsecutiveFailures(t *testing.T) {
	inner, b, _ := newTestBreaker(t)
	tripBreaker(t, inner, b)

	// Open breaker fails fast without reaching the backend.
	calls := inner.callCount()
	_, _, err := b.Get(context.Background(), "k")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidState, errors.CodeOf(err))
	assert.Equal(t, calls, inner.callCount())
}

func TestBreakerStoreSuccessResetsConsecutiveFailures(t *testing.T) {
	inner, b, _ := newTestBreaker(t)
	ctx := context.Background()

	inner.fail(true)
	_, _, err := b.Get(ctx, "k")
	require.Error(t, err)
	_, _, err = b.Get(ctx, "k")
	require.Error(t, err)

	inner.fail(false)
	_, _, err = b.Get(ctx, "k")
	require.NoError(t, err)

	inner.fail(true)
	_, _, err = b.Get(ctx, "k")
	require.Error(t, err)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerStoreHalfOpenRecovery(t *testing.T) {
	inner, b, clock := newTestBreaker(t)
	tripBreaker(t, inner, b)

	inner.fail(false)
	clock.Advance(31 * time.Second)
	require.Equal(t, BreakerHalfOpen, b.State())

	// A successful probe closes the breaker.
	_, _, err := b.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerStoreHalfOpenFailureReopens(t *testing.T) {
	inner, b, clock := newTestBreaker(t)
	tripBreaker(t, inner, b)

	clock.Advance(31 * time.Second)
	require.Equal(t, BreakerHalfOpen, b.State())

	// Backend still down; the probe reopens the breaker.
	_, _, err := b.Get(context.Background(), "k")
	require.Error(t, err)
	assert.Equal(t, BreakerOpen, b.State())
}

func TestBreakerStoreHalfOpenProbeLimit(t *testing.T) {
	inner, b, clock := newTestBreaker(t)
	tripBreaker(t, inner, b)

	clock.Advance(31 * time.Second)

	// First probe is admitted and stalls the window at one request; a
	// concurrent second probe is rejected.
	require.NoError(t, b.beforeRequest())
	err := b.beforeRequest()
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidState, errors.CodeOf(err))
}

func TestBreakerStoreReset(t *testing.T) {
	inner, b, _ := newTestBreaker(t)
	tripBreaker(t, inner, b)

	b.Reset()
	assert.Equal(t, BreakerClosed, b.State())

	inner.fail(false)
	_, _, err := b.Get(context.Background(), "k")
	assert.NoError(t, err)
}

func TestBreakerStoreStateChangeCallback(t *testing.T) {
	clock := &breakerClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	inner := newFlakyStore()

	var transitions []string
	b := NewBreakerStore(inner, BreakerConfig{
		ReadyToTrip: func(counts BreakerCounts) bool { return counts.ConsecutiveFailures >= 1 },
		OnStateChange: func(from, to BreakerState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
		Clock: clock,
	})

	inner.fail(true)
	_, _, err := b.Get(context.Background(), "k")
	require.Error(t, err)
	assert.Equal(t, []string{"CLOSED->OPEN"}, transitions)
}

func TestBreakerStoreClosedWindowReset(t *testing.T) {
	inner, b, clock := newTestBreaker(t)
	ctx := context.Background()

	inner.fail(true)
	_, _, err := b.Get(ctx, "k")
	require.Error(t, err)
	_, _, err = b.Get(ctx, "k")
	require.Error(t, err)

	// The closed-state window elapses and counts reset, so the next
	// failure is the first of a new window.
	clock.Advance(2 * time.Minute)
	_, _, err = b.Get(ctx, "k")
	require.Error(t, err)
	assert.Equal(t, BreakerClosed, b.State())
	assert.Equal(t, uint32(1), b.Counts().ConsecutiveFailures)
}

func TestBreakerStoreCloseBypassesBreaker(t *testing.T) {
	inner, b, _ := newTestBreaker(t)
	tripBreaker(t, inner, b)

	assert.NoError(t, b.Close(context.Background()))
}

var _ types.Store = (*flakyStore)(nil)
