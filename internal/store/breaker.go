package store

import (
	"context"
	"sync"
	"time"

	"github.com/cachetune/cachetune/pkg/errors"
	"github.com/cachetune/cachetune/pkg/types"
)

// BreakerState represents the circuit state of a guarded store
type BreakerState int

const (
	// BreakerClosed - operations pass through to the backend
	BreakerClosed BreakerState = iota
	// BreakerOpen - operations fail fast without touching the backend
	BreakerOpen
	// BreakerHalfOpen - a limited number of probe operations test recovery
	BreakerHalfOpen
)

// String returns string representation of the state
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerCounts holds request outcomes within the current state window
type BreakerCounts struct {
	Requests             uint32 `json:"requests"`
	TotalSuccesses       uint32 `json:"total_successes"`
	TotalFailures        uint32 `json:"total_failures"`
	ConsecutiveSuccesses uint32 `json:"consecutive_successes"`
	ConsecutiveFailures  uint32 `json:"consecutive_failures"`
}

func (c *BreakerCounts) onSuccess() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *BreakerCounts) onFailure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

func (c *BreakerCounts) clear() {
	*c = BreakerCounts{}
}

// BreakerConfig configures a BreakerStore
type BreakerConfig struct {
	// MaxProbes is the number of operations allowed through while half-open
	MaxProbes uint32 `yaml:"max_probes"`

	// Interval is the closed-state window after which counts reset
	Interval time.Duration `yaml:"interval"`

	// Timeout is how long the breaker stays open before probing
	Timeout time.Duration `yaml:"timeout"`

	// ReadyToTrip decides when accumulated failures open the breaker
	ReadyToTrip func(counts BreakerCounts) bool `yaml:"-"`

	// OnStateChange is called on every transition
	OnStateChange func(from, to BreakerState) `yaml:"-"`

	// Clock supplies "now"; tests inject a fake
	Clock types.Clock `yaml:"-"`
}

func defaultReadyToTrip(counts BreakerCounts) bool {
	return counts.ConsecutiveFailures >= 5
}

// BreakerStore wraps a types.Store with a circuit breaker so a failing
// backend degrades to fast cache misses instead of piling up timeouts.
type BreakerStore struct {
	inner  types.Store
	config BreakerConfig
	clock  types.Clock

	mu     sync.Mutex
	state  BreakerState
	counts BreakerCounts
	expiry time.Time
}

var _ types.Store = (*BreakerStore)(nil)

// NewBreakerStore wraps inner with a circuit breaker
func NewBreakerStore(inner types.Store, config BreakerConfig) *BreakerStore {
	if config.MaxProbes == 0 {
		config.MaxProbes = 1
	}
	if config.Interval <= 0 {
		config.Interval = 60 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.ReadyToTrip == nil {
		config.ReadyToTrip = defaultReadyToTrip
	}
	clock := config.Clock
	if clock == nil {
		clock = types.SystemClock()
	}

	return &BreakerStore{
		inner:  inner,
		config: config,
		clock:  clock,
		state:  BreakerClosed,
		expiry: clock.Now().Add(config.Interval),
	}
}

func errBreakerOpen() error {
	return errors.NewError(errors.ErrCodeInvalidState, "store circuit breaker is open").
		WithComponent("store")
}

func errTooManyProbes() error {
	return errors.NewError(errors.ErrCodeInvalidState, "store circuit breaker probe limit reached").
		WithComponent("store")
}

// beforeRequest admits or rejects one operation
func (b *BreakerStore) beforeRequest() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	state := b.currentState(now)

	if state == BreakerOpen {
		return errBreakerOpen()
	}
	if state == BreakerHalfOpen && b.counts.Requests >= b.config.MaxProbes {
		return errTooManyProbes()
	}

	b.counts.Requests++
	return nil
}

func (b *BreakerStore) afterRequest(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	state := b.currentState(now)

	if err == nil || errors.CodeOf(err) == errors.ErrCodeKeyNotFound {
		b.counts.onSuccess()
		if state == BreakerHalfOpen {
			b.setState(BreakerClosed, now)
		}
		return
	}

	b.counts.onFailure()
	switch state {
	case BreakerClosed:
		if b.config.ReadyToTrip(b.counts) {
			b.setState(BreakerOpen, now)
		}
	case BreakerHalfOpen:
		b.setState(BreakerOpen, now)
	}
}

// currentState applies window expiry transitions. Caller holds the lock.
func (b *BreakerStore) currentState(now time.Time) BreakerState {
	switch b.state {
	case BreakerClosed:
		if !b.expiry.IsZero() && b.expiry.Before(now) {
			b.counts.clear()
			b.expiry = now.Add(b.config.Interval)
		}
	case BreakerOpen:
		if b.expiry.Before(now) {
			b.setState(BreakerHalfOpen, now)
		}
	}
	return b.state
}

// setState transitions and resets the window. Caller holds the lock.
func (b *BreakerStore) setState(state BreakerState, now time.Time) {
	if b.state == state {
		return
	}
	prev := b.state
	b.state = state
	b.counts.clear()

	switch state {
	case BreakerClosed:
		b.expiry = now.Add(b.config.Interval)
	case BreakerOpen:
		b.expiry = now.Add(b.config.Timeout)
	case BreakerHalfOpen:
		b.expiry = time.Time{}
	}

	if b.config.OnStateChange != nil {
		b.config.OnStateChange(prev, state)
	}
}

func (b *BreakerStore) execute(fn func() error) error {
	if err := b.beforeRequest(); err != nil {
		return err
	}
	err := fn()
	b.afterRequest(err)
	return err
}

// State returns the breaker's current state
func (b *BreakerStore) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState(b.clock.Now())
}

// Counts returns a copy of the current window's counts
func (b *BreakerStore) Counts() BreakerCounts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Reset forces the breaker closed and clears its counts
func (b *BreakerStore) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts.clear()
	b.setState(BreakerClosed, b.clock.Now())
}

// Get implements types.Store
func (b *BreakerStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value []byte
		found bool
	)
	err := b.execute(func() error {
		var err error
		value, found, err = b.inner.Get(ctx, key)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}

// Set implements types.Store
func (b *BreakerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.execute(func() error {
		return b.inner.Set(ctx, key, value, ttl)
	})
}

// Refresh implements types.Store
func (b *BreakerStore) Refresh(ctx context.Context, key string, ttl time.Duration) error {
	return b.execute(func() error {
		return b.inner.Refresh(ctx, key, ttl)
	})
}

// Remove implements types.Store
func (b *BreakerStore) Remove(ctx context.Context, key string) error {
	return b.execute(func() error {
		return b.inner.Remove(ctx, key)
	})
}

// Keys implements types.Store
func (b *BreakerStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := b.execute(func() error {
		var err error
		keys, err = b.inner.Keys(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Close bypasses the breaker; shutdown must always reach the backend
func (b *BreakerStore) Close(ctx context.Context) error {
	return b.inner.Close(ctx)
}
