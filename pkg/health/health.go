// Package health tracks per-component health for CacheTune and derives an
// overall service state from the worst component.
package health

import (
	"context"
	stderr "errors"
	"fmt"
	"sync"
	"time"

	"github.com/cachetune/cachetune/pkg/errors"
)

// State represents the health state of a component or the whole service.
type State int

const (
	// StateHealthy indicates the component is fully operational.
	StateHealthy State = iota

	// StateDegraded indicates the component works but with elevated error rates.
	StateDegraded

	// StateReadOnly indicates the component can serve reads but writes are failing.
	StateReadOnly

	// StateUnavailable indicates the component is not operational.
	StateUnavailable
)

// String returns the string representation of a health state.
func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateReadOnly:
		return "read-only"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// ComponentHealth is a point-in-time view of one component's health.
type ComponentHealth struct {
	Name              string    `json:"name"`
	State             State     `json:"state"`
	LastStateChange   time.Time `json:"last_state_change"`
	LastCheck         time.Time `json:"last_check"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	LastErrorMessage  string    `json:"last_error_message,omitempty"`
}

// StateChangeCallback is invoked asynchronously when a component changes state.
type StateChangeCallback func(component string, oldState, newState State, err error)

// TrackerConfig configures state transition thresholds.
type TrackerConfig struct {
	// ErrorThreshold is the number of consecutive errors before a component
	// is marked degraded (or read-only for write failures).
	ErrorThreshold int `yaml:"error_threshold" json:"error_threshold"`

	// UnavailableThreshold is the number of consecutive errors before a
	// component is marked unavailable.
	UnavailableThreshold int `yaml:"unavailable_threshold" json:"unavailable_threshold"`

	// CheckInterval is the period between probe rounds in StartChecks.
	CheckInterval time.Duration `yaml:"check_interval" json:"check_interval"`
}

// DefaultConfig returns the default tracker thresholds.
func DefaultConfig() TrackerConfig {
	return TrackerConfig{
		ErrorThreshold:       3,
		UnavailableThreshold: 10,
		CheckInterval:        30 * time.Second,
	}
}

// Tracker tracks the health of the cache subsystems (backing store, metadata
// index, optimizer) and reports the worst state as the overall health.
type Tracker struct {
	mu         sync.RWMutex
	components map[string]*ComponentHealth
	config     TrackerConfig
	callbacks  []StateChangeCallback
}

// NewTracker creates a health tracker with the given thresholds.
func NewTracker(config TrackerConfig) *Tracker {
	if config.ErrorThreshold <= 0 {
		config.ErrorThreshold = DefaultConfig().ErrorThreshold
	}
	if config.UnavailableThreshold <= 0 {
		config.UnavailableThreshold = DefaultConfig().UnavailableThreshold
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultConfig().CheckInterval
	}
	return &Tracker{
		components: make(map[string]*ComponentHealth),
		config:     config,
	}
}

// Register adds a component to the tracker in the healthy state. Registering
// the same component twice is a no-op.
func (t *Tracker) Register(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.components[name]; !exists {
		now := time.Now()
		t.components[name] = &ComponentHealth{
			Name:            name,
			State:           StateHealthy,
			LastStateChange: now,
			LastCheck:       now,
		}
	}
}

// RecordSuccess records a successful operation for a component. Each success
// pays down one consecutive error; a component recovers to healthy once its
// error count reaches zero.
func (t *Tracker) RecordSuccess(component string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, exists := t.components[component]
	if !exists {
		return
	}

	oldState := ch.State
	ch.LastCheck = time.Now()

	if ch.ConsecutiveErrors > 0 {
		ch.ConsecutiveErrors--
		if ch.ConsecutiveErrors == 0 && ch.State != StateHealthy {
			t.transition(ch, StateHealthy)
		}
	}

	if oldState != ch.State {
		t.notify(component, oldState, ch.State, nil)
	}
}

// RecordError records a failed operation for a component and downgrades its
// state once the configured thresholds are crossed. Write failures move the
// component to read-only instead of degraded.
func (t *Tracker) RecordError(component string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, exists := t.components[component]
	if !exists {
		return
	}

	oldState := ch.State
	ch.LastCheck = time.Now()
	ch.ConsecutiveErrors++
	if err != nil {
		ch.LastErrorMessage = err.Error()
	}

	newState := ch.State
	switch {
	case ch.ConsecutiveErrors >= t.config.UnavailableThreshold:
		newState = StateUnavailable
	case ch.ConsecutiveErrors >= t.config.ErrorThreshold:
		if isWriteError(err) {
			newState = StateReadOnly
		} else {
			newState = StateDegraded
		}
	}

	if newState != oldState {
		t.transition(ch, newState)
		t.notify(component, oldState, newState, err)
	}
}

// GetState returns the current health state of a component. Unregistered
// components report unavailable.
func (t *Tracker) GetState(component string) State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if ch, exists := t.components[component]; exists {
		return ch.State
	}
	return StateUnavailable
}

// GetComponentHealth returns a copy of a component's health record.
func (t *Tracker) GetComponentHealth(component string) (ComponentHealth, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ch, exists := t.components[component]
	if !exists {
		return ComponentHealth{}, fmt.Errorf("component %s not registered", component)
	}
	return *ch, nil
}

// GetAllComponents returns copies of all component health records keyed by name.
func (t *Tracker) GetAllComponents() map[string]ComponentHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]ComponentHealth, len(t.components))
	for name, ch := range t.components {
		result[name] = *ch
	}
	return result
}

// GetOverallHealth returns the worst state across all registered components.
// A tracker with no components is healthy.
func (t *Tracker) GetOverallHealth() State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	overall := StateHealthy
	for _, ch := range t.components {
		if ch.State > overall {
			overall = ch.State
		}
	}
	return overall
}

// IsHealthy reports whether a component is fully healthy.
func (t *Tracker) IsHealthy(component string) bool {
	return t.GetState(component) == StateHealthy
}

// CanRead reports whether the component can still serve read operations.
func (t *Tracker) CanRead(component string) bool {
	return t.GetState(component) != StateUnavailable
}

// CanWrite reports whether the component can accept write operations.
func (t *Tracker) CanWrite(component string) bool {
	state := t.GetState(component)
	return state == StateHealthy || state == StateDegraded
}

// OnStateChange registers a callback invoked on every component state change.
func (t *Tracker) OnStateChange(callback StateChangeCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.callbacks = append(t.callbacks, callback)
}

// transition moves a component to a new state. Caller holds the lock.
func (t *Tracker) transition(ch *ComponentHealth, newState State) {
	ch.State = newState
	ch.LastStateChange = time.Now()

	if newState == StateHealthy {
		ch.ConsecutiveErrors = 0
		ch.LastErrorMessage = ""
	}
}

// notify fans the state change out to callbacks. Caller holds the lock.
func (t *Tracker) notify(component string, oldState, newState State, err error) {
	for _, callback := range t.callbacks {
		go callback(component, oldState, newState, err)
	}
}

// isWriteError reports whether an error indicates writes are failing while
// reads may still work.
func isWriteError(err error) bool {
	if err == nil {
		return false
	}

	var ctErr *errors.CacheTuneError
	if stderr.As(err, &ctErr) {
		switch ctErr.Code {
		case errors.ErrCodeStorageWrite, errors.ErrCodeAccessDenied:
			return true
		}
	}
	return false
}

// StartChecks runs periodic probe rounds against all registered components
// until the context is canceled. checkFn is called once per component per
// round; a nil return records a success, anything else records an error.
func (t *Tracker) StartChecks(ctx context.Context, checkFn func(ctx context.Context, component string) error) {
	ticker := time.NewTicker(t.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.runChecks(ctx, checkFn)
		}
	}
}

func (t *Tracker) runChecks(ctx context.Context, checkFn func(ctx context.Context, component string) error) {
	t.mu.RLock()
	components := make([]string, 0, len(t.components))
	for name := range t.components {
		components = append(components, name)
	}
	t.mu.RUnlock()

	for _, component := range components {
		if err := checkFn(ctx, component); err != nil {
			t.RecordError(component, err)
		} else {
			t.RecordSuccess(component)
		}
	}
}
