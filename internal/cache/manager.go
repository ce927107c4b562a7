package cache

import (
	"context"
	"sync"
	"time"

	"github.com/cachetune/cachetune/pkg/errors"
	"github.com/cachetune/cachetune/pkg/health"
	"github.com/cachetune/cachetune/pkg/retry"
	"github.com/cachetune/cachetune/pkg/types"
	"github.com/cachetune/cachetune/pkg/utils"
)

// ManagerOptions wires the manager's collaborators. Optimizer, Store and
// Metadata are required; the rest default to safe no-op or stock
// implementations.
type ManagerOptions struct {
	Optimizer types.Optimizer
	Store     types.Store
	Metadata  types.MetadataStore
	Metrics   types.MetricsCollector
	Logger    *utils.StructuredLogger
	Retryer   *retry.Retryer
	Clock     types.Clock

	// Health, when set, receives a success or error record for every store
	// and metadata operation the manager performs.
	Health *health.Tracker

	// DefaultTTL is assigned to items stored without an explicit TTL
	DefaultTTL time.Duration

	// PrefetchLimit bounds Prefetch recommendations before the optimizer's
	// hit-rate scaling is applied.
	PrefetchLimit int
}

// SetOptions describes one item being stored
type SetOptions struct {
	TTL      time.Duration
	DataType types.DataType
	Priority types.Priority
}

// Manager drives a value store and a metadata store with the optimizer's
// decisions. It records every cache event with the optimizer, executes the
// removals and TTL refreshes Optimize returns, and reports outcomes to
// the metrics collector.
type Manager struct {
	optimizer types.Optimizer
	store     types.Store
	metadata  types.MetadataStore
	metrics   types.MetricsCollector
	logger    *utils.StructuredLogger
	retryer   *retry.Retryer
	clock     types.Clock
	health    *health.Tracker

	defaultTTL    time.Duration
	prefetchLimit int

	mu     sync.Mutex
	closed bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// noopMetrics satisfies types.MetricsCollector for managers built
// without a collector.
type noopMetrics struct{}

func (noopMetrics) RecordHit(types.DataType)              {}
func (noopMetrics) RecordMiss(types.DataType)             {}
func (noopMetrics) RecordEviction(types.DataType, int64)  {}
func (noopMetrics) RecordTTLAdjustment(bool)              {}
func (noopMetrics) RecordPrefetchRecommendation(int)      {}
func (noopMetrics) ObserveHitRate(float64)                {}
func (noopMetrics) ObserveOptimizeDuration(time.Duration) {}

// NewManager creates a cache manager from its collaborators
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Optimizer == nil {
		return nil, errors.NewError(errors.ErrCodeMissingConfig, "optimizer is required").
			WithComponent("cache")
	}
	if opts.Store == nil {
		return nil, errors.NewError(errors.ErrCodeMissingConfig, "store is required").
			WithComponent("cache")
	}
	if opts.Metadata == nil {
		return nil, errors.NewError(errors.ErrCodeMissingConfig, "metadata store is required").
			WithComponent("cache")
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = utils.NewStructuredLogger(nil)
		if err != nil {
			return nil, err
		}
	}
	retryer := opts.Retryer
	if retryer == nil {
		retryer = retry.New(retry.DefaultConfig())
	}
	clock := opts.Clock
	if clock == nil {
		clock = types.SystemClock()
	}
	defaultTTL := opts.DefaultTTL
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	prefetchLimit := opts.PrefetchLimit
	if prefetchLimit < 0 {
		prefetchLimit = 0
	}

	if opts.Health != nil {
		opts.Health.Register(componentStore)
		opts.Health.Register(componentMetadata)
	}

	return &Manager{
		optimizer:     opts.Optimizer,
		store:         opts.Store,
		metadata:      opts.Metadata,
		metrics:       metrics,
		logger:        logger.WithComponent("cache"),
		retryer:       retryer,
		clock:         clock,
		health:        opts.Health,
		defaultTTL:    defaultTTL,
		prefetchLimit: prefetchLimit,
	}, nil
}

// health tracker component names
const (
	componentStore    = "store"
	componentMetadata = "metadata"
)

// noteHealth feeds an operation outcome into the health tracker, if any.
func (m *Manager) noteHealth(component string, err error) {
	if m.health == nil {
		return
	}
	if err != nil {
		m.health.RecordError(component, err)
	} else {
		m.health.RecordSuccess(component)
	}
}

// Get retrieves a cached value. previousKey names the key the caller
// accessed immediately before this one and feeds co-access tracking; it
// may be empty.
func (m *Manager) Get(ctx context.Context, key string, previousKey string) ([]byte, bool, error) {
	var (
		value []byte
		found bool
	)
	err := m.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		var err error
		value, found, err = m.store.Get(ctx, key)
		return err
	})
	m.noteHealth(componentStore, err)
	if err != nil {
		return nil, false, err
	}

	if !found {
		m.optimizer.RecordCacheMiss(key)
		m.metrics.RecordMiss(m.dataTypeOf(ctx, key))
		return nil, false, nil
	}

	m.optimizer.RecordItemAccess(key, previousKey)
	meta, ok, err := m.metadata.Get(ctx, key)
	if err != nil {
		m.noteHealth(componentMetadata, err)
		return nil, false, err
	}
	if ok {
		meta.AccessCount++
		meta.LastAccessed = m.clock.Now()
		if err := m.metadata.Put(ctx, meta); err != nil {
			m.noteHealth(componentMetadata, err)
			return nil, false, err
		}
		m.noteHealth(componentMetadata, nil)
		m.metrics.RecordHit(meta.DataType)
	} else {
		m.metrics.RecordHit(types.DataTypeUnknown)
	}
	return value, true, nil
}

// Set stores a value and registers it with the optimizer
func (m *Manager) Set(ctx context.Context, key string, value []byte, opts SetOptions) error {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	dataType := opts.DataType
	if dataType == "" {
		dataType = types.DataTypeObject
	}

	err := m.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		return m.store.Set(ctx, key, value, ttl)
	})
	m.noteHealth(componentStore, err)
	if err != nil {
		return err
	}

	now := m.clock.Now()
	meta := types.CacheItemMetadata{
		Key:          key,
		Size:         int64(len(value)),
		AccessCount:  1,
		LastAccessed: now,
		Created:      now,
		TTL:          ttl,
		DataType:     dataType,
		Priority:     opts.Priority,
	}
	err = m.metadata.Put(ctx, meta)
	m.noteHealth(componentMetadata, err)
	if err != nil {
		return err
	}

	m.optimizer.RecordItemCreation(key, meta.Size, dataType, opts.Priority)
	return nil
}

// Remove deletes a value and forgets its tracking state
func (m *Manager) Remove(ctx context.Context, key string) error {
	err := m.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		return m.store.Remove(ctx, key)
	})
	m.noteHealth(componentStore, err)
	if err != nil {
		return err
	}
	if err := m.metadata.Delete(ctx, key); err != nil {
		m.noteHealth(componentMetadata, err)
		return err
	}
	m.optimizer.RecordItemRemoval(key)
	return nil
}

// Prefetch returns keys predicted to be accessed after currentKey, in
// descending co-access strength. The optimizer scales the configured
// limit down when the hit rate is already high.
func (m *Manager) Prefetch(currentKey string) []string {
	limit := m.optimizer.RecommendedPrefetchLimit(m.prefetchLimit)
	keys := m.optimizer.SelectItemsForPrefetch(currentKey, limit)
	m.metrics.RecordPrefetchRecommendation(len(keys))
	return keys
}

// Maintain runs one optimization pass: it snapshots the metadata store,
// asks the optimizer for decisions, and executes the removals and TTL
// refreshes it returns.
func (m *Manager) Maintain(ctx context.Context) (types.OptimizationResult, error) {
	snapshot, err := m.metadata.Load(ctx)
	if err != nil {
		return types.OptimizationResult{}, err
	}

	start := time.Now()
	result := m.optimizer.Optimize(snapshot)
	m.metrics.ObserveOptimizeDuration(time.Since(start))

	for _, item := range result.RemovedItems {
		err := m.retryer.DoWithContext(ctx, func(ctx context.Context) error {
			return m.store.Remove(ctx, item.Key)
		})
		m.noteHealth(componentStore, err)
		if err != nil {
			m.logger.Error("failed to evict item", map[string]interface{}{
				"key":   item.Key,
				"error": err.Error(),
			})
			continue
		}
		if err := m.metadata.Delete(ctx, item.Key); err != nil {
			return result, err
		}
		m.optimizer.RecordItemRemoval(item.Key)
		m.metrics.RecordEviction(item.DataType, item.Size)
	}

	for key, newTTL := range result.TTLAdjustments {
		meta, ok, err := m.metadata.Get(ctx, key)
		if err != nil {
			return result, err
		}
		if !ok {
			continue
		}
		m.metrics.RecordTTLAdjustment(newTTL > meta.TTL)
		meta.TTL = newTTL
		if err := m.metadata.Put(ctx, meta); err != nil {
			return result, err
		}
		err = m.retryer.DoWithContext(ctx, func(ctx context.Context) error {
			return m.store.Refresh(ctx, key, newTTL)
		})
		if err != nil {
			m.logger.Warn("failed to refresh backend expiry", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}

	if err := m.metadata.Sync(ctx); err != nil {
		m.noteHealth(componentMetadata, err)
		return result, err
	}
	m.noteHealth(componentMetadata, nil)

	stats := m.optimizer.Stats()
	m.optimizer.UpdateHitRate(stats.HitRate)
	m.metrics.ObserveHitRate(stats.HitRate)

	m.logger.Debug("optimization pass complete", map[string]interface{}{
		"strategy":        string(result.StrategyUsed),
		"evicted":         len(result.RemovedItems),
		"freed_bytes":     result.FreedSpace,
		"ttl_adjustments": len(result.TTLAdjustments),
		"hit_rate":        stats.HitRate,
	})
	return result, nil
}

// Start launches periodic maintenance. It is a no-op if already running.
func (m *Manager) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.NewError(errors.ErrCodeInvalidConfig, "maintenance interval must be positive").
			WithComponent("cache")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.NewError(errors.ErrCodeShutdownInProgress, "manager is closed").
			WithComponent("cache")
	}
	if m.stopCh != nil {
		return nil
	}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go m.maintenanceLoop(ctx, interval, m.stopCh, m.doneCh)
	return nil
}

func (m *Manager) maintenanceLoop(ctx context.Context, interval time.Duration, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := m.Maintain(ctx); err != nil {
				m.logger.Error("maintenance pass failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts periodic maintenance without closing the stores
func (m *Manager) Stop() {
	m.mu.Lock()
	stopCh, doneCh := m.stopCh, m.doneCh
	m.stopCh, m.doneCh = nil, nil
	m.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}
}

// Close stops maintenance, flushes metadata and releases both stores
func (m *Manager) Close(ctx context.Context) error {
	m.Stop()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	var firstErr error
	if err := m.metadata.Close(ctx); err != nil {
		firstErr = err
	}
	if err := m.store.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Stats returns the optimizer's counters
func (m *Manager) Stats() types.OptimizerStats {
	return m.optimizer.Stats()
}

// dataTypeOf classifies a miss for metrics. Metadata may still exist for
// keys whose value expired out of the backend.
func (m *Manager) dataTypeOf(ctx context.Context, key string) types.DataType {
	if meta, ok, err := m.metadata.Get(ctx, key); err == nil && ok {
		return meta.DataType
	}
	return types.DataTypeUnknown
}
