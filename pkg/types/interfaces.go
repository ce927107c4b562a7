package types

import (
	"context"
	"time"
)

// Clock supplies the optimizer's notion of "now". The engine reads it once
// per call so decisions stay deterministic under a fake clock in tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface
type ClockFunc func() time.Time

// Now implements Clock
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns a Clock backed by time.Now
func SystemClock() Clock {
	return ClockFunc(time.Now)
}

// Store defines the persistent key-value store the integration layer drives
// with the optimizer's decisions. The optimizer core never calls it directly.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Refresh re-arms the backend's expiry for a key after a TTL
	// adjustment. Backends without native expiry may treat it as a no-op
	// and rely on eviction passes instead.
	Refresh(ctx context.Context, key string, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Close(ctx context.Context) error
}

// MetadataStore persists CacheItemMetadata per key across process restarts.
// The integration layer loads it into a Snapshot before calling Optimize and
// writes engine-driven TTL changes back.
type MetadataStore interface {
	Load(ctx context.Context) (Snapshot, error)
	Get(ctx context.Context, key string) (CacheItemMetadata, bool, error)
	Put(ctx context.Context, meta CacheItemMetadata) error
	Delete(ctx context.Context, key string) error
	Sync(ctx context.Context) error
	Close(ctx context.Context) error
}

// Optimizer is the decision engine consumed by the integration layer. All
// methods are call-and-return and perform no I/O; Optimize returns its
// decisions as data for the host to execute.
type Optimizer interface {
	RecordItemCreation(key string, size int64, dataType DataType, priority Priority)
	RecordItemAccess(key string, previousKey string)
	RecordItemRemoval(key string)
	RecordCacheMiss(key string)
	UpdateHitRate(rate float64)
	Optimize(snapshot Snapshot) OptimizationResult
	SelectItemsForPrefetch(currentKey string, limit int) []string
	RecommendedPrefetchLimit(base int) int
	IsItemProtected(key string) bool
	Stats() OptimizerStats
}

// MetricsCollector defines the metrics collection interface the integration
// layer reports optimizer outcomes to.
type MetricsCollector interface {
	RecordHit(dataType DataType)
	RecordMiss(dataType DataType)
	RecordEviction(dataType DataType, size int64)
	RecordTTLAdjustment(extended bool)
	RecordPrefetchRecommendation(count int)
	ObserveHitRate(rate float64)
	ObserveOptimizeDuration(d time.Duration)
}
