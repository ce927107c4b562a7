package types

import (
	"time"
)

// Priority classifies how valuable a cached item is to its owner. Higher
// priority lowers an item's removal desirability monotonically.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns the string representation of the priority
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParsePriority parses a string priority, defaulting to medium
func ParsePriority(s string) Priority {
	switch s {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	case "critical":
		return PriorityCritical
	default:
		return PriorityMedium
	}
}

// MaxPriority is the highest ordinal priority rank, used for score normalization.
const MaxPriority = PriorityCritical

// DataType is a closed classification label for cached payloads. It is used
// only for statistics and metric labels, never for eviction decisions.
type DataType string

const (
	DataTypeObject   DataType = "object"
	DataTypeMetadata DataType = "metadata"
	DataTypeListing  DataType = "listing"
	DataTypeBlob     DataType = "blob"
	DataTypeUnknown  DataType = "unknown"
)

// Strategy selects the eviction discipline the optimizer scores with.
type Strategy string

const (
	StrategyLRU      Strategy = "lru"
	StrategyLFU      Strategy = "lfu"
	StrategySLRU     Strategy = "slru"
	StrategyFIFO     Strategy = "fifo"
	StrategyAdaptive Strategy = "adaptive"
)

// Segment identifies which SLRU population a key currently belongs to.
type Segment int

const (
	SegmentNone Segment = iota
	SegmentProbationary
	SegmentProtected
)

// String returns the string representation of the segment
func (s Segment) String() string {
	switch s {
	case SegmentProbationary:
		return "probationary"
	case SegmentProtected:
		return "protected"
	default:
		return "none"
	}
}

// CacheItemMetadata describes one cached item. It is owned by the caller and
// passed into the optimizer by value as part of a snapshot; the optimizer
// never mutates a caller's copy.
type CacheItemMetadata struct {
	Key          string        `json:"key" msgpack:"key"`
	Size         int64         `json:"size" msgpack:"size"`
	AccessCount  int64         `json:"access_count" msgpack:"access_count"`
	LastAccessed time.Time     `json:"last_accessed" msgpack:"last_accessed"`
	Created      time.Time     `json:"created" msgpack:"created"`
	TTL          time.Duration `json:"ttl" msgpack:"ttl"`
	DataType     DataType      `json:"data_type" msgpack:"data_type"`
	Priority     Priority      `json:"priority" msgpack:"priority"`
}

// Expired reports whether the item's TTL has elapsed at the given instant.
func (m *CacheItemMetadata) Expired(now time.Time) bool {
	if m.TTL <= 0 {
		return false
	}
	return now.Sub(m.Created) > m.TTL
}

// Snapshot is the caller-supplied view of all cached item metadata handed to
// Optimize. Keys are unique across the snapshot.
type Snapshot []CacheItemMetadata

// TotalSize returns the sum of item sizes in the snapshot
func (s Snapshot) TotalSize() int64 {
	var total int64
	for i := range s {
		total += s[i].Size
	}
	return total
}

// OptimizationResult carries the decisions of one Optimize call. The engine
// performs no I/O itself; the host executes removals and TTL refreshes
// against its stores using this result.
type OptimizationResult struct {
	RemovedItems   []CacheItemMetadata      `json:"removed_items"`
	TTLAdjustments map[string]time.Duration `json:"ttl_adjustments"`
	FreedSpace     int64                    `json:"freed_space"`
	StrategyUsed   Strategy                 `json:"strategy_used"`
}

// OptimizerStats represents optimizer counters exposed for monitoring
type OptimizerStats struct {
	Hits            uint64  `json:"hits"`
	Misses          uint64  `json:"misses"`
	HitRate         float64 `json:"hit_rate"`
	Evictions       uint64  `json:"evictions"`
	FreedBytes      int64   `json:"freed_bytes"`
	TTLExtensions   uint64  `json:"ttl_extensions"`
	TTLReductions   uint64  `json:"ttl_reductions"`
	Promotions      uint64  `json:"promotions"`
	Demotions       uint64  `json:"demotions"`
	TrackedKeys     int     `json:"tracked_keys"`
	ProtectedKeys   int     `json:"protected_keys"`
	PrefetchQueries uint64  `json:"prefetch_queries"`
}
