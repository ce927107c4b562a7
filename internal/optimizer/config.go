package optimizer

import (
	"time"

	"github.com/cachetune/cachetune/pkg/errors"
	"github.com/cachetune/cachetune/pkg/types"
)

// Config represents optimizer configuration. It is supplied at construction
// and immutable for the engine's lifetime.
type Config struct {
	// Strategy selects the eviction discipline. LRU, LFU and FIFO are
	// degenerate single-factor configurations of the same scoring model;
	// Adaptive picks a sub-strategy from the observed hit rate.
	Strategy types.Strategy `yaml:"strategy"`

	// Budgets
	MaxSize  int64 `yaml:"max_size"`
	MaxCount int   `yaml:"max_count"`

	// ReductionTarget is the fraction of current size to reclaim when over
	// budget, in (0, 1].
	ReductionTarget float64 `yaml:"reduction_target"`

	// SLRUProtectedRatio is the fraction of MaxCount reserved for the
	// protected segment, in [0, 1].
	SLRUProtectedRatio float64 `yaml:"slru_protected_ratio"`

	// TTL tuning
	TTLExtensionFactor float64       `yaml:"ttl_extension_factor"` // >= 1
	MaxTTLMultiple     float64       `yaml:"max_ttl_multiple"`     // cap on TTL growth, multiple of original TTL
	DefaultTTL         time.Duration `yaml:"default_ttl"`          // applied to implicitly created items

	// Scoring weights, each >= 0. They need not sum to 1; the engine
	// normalizes internally.
	PriorityWeight  float64 `yaml:"priority_weight"`
	AgeWeight       float64 `yaml:"age_weight"`
	FrequencyWeight float64 `yaml:"frequency_weight"`
	SizeWeight      float64 `yaml:"size_weight"`

	// Feature toggles
	LearningEnabled    bool `yaml:"learning_enabled"`
	PrefetchingEnabled bool `yaml:"prefetching_enabled"`

	// MaxNeighbors bounds the co-access adjacency list per key.
	MaxNeighbors int `yaml:"max_neighbors"`

	// Clock supplies "now"; tests inject a fake. Defaults to the system clock.
	Clock types.Clock `yaml:"-"`
}

// DefaultConfig returns a sensible default optimizer configuration
func DefaultConfig() *Config {
	return &Config{
		Strategy:           types.StrategySLRU,
		MaxSize:            512 * 1024 * 1024, // 512MB
		MaxCount:           100000,
		ReductionTarget:    0.25,
		SLRUProtectedRatio: 0.5,
		TTLExtensionFactor: 1.5,
		MaxTTLMultiple:     4.0,
		DefaultTTL:         5 * time.Minute,
		PriorityWeight:     0.25,
		AgeWeight:          0.25,
		FrequencyWeight:    0.25,
		SizeWeight:         0.25,
		LearningEnabled:    true,
		PrefetchingEnabled: true,
		MaxNeighbors:       8,
	}
}

// Validate checks construction-time invariants. Violations fail fast and
// permanently; the engine refuses to initialize.
func (c *Config) Validate() error {
	if c.MaxSize <= 0 {
		return errors.NewError(errors.ErrCodeConfigValidation, "max_size must be positive").
			WithComponent("optimizer").WithDetail("max_size", c.MaxSize)
	}
	if c.MaxCount <= 0 {
		return errors.NewError(errors.ErrCodeConfigValidation, "max_count must be positive").
			WithComponent("optimizer").WithDetail("max_count", c.MaxCount)
	}
	if c.ReductionTarget <= 0 || c.ReductionTarget > 1 {
		return errors.NewError(errors.ErrCodeConfigValidation, "reduction_target must be in (0, 1]").
			WithComponent("optimizer").WithDetail("reduction_target", c.ReductionTarget)
	}
	if c.SLRUProtectedRatio < 0 || c.SLRUProtectedRatio > 1 {
		return errors.NewError(errors.ErrCodeConfigValidation, "slru_protected_ratio must be in [0, 1]").
			WithComponent("optimizer").WithDetail("slru_protected_ratio", c.SLRUProtectedRatio)
	}
	if c.TTLExtensionFactor < 1 {
		return errors.NewError(errors.ErrCodeConfigValidation, "ttl_extension_factor must be >= 1").
			WithComponent("optimizer").WithDetail("ttl_extension_factor", c.TTLExtensionFactor)
	}
	if c.MaxTTLMultiple < 1 {
		return errors.NewError(errors.ErrCodeConfigValidation, "max_ttl_multiple must be >= 1").
			WithComponent("optimizer").WithDetail("max_ttl_multiple", c.MaxTTLMultiple)
	}
	if c.PriorityWeight < 0 || c.AgeWeight < 0 || c.FrequencyWeight < 0 || c.SizeWeight < 0 {
		return errors.NewError(errors.ErrCodeConfigValidation, "scoring weights must be non-negative").
			WithComponent("optimizer")
	}
	switch c.Strategy {
	case types.StrategyLRU, types.StrategyLFU, types.StrategySLRU, types.StrategyFIFO, types.StrategyAdaptive:
	default:
		return errors.NewError(errors.ErrCodeConfigValidation, "unknown strategy").
			WithComponent("optimizer").WithDetail("strategy", string(c.Strategy))
	}
	return nil
}

// applyDefaults fills zero values that have usable defaults. Budget and range
// fields are deliberately not defaulted; Validate rejects them instead.
func (c *Config) applyDefaults() {
	if c.MaxNeighbors <= 0 {
		c.MaxNeighbors = 8
	}
	if c.MaxTTLMultiple == 0 {
		c.MaxTTLMultiple = 4.0
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 5 * time.Minute
	}
	if c.Strategy == "" {
		c.Strategy = types.StrategySLRU
	}
	if c.Clock == nil {
		c.Clock = types.SystemClock()
	}
}
