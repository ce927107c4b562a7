package optimizer

import (
	"math"
)

// Hit-rate bands that drive weight nudges. Below lowHitRate the controller
// leans on frequency and widens prefetch breadth; above highHitRate it decays
// accumulated drift back toward the caller baseline.
const (
	lowHitRate  = 0.5
	highHitRate = 0.85

	// nudgeStep is the per-update additive adjustment to a weight.
	nudgeStep = 0.05

	// maxDrift bounds how far any weight may move from its baseline, keeping
	// scores well-defined however long learning runs.
	maxDrift = 1.0

	// decayRate pulls drifted weights back toward baseline on each stable
	// high-hit-rate observation.
	decayRate = 0.2

	// maxPrefetchBoost caps the extra recommendation breadth granted under a
	// sustained low hit rate.
	maxPrefetchBoost = 3
)

// weightController consumes the rolling hit rate and nudges the scoring
// weights. All nudges are clamped: weights never go negative and never move
// more than maxDrift from the caller-supplied baseline. Not safe for
// concurrent use; the engine's lock guards it.
type weightController struct {
	baseline weights
	current  weights
	learning bool

	lastRate      float64
	prefetchBoost int
}

func newWeightController(baseline weights, learning bool) *weightController {
	base := baseline.clampNonNegative()
	return &weightController{
		baseline: base,
		current:  base,
		learning: learning,
	}
}

// update consumes one observed hit rate in [0, 1]. Out-of-range values are
// clamped rather than rejected.
func (c *weightController) update(rate float64) {
	rate = math.Max(0, math.Min(1, rate))
	c.lastRate = rate

	if !c.learning {
		return
	}

	switch {
	case rate < lowHitRate:
		// Misses dominate: favor frequency so proven-hot items survive, and
		// recommend more prefetch candidates.
		c.current.frequency = c.clamp(c.current.frequency+nudgeStep, c.baseline.frequency)
		c.current.age = c.clamp(c.current.age-nudgeStep/2, c.baseline.age)
		if c.prefetchBoost < maxPrefetchBoost {
			c.prefetchBoost++
		}
	case rate > highHitRate:
		// Healthy cache: decay drift back toward the baseline.
		c.current.priority = decayToward(c.current.priority, c.baseline.priority)
		c.current.age = decayToward(c.current.age, c.baseline.age)
		c.current.frequency = decayToward(c.current.frequency, c.baseline.frequency)
		c.current.size = decayToward(c.current.size, c.baseline.size)
		if c.prefetchBoost > 0 {
			c.prefetchBoost--
		}
	}

	c.current = c.current.clampNonNegative()
}

// clamp bounds a nudged weight to [max(0, base-maxDrift), base+maxDrift]
func (c *weightController) clamp(value, base float64) float64 {
	lo := math.Max(0, base-maxDrift)
	hi := base + maxDrift
	return math.Max(lo, math.Min(hi, value))
}

func decayToward(value, base float64) float64 {
	return value + (base-value)*decayRate
}

// weights returns the current (possibly drifted) weight vector
func (c *weightController) weights() weights {
	return c.current
}

// hitRate returns the last observed hit rate
func (c *weightController) hitRate() float64 {
	return c.lastRate
}

// extraPrefetchBreadth reports how many additional prefetch recommendations
// the controller currently considers worthwhile.
func (c *weightController) extraPrefetchBreadth() int {
	return c.prefetchBoost
}
