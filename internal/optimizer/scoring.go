package optimizer

import (
	"math"
	"time"

	"github.com/cachetune/cachetune/pkg/types"
)

// protectedDampening is the multiplicative factor applied to the removal
// desirability of protected items. SLRU prefers evicting probationary items,
// so protected scores are damped below their probationary equivalents.
const protectedDampening = 0.5

// weights holds the four scoring-factor multipliers. Values are kept in
// caller-supplied scale; normalized() produces the unit-sum form the scoring
// functions consume.
type weights struct {
	priority  float64
	age       float64
	frequency float64
	size      float64
}

// normalized scales the weights to sum to 1. A zero weight vector normalizes
// to equal quarters so score computation stays well-defined.
func (w weights) normalized() weights {
	sum := w.priority + w.age + w.frequency + w.size
	if sum <= 0 {
		return weights{priority: 0.25, age: 0.25, frequency: 0.25, size: 0.25}
	}
	return weights{
		priority:  w.priority / sum,
		age:       w.age / sum,
		frequency: w.frequency / sum,
		size:      w.size / sum,
	}
}

// clampNonNegative floors each weight at zero
func (w weights) clampNonNegative() weights {
	return weights{
		priority:  math.Max(0, w.priority),
		age:       math.Max(0, w.age),
		frequency: math.Max(0, w.frequency),
		size:      math.Max(0, w.size),
	}
}

// scoreContext carries the per-Optimize inputs the scoring functions need so
// they stay pure and deterministic for a given snapshot.
type scoreContext struct {
	now             time.Time
	weights         weights
	strategy        types.Strategy
	maxObservedSize int64
}

// removalScore computes removal desirability for one item: higher means more
// eligible for eviction.
//
// The recency term grows with time since last access so a pure age weighting
// degenerates to least-recently-used order; FIFO measures from creation
// instead. The frequency term subtracts, keeping repeatedly accessed items,
// and is log-damped so runaway counters cannot dominate. Larger items
// contribute more desirability since evicting one frees more space. Higher
// priority subtracts desirability monotonically. Protected items are damped
// by a fixed factor below 1.
func removalScore(item *types.CacheItemMetadata, segment types.Segment, sc *scoreContext) float64 {
	w := sc.weights.normalized()

	since := item.LastAccessed
	if sc.strategy == types.StrategyFIFO {
		since = item.Created
	}
	ageSeconds := sc.now.Sub(since).Seconds()
	if ageSeconds < 0 {
		ageSeconds = 0
	}
	// Maps [0, inf) onto [0, 1): recently touched items score near zero.
	staleness := ageSeconds / (1 + ageSeconds)

	frequency := math.Log1p(float64(item.AccessCount))

	var sizeNorm float64
	if sc.maxObservedSize > 0 {
		sizeNorm = float64(item.Size) / float64(sc.maxObservedSize)
	}

	priorityCalm := 1 - float64(item.Priority)/float64(types.MaxPriority)

	score := w.age*staleness + w.size*sizeNorm + w.priority*priorityCalm - w.frequency*frequency

	if segment == types.SegmentProtected {
		score *= protectedDampening
	}
	return score
}

// protectionScore computes how worthwhile it is to keep an item in the
// protected segment. It is the inverse ordering of removal desirability,
// evaluated without the segment dampening so probationary challengers and
// protected incumbents compare on equal footing.
func protectionScore(item *types.CacheItemMetadata, sc *scoreContext) float64 {
	return -removalScore(item, types.SegmentProbationary, sc)
}

// effectiveWeights returns the weight vector for the resolved strategy. The
// degenerate strategies collapse the model to a single factor.
func effectiveWeights(strategy types.Strategy, base weights) weights {
	switch strategy {
	case types.StrategyLRU, types.StrategyFIFO:
		return weights{age: 1}
	case types.StrategyLFU:
		return weights{frequency: 1}
	default:
		return base
	}
}

// lessCandidate orders eviction candidates deterministically: descending
// removal score, ties broken by (lastAccessed, key) ascending.
func lessCandidate(a, b *candidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if !a.meta.LastAccessed.Equal(b.meta.LastAccessed) {
		return a.meta.LastAccessed.Before(b.meta.LastAccessed)
	}
	return a.meta.Key < b.meta.Key
}

// candidate pairs an item with its computed score during an Optimize pass
type candidate struct {
	meta    types.CacheItemMetadata
	segment types.Segment
	score   float64
	expired bool
}
