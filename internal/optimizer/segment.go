package optimizer

import (
	"sort"

	"github.com/cachetune/cachetune/pkg/types"
)

// segmentTracker maintains per-key SLRU segment membership and the
// promotion/demotion rules between the probationary and protected
// populations. It is not safe for concurrent use; the engine's lock guards it.
type segmentTracker struct {
	segments     map[string]types.Segment
	protected    map[string]struct{}
	protectedCap int

	promotions uint64
	demotions  uint64
}

func newSegmentTracker(protectedCap int) *segmentTracker {
	if protectedCap < 0 {
		protectedCap = 0
	}
	return &segmentTracker{
		segments:     make(map[string]types.Segment),
		protected:    make(map[string]struct{}),
		protectedCap: protectedCap,
	}
}

// segment returns the current membership for key, SegmentNone if unseen
func (t *segmentTracker) segment(key string) types.Segment {
	return t.segments[key]
}

// assign registers a key as probationary. Re-registration of a protected key
// demotes it back to probationary (last writer wins on creation semantics).
func (t *segmentTracker) assign(key string) {
	delete(t.protected, key)
	t.segments[key] = types.SegmentProbationary
}

// remove deletes the segment assignment for an evicted or host-removed key
func (t *segmentTracker) remove(key string) {
	delete(t.protected, key)
	delete(t.segments, key)
}

// promote moves a probationary key into the protected segment unconditionally.
// Callers are responsible for capacity checks.
func (t *segmentTracker) promote(key string) {
	if t.segments[key] == types.SegmentProtected {
		return
	}
	t.segments[key] = types.SegmentProtected
	t.protected[key] = struct{}{}
	t.promotions++
}

// demote moves a protected key back to probationary
func (t *segmentTracker) demote(key string) {
	if t.segments[key] != types.SegmentProtected {
		return
	}
	t.segments[key] = types.SegmentProbationary
	delete(t.protected, key)
	t.demotions++
}

// protectedSize returns the current protected population
func (t *segmentTracker) protectedSize() int {
	return len(t.protected)
}

// hasCapacity reports whether the protected segment can absorb another key
// without a demotion.
func (t *segmentTracker) hasCapacity() bool {
	return len(t.protected) < t.protectedCap
}

// protectedFloor computes the minimum protected population an eviction pass
// may drain the segment to while probationary items remain.
func protectedFloor(protectedCap int, reductionTarget float64) int {
	floor := int(float64(protectedCap) * (1 - reductionTarget))
	if floor < 0 {
		floor = 0
	}
	return floor
}

// weakestProtected returns the protected key with the highest removal
// desirability, scored by lookup. Only the protected set is scanned, so the
// cost is bounded by the protected capacity regardless of how many keys the
// tracker has seen. Iteration order is made deterministic by sorting keys.
// Returns "" when the protected segment is empty.
func (t *segmentTracker) weakestProtected(lookup func(key string) (types.CacheItemMetadata, bool), sc *scoreContext) (string, float64) {
	keys := make([]string, 0, len(t.protected))
	for key := range t.protected {
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return "", 0
	}
	sort.Strings(keys)

	weakestKey := ""
	weakestScore := 0.0
	for _, key := range keys {
		meta, ok := lookup(key)
		if !ok {
			continue
		}
		// Compare without segment dampening so the challenger is judged
		// against the incumbent on equal footing.
		score := removalScore(&meta, types.SegmentProbationary, sc)
		if weakestKey == "" || score > weakestScore {
			weakestKey = key
			weakestScore = score
		}
	}
	return weakestKey, weakestScore
}
