package optimizer

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cachetune/cachetune/pkg/types"
)

// minAdjustedTTL is the floor for expedited-expiry reductions. Removal only
// ever happens through the eviction path, never by zeroing a TTL.
const minAdjustedTTL = time.Second

// entry is the engine-owned record for one key: the freshest metadata the
// engine has seen plus the original TTL used as the extension cap base.
type entry struct {
	meta        types.CacheItemMetadata
	originalTTL time.Duration

	// accessEvents counts RecordItemAccess calls, distinct from the metadata
	// access count which starts at 1 on creation. The second access event is
	// what can promote a probationary key.
	accessEvents int
}

// Engine is the adaptive cache optimizer. It records creation/access/miss
// events, produces eviction and TTL-adjustment decisions over a caller
// supplied metadata snapshot, and answers prefetch and segment queries.
//
// The engine is a single-writer synchronous component: every operation is
// call-and-return, performs no I/O, and runs in time proportional to its
// input, not to history length. Mutable state is guarded by one exclusive
// lock; read-only queries take the shared side.
type Engine struct {
	mu     sync.RWMutex
	config *Config
	clock  types.Clock

	entries    map[string]*entry
	segments   *segmentTracker
	coaccess   *coAccessTracker
	controller *weightController

	// Largest item size seen so far, the size-term normalizer between
	// snapshots. Optimize recomputes it from each snapshot.
	maxObservedSize int64

	hits            uint64
	misses          uint64
	evictions       uint64
	freedBytes      int64
	ttlExtensions   uint64
	ttlReductions   uint64
	prefetchQueries atomic.Uint64
}

var _ types.Optimizer = (*Engine)(nil)

// New creates an optimizer engine. A nil config uses defaults; an invalid
// config fails fast and permanently.
func New(config *Config) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config // engine owns an immutable copy
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	protectedCap := int(cfg.SLRUProtectedRatio * float64(cfg.MaxCount))

	baseline := weights{
		priority:  cfg.PriorityWeight,
		age:       cfg.AgeWeight,
		frequency: cfg.FrequencyWeight,
		size:      cfg.SizeWeight,
	}

	return &Engine{
		config:     &cfg,
		clock:      cfg.Clock,
		entries:    make(map[string]*entry),
		segments:   newSegmentTracker(protectedCap),
		coaccess:   newCoAccessTracker(cfg.MaxNeighbors),
		controller: newWeightController(baseline, cfg.LearningEnabled),
	}, nil
}

// RecordItemCreation registers metadata defaults for a new cache write and
// places the key in the probationary segment. Re-registration of an existing
// key resets its counters: last writer wins.
func (e *Engine) RecordItemCreation(key string, size int64, dataType types.DataType, priority types.Priority) {
	if size < 0 {
		size = 0
	}
	now := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.entries[key] = &entry{
		meta: types.CacheItemMetadata{
			Key:          key,
			Size:         size,
			AccessCount:  1,
			LastAccessed: now,
			Created:      now,
			TTL:          e.config.DefaultTTL,
			DataType:     dataType,
			Priority:     priority,
		},
	}
	e.segments.assign(key)
	if size > e.maxObservedSize {
		e.maxObservedSize = size
	}
}

// RecordItemAccess records a read hit on key. Unknown keys are treated as
// freshly created with medium priority; the engine never owns ground truth
// for existence. When previousKey is non-empty and prefetching is enabled,
// the co-access edge previousKey -> key is incremented.
func (e *Engine) RecordItemAccess(key string, previousKey string) {
	now := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.entries[key]
	if !ok {
		// Implicit creation: the engine never owns ground truth for
		// existence, so an unknown key degrades to default metadata with the
		// triggering access counted as its first.
		ent = &entry{
			meta: types.CacheItemMetadata{
				Key:          key,
				AccessCount:  1,
				LastAccessed: now,
				Created:      now,
				TTL:          e.config.DefaultTTL,
				DataType:     types.DataTypeUnknown,
				Priority:     types.PriorityMedium,
			},
		}
		e.entries[key] = ent
		e.segments.assign(key)
	} else {
		ent.meta.AccessCount++
	}

	ent.accessEvents++
	ent.meta.LastAccessed = now
	e.hits++

	e.maybePromote(key, ent, now)

	if previousKey != "" && e.config.PrefetchingEnabled {
		e.coaccess.record(previousKey, key, now)
	}
}

// maybePromote applies the probationary-to-protected transition rules for a
// key that was just accessed. Caller holds the write lock.
func (e *Engine) maybePromote(key string, ent *entry, now time.Time) {
	if e.segments.segment(key) != types.SegmentProbationary || ent.accessEvents < 2 {
		return
	}

	if e.segments.hasCapacity() {
		e.segments.promote(key)
		return
	}

	sc := e.scoreContext(now, e.resolveStrategy())
	weakestKey, weakestScore := e.segments.weakestProtected(e.lookupMeta, sc)
	if weakestKey == "" {
		// Zero protected capacity: promotion is refused outright.
		return
	}

	// Promote only when the challenger is less removal-desirable (more
	// valuable) than the weakest incumbent; otherwise refuse.
	if removalScore(&ent.meta, types.SegmentProbationary, sc) < weakestScore {
		e.segments.demote(weakestKey)
		e.segments.promote(key)
	}
}

// lookupMeta resolves engine-tracked metadata by key for segment scoring
func (e *Engine) lookupMeta(key string) (types.CacheItemMetadata, bool) {
	if ent, ok := e.entries[key]; ok {
		return ent.meta, true
	}
	return types.CacheItemMetadata{}, false
}

// RecordItemRemoval forgets a key the host removed outside the eviction path,
// deleting its segment assignment and co-access edges.
func (e *Engine) RecordItemRemoval(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.forget(key)
}

// forget drops all engine state for a key. Caller holds the write lock.
func (e *Engine) forget(key string) {
	delete(e.entries, key)
	e.segments.remove(key)
	e.coaccess.remove(key)
}

// RecordCacheMiss is purely statistical: it feeds the miss counter consumed
// by the adaptive weight controller and never mutates item metadata (the key
// may not exist yet).
func (e *Engine) RecordCacheMiss(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.misses++
}

// UpdateHitRate feeds one observed hit rate in [0, 1] to the adaptive weight
// controller. Out-of-range rates are clamped. With learning disabled the rate
// is recorded for adaptive strategy resolution but weights stay fixed.
func (e *Engine) UpdateHitRate(rate float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.controller.update(rate)
}

// resolveStrategy maps the configured strategy to the one scoring runs with.
// Adaptive picks a sub-strategy from the last observed hit rate: a high rate
// means recency is working, a low rate means frequent items need protecting.
func (e *Engine) resolveStrategy() types.Strategy {
	if e.config.Strategy != types.StrategyAdaptive {
		return e.config.Strategy
	}
	rate := e.controller.hitRate()
	switch {
	case rate >= 0.8:
		return types.StrategyLRU
	case rate <= 0.4:
		return types.StrategyLFU
	default:
		return types.StrategySLRU
	}
}

// scoreContext builds the scoring inputs for the given instant and strategy.
// Caller holds at least the read lock.
func (e *Engine) scoreContext(now time.Time, strategy types.Strategy) *scoreContext {
	return &scoreContext{
		now:             now,
		weights:         effectiveWeights(strategy, e.controller.weights()),
		strategy:        strategy,
		maxObservedSize: e.maxObservedSize,
	}
}

// Optimize computes eviction and TTL-adjustment decisions over the caller's
// metadata snapshot. Within budget it is a no-op returning an empty result.
// Over budget it selects eviction candidates until the freed space meets the
// reduction target and both budgets hold, draining probationary items before
// protected ones, and separately computes TTL adjustments for the survivors.
// The same snapshot and weights always produce the identical result.
func (e *Engine) Optimize(snapshot types.Snapshot) types.OptimizationResult {
	now := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	strategy := e.resolveStrategy()
	result := types.OptimizationResult{
		TTLAdjustments: make(map[string]time.Duration),
		StrategyUsed:   strategy,
	}

	if len(snapshot) == 0 {
		return result
	}

	merged := e.mergeSnapshot(snapshot)

	currentSize := merged.totalSize
	currentCount := len(merged.items)
	if currentSize <= e.config.MaxSize && currentCount <= e.config.MaxCount {
		return result
	}

	sc := &scoreContext{
		now:             now,
		weights:         effectiveWeights(strategy, e.controller.weights()),
		strategy:        strategy,
		maxObservedSize: merged.maxSize,
	}

	// Reclaim at least the configured fraction of the violated dimension, or
	// enough to fit under budget, whichever is larger.
	var targetSize int64
	if currentSize > e.config.MaxSize {
		targetSize = int64(e.config.ReductionTarget * float64(currentSize))
		if overage := currentSize - e.config.MaxSize; overage > targetSize {
			targetSize = overage
		}
	}
	var targetEvictions int
	if currentCount > e.config.MaxCount {
		targetEvictions = int(e.config.ReductionTarget * float64(currentCount))
		if overage := currentCount - e.config.MaxCount; overage > targetEvictions {
			targetEvictions = overage
		}
	}

	expired, probationary, protected := e.partition(merged, sc, now)

	var removed []types.CacheItemMetadata
	var freed int64
	remainingCount := currentCount
	remainingSize := currentSize
	protectedRemaining := e.segments.protectedSize()

	evict := func(c *candidate) {
		removed = append(removed, c.meta)
		freed += c.meta.Size
		remainingSize -= c.meta.Size
		remainingCount--
	}
	budgetViolated := func() bool {
		return remainingSize > e.config.MaxSize || remainingCount > e.config.MaxCount
	}
	targetMet := func() bool {
		return freed >= targetSize && len(removed) >= targetEvictions && !budgetViolated()
	}

	// Expired items go first, regardless of score: they can no longer serve
	// hits. Any that survive the pass are handled by expedited expiry below.
	for i := range expired {
		if targetMet() {
			break
		}
		evict(&expired[i])
		if expired[i].segment == types.SegmentProtected {
			protectedRemaining--
		}
	}

	// Drain probationary by descending removal desirability.
	for i := range probationary {
		if targetMet() {
			break
		}
		evict(&probationary[i])
	}

	// Spill into protected only if the budget is still exceeded, stopping at
	// the segment floor while that suffices.
	floor := protectedFloor(e.segments.protectedCap, e.config.ReductionTarget)
	for i := range protected {
		if targetMet() {
			break
		}
		if protectedRemaining <= floor && !budgetViolated() {
			break
		}
		evict(&protected[i])
		protectedRemaining--
	}

	for i := range removed {
		e.forget(removed[i].Key)
	}

	removedSet := make(map[string]struct{}, len(removed))
	for i := range removed {
		removedSet[removed[i].Key] = struct{}{}
	}
	e.adjustTTLs(merged, removedSet, now, result.TTLAdjustments)

	e.evictions += uint64(len(removed))
	e.freedBytes += freed

	result.RemovedItems = removed
	result.FreedSpace = freed
	return result
}

// mergedView is the per-Optimize reconciliation of the caller's snapshot with
// the engine's own access records.
type mergedView struct {
	items     []types.CacheItemMetadata // snapshot order
	totalSize int64
	maxSize   int64
}

// mergeSnapshot reconciles snapshot metadata with engine entries: the
// snapshot is authoritative for size, TTL and priority, while the engine
// keeps the fresher access statistics. Unseen keys get a probationary
// assignment. Caller holds the write lock.
func (e *Engine) mergeSnapshot(snapshot types.Snapshot) *mergedView {
	view := &mergedView{items: make([]types.CacheItemMetadata, 0, len(snapshot))}
	for i := range snapshot {
		item := snapshot[i]

		if ent, ok := e.entries[item.Key]; ok {
			// Whichever side has the fresher access statistics wins; the
			// snapshot is authoritative for size, TTL and priority.
			if ent.meta.AccessCount > item.AccessCount {
				item.AccessCount = ent.meta.AccessCount
			} else {
				ent.meta.AccessCount = item.AccessCount
			}
			if ent.meta.LastAccessed.After(item.LastAccessed) {
				item.LastAccessed = ent.meta.LastAccessed
			} else {
				ent.meta.LastAccessed = item.LastAccessed
			}
			if ent.originalTTL == 0 && item.TTL > 0 {
				ent.originalTTL = item.TTL
			}
			ent.meta.Size = item.Size
			ent.meta.TTL = item.TTL
			ent.meta.Priority = item.Priority
		} else {
			e.entries[item.Key] = &entry{meta: item, originalTTL: item.TTL}
		}

		if e.segments.segment(item.Key) == types.SegmentNone {
			e.segments.assign(item.Key)
		}

		view.items = append(view.items, item)
		view.totalSize += item.Size
		if item.Size > view.maxSize {
			view.maxSize = item.Size
		}
	}
	if view.maxSize > e.maxObservedSize {
		e.maxObservedSize = view.maxSize
	}
	return view
}

// partition splits the merged snapshot into expired, probationary and
// protected candidate lists, each sorted into deterministic eviction order.
// Non-expired critical-priority items are never candidates.
func (e *Engine) partition(merged *mergedView, sc *scoreContext, now time.Time) (expired, probationary, protected []candidate) {
	for i := range merged.items {
		item := merged.items[i]
		seg := e.segments.segment(item.Key)
		c := candidate{
			meta:    item,
			segment: seg,
			score:   removalScore(&item, seg, sc),
			expired: item.Expired(now),
		}
		switch {
		case c.expired:
			expired = append(expired, c)
		case item.Priority == types.PriorityCritical:
			// Not evictable while live.
		case seg == types.SegmentProtected:
			protected = append(protected, c)
		default:
			probationary = append(probationary, c)
		}
	}

	for _, list := range [][]candidate{expired, probationary, protected} {
		l := list
		sort.Slice(l, func(i, j int) bool { return lessCandidate(&l[i], &l[j]) })
	}
	return expired, probationary, protected
}

// adjustTTLs computes TTL changes for the items surviving this pass: hot
// items (access count above the snapshot median) get an extension capped at a
// multiple of their original TTL, and items idle longer than twice their TTL
// get an expedited expiry. Unchanged items are omitted.
func (e *Engine) adjustTTLs(merged *mergedView, removed map[string]struct{}, now time.Time, adjustments map[string]time.Duration) {
	counts := make([]int64, 0, len(merged.items))
	for i := range merged.items {
		if _, gone := removed[merged.items[i].Key]; gone {
			continue
		}
		counts = append(counts, merged.items[i].AccessCount)
	}
	if len(counts) == 0 {
		return
	}
	median := medianCount(counts)

	for i := range merged.items {
		item := merged.items[i]
		if _, gone := removed[item.Key]; gone {
			continue
		}
		if item.TTL <= 0 {
			continue
		}

		var newTTL time.Duration
		switch {
		case float64(item.AccessCount) > median:
			newTTL = time.Duration(float64(item.TTL) * e.config.TTLExtensionFactor)
			original := item.TTL
			if ent, ok := e.entries[item.Key]; ok && ent.originalTTL > 0 {
				original = ent.originalTTL
			}
			if ceiling := time.Duration(float64(original) * e.config.MaxTTLMultiple); newTTL > ceiling {
				newTTL = ceiling
			}
			if newTTL > item.TTL {
				e.ttlExtensions++
			}
		case now.Sub(item.LastAccessed) > 2*item.TTL:
			newTTL = item.TTL / 2
			if newTTL < minAdjustedTTL {
				newTTL = minAdjustedTTL
			}
			if newTTL < item.TTL {
				e.ttlReductions++
			}
		default:
			continue
		}

		if newTTL == item.TTL {
			continue
		}
		adjustments[item.Key] = newTTL
		if ent, ok := e.entries[item.Key]; ok {
			ent.meta.TTL = newTTL
		}
	}
}

// medianCount returns the median of access counts; the mean of the two middle
// values for even-length input.
func medianCount(counts []int64) float64 {
	sorted := make([]int64, len(counts))
	copy(sorted, counts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return float64(sorted[mid])
	}
	return float64(sorted[mid-1]+sorted[mid]) / 2
}

// SelectItemsForPrefetch returns up to limit co-access neighbors of
// currentKey ordered by descending transition count, ties broken
// lexicographically. Returns an empty list when prefetching is disabled or no
// edges exist.
func (e *Engine) SelectItemsForPrefetch(currentKey string, limit int) []string {
	if !e.config.PrefetchingEnabled {
		return nil
	}
	e.prefetchQueries.Add(1)

	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.coaccess.neighbors(currentKey, limit)
}

// RecommendedPrefetchLimit widens a caller's base prefetch breadth by the
// controller's current boost, granted under sustained low hit rates.
func (e *Engine) RecommendedPrefetchLimit(base int) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return base + e.controller.extraPrefetchBreadth()
}

// IsItemProtected reports whether key currently sits in the protected
// segment. Unknown keys are not protected.
func (e *Engine) IsItemProtected(key string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.segments.segment(key) == types.SegmentProtected
}

// Stats returns a copy of the engine's counters
func (e *Engine) Stats() types.OptimizerStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	total := e.hits + e.misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(e.hits) / float64(total)
	}

	return types.OptimizerStats{
		Hits:            e.hits,
		Misses:          e.misses,
		HitRate:         hitRate,
		Evictions:       e.evictions,
		FreedBytes:      e.freedBytes,
		TTLExtensions:   e.ttlExtensions,
		TTLReductions:   e.ttlReductions,
		Promotions:      e.segments.promotions,
		Demotions:       e.segments.demotions,
		TrackedKeys:     len(e.entries),
		ProtectedKeys:   e.segments.protectedSize(),
		PrefetchQueries: e.prefetchQueries.Load(),
	}
}
