/*
Package optimizer implements the adaptive cache decision engine at the heart of CacheTune.

The engine decides which cached items to evict when a size or count budget is
exceeded, how to adjust per-item TTLs from observed usage, and which items are
good prefetch candidates given the item currently being accessed. It never
performs storage I/O itself: every decision is returned as data for the host
integration layer to execute.

# Components

	┌─────────────────────────────────────────────┐
	│              Engine (public surface)        │
	│  RecordItemCreation / RecordItemAccess /    │
	│  RecordCacheMiss / UpdateHitRate /          │
	│  Optimize / SelectItemsForPrefetch /        │
	│  IsItemProtected                            │
	└─────────────────────────────────────────────┘
	     │           │            │          │
	┌────┴────┐ ┌────┴─────┐ ┌────┴─────┐ ┌──┴───────┐
	│ Scoring │ │ Segment  │ │ Co-Access│ │ Adaptive │
	│ Model   │ │ Tracker  │ │ Tracker  │ │ Weights  │
	└─────────┘ └──────────┘ └──────────┘ └──────────┘

Scoring Model:
Pure functions turning one item's metadata plus the current weights into a
removal-desirability score along four dimensions: recency, frequency, size,
and priority. Higher score means more eligible for eviction.

Segment Tracker:
Segmented-LRU membership. New keys start probationary; a second access
promotes them into a capacity-bounded protected segment, demoting the weakest
incumbent when the challenger scores better. Eviction drains probationary
items before protected ones.

Co-Access Tracker:
A bounded adjacency table of "key A accessed, then key B" transitions backing
SelectItemsForPrefetch.

Adaptive Weight Controller:
Consumes the rolling hit rate reported through UpdateHitRate and nudges the
scoring weights within clamped bounds: low hit rates lean on frequency and
widen prefetch breadth, healthy hit rates decay drift back to baseline.

# Concurrency

The engine is a single-writer synchronous component guarded by one RWMutex
per instance. Read-only queries (IsItemProtected, SelectItemsForPrefetch)
take the shared side. There are no background goroutines; periodic work is
the host's responsibility, driven by calling Optimize on a schedule.

# Determinism

All decisions are deterministic for a given snapshot, weights and clock:
candidate ordering breaks score ties by (lastAccessed, key) ascending, and
internal map iteration is never allowed to influence results. Tests inject a
fake clock through Config.Clock.
*/
package optimizer
