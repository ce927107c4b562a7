package optimizer

import (
	"sort"
	"time"
)

// neighbor is one outgoing co-access edge: "this key was accessed immediately
// after the owner of the adjacency list".
type neighbor struct {
	key      string
	count    uint64
	lastSeen time.Time
}

// coAccessTracker maintains a bounded adjacency table of key-to-key access
// transitions used to answer prefetch queries. Adjacency lists are dense
// slices with a key index map, capped at maxNeighbors entries per key; the
// least-frequent (oldest on ties) edge is dropped on overflow. Not safe for
// concurrent use; the engine's lock guards it.
type coAccessTracker struct {
	edges        map[string][]neighbor
	index        map[string]map[string]int // key -> neighbor key -> slice position
	maxNeighbors int
}

func newCoAccessTracker(maxNeighbors int) *coAccessTracker {
	if maxNeighbors <= 0 {
		maxNeighbors = 8
	}
	return &coAccessTracker{
		edges:        make(map[string][]neighbor),
		index:        make(map[string]map[string]int),
		maxNeighbors: maxNeighbors,
	}
}

// record increments the edge prev -> next. Self-transitions are ignored.
func (t *coAccessTracker) record(prev, next string, now time.Time) {
	if prev == "" || next == "" || prev == next {
		return
	}

	idx, ok := t.index[prev]
	if !ok {
		idx = make(map[string]int, t.maxNeighbors)
		t.index[prev] = idx
	}

	if pos, ok := idx[next]; ok {
		t.edges[prev][pos].count++
		t.edges[prev][pos].lastSeen = now
		return
	}

	list := t.edges[prev]
	if len(list) >= t.maxNeighbors {
		victim := t.victimPos(list)
		delete(idx, list[victim].key)
		list[victim] = neighbor{key: next, count: 1, lastSeen: now}
		idx[next] = victim
		t.edges[prev] = list
		return
	}

	t.edges[prev] = append(list, neighbor{key: next, count: 1, lastSeen: now})
	idx[next] = len(t.edges[prev]) - 1
}

// victimPos picks the edge to drop on overflow: least frequent first, oldest
// lastSeen on count ties.
func (t *coAccessTracker) victimPos(list []neighbor) int {
	victim := 0
	for i := 1; i < len(list); i++ {
		if list[i].count < list[victim].count ||
			(list[i].count == list[victim].count && list[i].lastSeen.Before(list[victim].lastSeen)) {
			victim = i
		}
	}
	return victim
}

// neighbors returns up to limit neighbor keys of key ordered by descending
// transition count, ties broken lexicographically.
func (t *coAccessTracker) neighbors(key string, limit int) []string {
	list, ok := t.edges[key]
	if !ok || limit <= 0 {
		return nil
	}

	sorted := make([]neighbor, len(list))
	copy(sorted, list)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].key < sorted[j].key
	})

	if limit > len(sorted) {
		limit = len(sorted)
	}
	keys := make([]string, 0, limit)
	for _, n := range sorted[:limit] {
		keys = append(keys, n.key)
	}
	return keys
}

// remove drops the key's adjacency list and every edge pointing at it. The
// scan is bounded by the number of tracked keys times maxNeighbors.
func (t *coAccessTracker) remove(key string) {
	delete(t.edges, key)
	delete(t.index, key)

	for owner, idx := range t.index {
		pos, ok := idx[key]
		if !ok {
			continue
		}
		list := t.edges[owner]
		last := len(list) - 1
		if pos != last {
			list[pos] = list[last]
			idx[list[pos].key] = pos
		}
		t.edges[owner] = list[:last]
		delete(idx, key)
		if len(t.edges[owner]) == 0 {
			delete(t.edges, owner)
			delete(t.index, owner)
		}
	}
}

// len reports how many keys carry outgoing edges
func (t *coAccessTracker) len() int {
	return len(t.edges)
}
