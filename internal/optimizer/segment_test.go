package optimizer

import (
	"fmt"
	"testing"
	"time"

	"github.com/cachetune/cachetune/pkg/types"
)

func TestSegmentTrackerLifecycle(t *testing.T) {
	tracker := newSegmentTracker(2)

	if got := tracker.segment("a"); got != types.SegmentNone {
		t.Errorf("unseen key segment = %v, want none", got)
	}

	tracker.assign("a")
	if got := tracker.segment("a"); got != types.SegmentProbationary {
		t.Errorf("assigned key segment = %v, want probationary", got)
	}

	tracker.promote("a")
	if got := tracker.segment("a"); got != types.SegmentProtected {
		t.Errorf("promoted key segment = %v, want protected", got)
	}
	if tracker.protectedSize() != 1 {
		t.Errorf("protectedSize = %d, want 1", tracker.protectedSize())
	}

	// Promoting a protected key again is a no-op.
	tracker.promote("a")
	if tracker.protectedSize() != 1 || tracker.promotions != 1 {
		t.Errorf("double promote changed counters: count=%d promotions=%d", tracker.protectedSize(), tracker.promotions)
	}

	tracker.demote("a")
	if got := tracker.segment("a"); got != types.SegmentProbationary {
		t.Errorf("demoted key segment = %v, want probationary", got)
	}
	if tracker.protectedSize() != 0 {
		t.Errorf("protectedSize after demote = %d, want 0", tracker.protectedSize())
	}

	// Demoting a probationary key is a no-op.
	tracker.demote("a")
	if tracker.demotions != 1 {
		t.Errorf("double demote incremented demotions: %d", tracker.demotions)
	}

	tracker.remove("a")
	if got := tracker.segment("a"); got != types.SegmentNone {
		t.Errorf("removed key segment = %v, want none", got)
	}
}

func TestSegmentTrackerReassignDemotes(t *testing.T) {
	tracker := newSegmentTracker(2)
	tracker.assign("a")
	tracker.promote("a")

	tracker.assign("a")
	if got := tracker.segment("a"); got != types.SegmentProbationary {
		t.Errorf("re-assigned key segment = %v, want probationary", got)
	}
	if tracker.protectedSize() != 0 {
		t.Errorf("protectedSize = %d, want 0", tracker.protectedSize())
	}
}

func TestSegmentTrackerRemoveProtected(t *testing.T) {
	tracker := newSegmentTracker(2)
	tracker.assign("a")
	tracker.promote("a")
	tracker.remove("a")
	if tracker.protectedSize() != 0 {
		t.Errorf("protectedSize = %d, want 0", tracker.protectedSize())
	}
}

func TestSegmentTrackerCapacity(t *testing.T) {
	tracker := newSegmentTracker(1)
	if !tracker.hasCapacity() {
		t.Error("empty tracker should have capacity")
	}
	tracker.assign("a")
	tracker.promote("a")
	if tracker.hasCapacity() {
		t.Error("full tracker should not have capacity")
	}

	zero := newSegmentTracker(0)
	if zero.hasCapacity() {
		t.Error("zero-capacity tracker never has capacity")
	}
}

func TestProtectedFloor(t *testing.T) {
	tests := []struct {
		name            string
		protectedCap    int
		reductionTarget float64
		want            int
	}{
		{"half reduction", 10, 0.5, 5},
		{"quarter reduction", 8, 0.25, 6},
		{"full reduction", 10, 1.0, 0},
		{"zero capacity", 0, 0.5, 0},
		{"truncates fraction", 5, 0.5, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := protectedFloor(tt.protectedCap, tt.reductionTarget); got != tt.want {
				t.Errorf("protectedFloor(%d, %f) = %d, want %d", tt.protectedCap, tt.reductionTarget, got, tt.want)
			}
		})
	}
}

func TestWeakestProtected(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sc := baseScoreContext(now)

	tracker := newSegmentTracker(3)
	items := map[string]types.CacheItemMetadata{
		"strong": {Key: "strong", Size: 10, AccessCount: 100, LastAccessed: now, Created: now.Add(-time.Hour), Priority: types.PriorityHigh},
		"weak":   {Key: "weak", Size: 90, AccessCount: 1, LastAccessed: now.Add(-time.Hour), Created: now.Add(-2 * time.Hour), Priority: types.PriorityLow},
	}
	for key := range items {
		tracker.assign(key)
		tracker.promote(key)
	}

	lookup := func(key string) (types.CacheItemMetadata, bool) {
		meta, ok := items[key]
		return meta, ok
	}

	key, score := tracker.weakestProtected(lookup, sc)
	if key != "weak" {
		t.Errorf("weakestProtected = %q, want weak", key)
	}
	meta := items["weak"]
	if want := removalScore(&meta, types.SegmentProbationary, sc); score != want {
		t.Errorf("weakest score = %f, want undamped score %f", score, want)
	}
}

func TestWeakestProtectedEmpty(t *testing.T) {
	tracker := newSegmentTracker(3)
	tracker.assign("prob") // probationary only

	key, _ := tracker.weakestProtected(func(string) (types.CacheItemMetadata, bool) {
		return types.CacheItemMetadata{}, false
	}, baseScoreContext(time.Now()))
	if key != "" {
		t.Errorf("expected empty key for empty protected segment, got %q", key)
	}
}

func TestWeakestProtectedScanBoundedByCapacity(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sc := baseScoreContext(now)

	tracker := newSegmentTracker(4)
	for i := 0; i < 4; i++ {
		key := fmt.Sprintf("protected-%d", i)
		tracker.assign(key)
		tracker.promote(key)
	}
	// A large probationary population must not widen the incumbent scan.
	for i := 0; i < 10000; i++ {
		tracker.assign(fmt.Sprintf("probationary-%d", i))
	}

	lookups := 0
	lookup := func(key string) (types.CacheItemMetadata, bool) {
		lookups++
		return types.CacheItemMetadata{Key: key, Size: 10, AccessCount: 5, LastAccessed: now, Created: now.Add(-time.Hour)}, true
	}

	key, _ := tracker.weakestProtected(lookup, sc)
	if key == "" {
		t.Fatal("expected a weakest incumbent")
	}
	if lookups != 4 {
		t.Errorf("weakestProtected performed %d lookups, want 4 (protected capacity)", lookups)
	}
}
