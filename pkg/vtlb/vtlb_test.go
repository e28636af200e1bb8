package vtlb

import (
	"testing"
	"time"

	"github.com/vusec/hammertime-go/pkg/ramses"
)

func TestNewRejectsBadParams(t *testing.T) {
	if _, err := New(0, 4, time.Millisecond, time.Second, nil); err == nil {
		t.Error("expected error for zero gensize")
	}
	if _, err := New(16, 0, time.Millisecond, time.Second, nil); err == nil {
		t.Error("expected error for zero numGen")
	}
	if _, err := New(16, 4, time.Second, time.Millisecond, nil); err == nil {
		t.Error("expected error for minTrust > maxTrust")
	}
}

func TestUpdateAndSearch(t *testing.T) {
	v, err := New(64, 4, time.Microsecond, 4*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	v.Update(0x1000, ramses.PhysAddr(0x2000))

	if got := v.Search(0x1000); got != ramses.PhysAddr(0x2000) {
		t.Errorf("Search = %#x, want 0x2000", got)
	}
	if got := v.Search(0x9999); got != ramses.BadPhysAddr {
		t.Errorf("Search miss = %#x, want BadPhysAddr", got)
	}
}

func TestLookupFallsBackToPagemap(t *testing.T) {
	v, err := New(64, 4, time.Microsecond, 4*time.Millisecond, fakePagemap{
		entries: []uint64{0x5678 | (1 << 63)},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := v.Lookup(0)
	if got != ramses.PhysAddr(0x5678) {
		t.Errorf("Lookup = %#x, want 0x5678", got)
	}

	// Second lookup should now hit the cache without consulting the
	// pagemap reader again.
	if got := v.Search(0); got != ramses.PhysAddr(0x5678) {
		t.Errorf("Search after Lookup = %#x, want 0x5678", got)
	}
}

func TestLookupMissWithoutPagemap(t *testing.T) {
	v, _ := New(64, 4, time.Microsecond, 4*time.Millisecond, nil)
	if got := v.Lookup(0x42); got != ramses.BadPhysAddr {
		t.Errorf("Lookup without pagemap = %#x, want BadPhysAddr", got)
	}
}

func TestGenerationAgingDropsOldEntries(t *testing.T) {
	// 4 generations, 4ms max trust => 1ms per generation.
	v, err := New(64, 4, time.Microsecond, 4*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	v.Update(1, ramses.PhysAddr(100))

	// Advance well past max_trust so the whole cache flushes.
	v.UpdateTimeDelta(int64(10 * time.Millisecond))

	if got := v.Search(1); got != ramses.BadPhysAddr {
		t.Errorf("Search after flush-by-age = %#x, want BadPhysAddr", got)
	}
}

func TestGenerationAgingKeepsRecentEntries(t *testing.T) {
	v, err := New(64, 4, time.Microsecond, 4*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	v.Update(1, ramses.PhysAddr(100))

	// Advance by less than one generation's worth of time.
	v.UpdateTimeDelta(int64(100 * time.Microsecond))

	if got := v.Search(1); got != ramses.PhysAddr(100) {
		t.Errorf("Search after small time advance = %#x, want 100", got)
	}
}

func TestFlushClearsEverything(t *testing.T) {
	v, _ := New(64, 4, time.Microsecond, 4*time.Millisecond, nil)
	v.Update(1, ramses.PhysAddr(10))
	v.Update(2, ramses.PhysAddr(20))
	v.Flush()

	if got := v.Search(1); got != ramses.BadPhysAddr {
		t.Error("expected miss for key 1 after Flush")
	}
	if got := v.Search(2); got != ramses.BadPhysAddr {
		t.Error("expected miss for key 2 after Flush")
	}
}

func TestUpdateTimestampBackwardsFlushes(t *testing.T) {
	v, _ := New(64, 4, time.Microsecond, 4*time.Millisecond, nil)
	v.Update(1, ramses.PhysAddr(10))

	v.UpdateTimestamp(1000)
	v.UpdateTimestamp(500) // goes backwards relative to 1000

	if got := v.Search(1); got != ramses.BadPhysAddr {
		t.Error("expected flush on backwards timestamp")
	}
}

func TestNewCustomBuckets(t *testing.T) {
	buckets := []Bucket{
		NewHashBucket(8, HashTrivial, 4),
		NewHashBucket(8, HashTrivial, 4),
	}
	v, err := NewCustomBuckets(buckets, time.Microsecond, time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewCustomBuckets: %v", err)
	}
	v.Update(3, ramses.PhysAddr(33))
	if got := v.Search(3); got != ramses.PhysAddr(33) {
		t.Errorf("Search = %#x, want 33", got)
	}
}
