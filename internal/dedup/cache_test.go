package dedup

import (
	"fmt"
	"testing"
	"time"

	"barfly/internal/domain"
)

func TestCache_MarkAndSeen(t *testing.T) {
	c := New(10, time.Hour)

	if c.Seen("k1") {
		t.Fatal("unmarked key reported as seen")
	}
	c.MarkSent("k1")
	if !c.Seen("k1") {
		t.Fatal("marked key not seen")
	}
}

func TestCache_RetentionExpiry(t *testing.T) {
	c := New(10, time.Hour)
	base := time.Now()
	c.now = func() time.Time { return base }

	c.MarkSent("k1")

	// Still inside the window.
	c.now = func() time.Time { return base.Add(30 * time.Minute) }
	if !c.Seen("k1") {
		t.Fatal("key expired too early")
	}

	// Past the window: eligible again.
	c.now = func() time.Time { return base.Add(61 * time.Minute) }
	if c.Seen("k1") {
		t.Fatal("key still seen after retention window")
	}
}

func TestCache_FIFOEviction(t *testing.T) {
	c := New(3, time.Hour)

	for i := 0; i < 4; i++ {
		c.MarkSent(fmt.Sprintf("k%d", i))
	}

	if c.Seen("k0") {
		t.Fatal("oldest entry should have been evicted")
	}
	for i := 1; i < 4; i++ {
		if !c.Seen(fmt.Sprintf("k%d", i)) {
			t.Fatalf("k%d should survive eviction", i)
		}
	}
	if c.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", c.Len())
	}
}

func TestCache_RemarkAfterExpirySurvivesEviction(t *testing.T) {
	c := New(2, time.Hour)
	base := time.Now()
	c.now = func() time.Time { return base }

	c.MarkSent("A")

	// Retention elapses; observing A expires it.
	c.now = func() time.Time { return base.Add(2 * time.Hour) }
	if c.Seen("A") {
		t.Fatal("A should have expired")
	}

	// A is confirmed sent again, then B. The cache holds two live entries
	// against a capacity of two, so nothing may be evicted.
	c.MarkSent("A")
	c.MarkSent("B")

	if !c.Seen("A") {
		t.Fatal("freshly re-marked A evicted below capacity")
	}
	if !c.Seen("B") {
		t.Fatal("B should be seen")
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 live entries, got %d", c.Len())
	}
}

func TestCache_RemoveAllowsRetry(t *testing.T) {
	c := New(10, time.Hour)

	c.MarkSent("k1")
	c.Remove("k1")
	if c.Seen("k1") {
		t.Fatal("removed key still seen")
	}

	// Removing an absent key is a no-op.
	c.Remove("missing")
}

func TestCache_RemarkDoesNotDuplicateOrder(t *testing.T) {
	c := New(2, time.Hour)

	c.MarkSent("k1")
	c.MarkSent("k1")
	c.MarkSent("k2")
	c.MarkSent("k3")

	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	if c.Seen("k1") {
		t.Fatal("k1 should have been evicted first")
	}
}

func TestRecordKey_PrefersLogPosition(t *testing.T) {
	rec := domain.InboundRecord{Partition: 0, Offset: "42"}
	if got := RecordKey(rec, "msg-abc"); got != "0-42" {
		t.Fatalf("expected 0-42, got %q", got)
	}

	rec = domain.InboundRecord{}
	if got := RecordKey(rec, "msg-abc"); got != "msg-abc" {
		t.Fatalf("expected upstream id fallback, got %q", got)
	}
}

func TestKindKey_Namespaces(t *testing.T) {
	base := "0-42"
	regular := KindKey(domain.KindRegular, base)
	errKey := KindKey(domain.KindError, base)
	if regular == errKey {
		t.Fatal("reply kinds must not share dedup keys")
	}
	if regular != "regular-0-42" {
		t.Fatalf("unexpected key format: %q", regular)
	}
}
