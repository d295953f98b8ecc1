package prefixtrie

import (
	"reflect"
	"testing"
)

func TestLookupOrdersLongestPrefixFirst(t *testing.T) {
	tr := New()
	tr.Insert(0x0A000000, 8, 1)  // 10.0.0.0/8
	tr.Insert(0x0A010000, 16, 2) // 10.1.0.0/16
	tr.Insert(0x0A010200, 24, 3) // 10.1.2.0/24

	matches := tr.Lookup(0x0A010203) // 10.1.2.3

	if len(matches) != 3 {
		t.Fatalf("len(matches) = %d, want 3", len(matches))
	}
	wantLens := []uint8{24, 16, 8}
	for i, m := range matches {
		if m.Len != wantLens[i] {
			t.Fatalf("matches[%d].Len = %d, want %d", i, m.Len, wantLens[i])
		}
	}
}

func TestLookupMissesOutsidePrefix(t *testing.T) {
	tr := New()
	tr.Insert(0x0A000000, 8, 1)

	matches := tr.Lookup(0x0B000001) // 11.0.0.1
	if len(matches) != 0 {
		t.Fatalf("len(matches) = %d, want 0", len(matches))
	}
}

func TestDefaultRouteAlwaysMatches(t *testing.T) {
	tr := New()
	tr.Insert(0, 0, 99) // 0.0.0.0/0

	for _, addr := range []uint32{0, 0xFFFFFFFF, 0x0A010203} {
		matches := tr.Lookup(addr)
		if len(matches) != 1 || matches[0].Len != 0 || matches[0].IDs[0] != 99 {
			t.Fatalf("Lookup(%#x) = %+v, want the default route", addr, matches)
		}
	}
}

func TestInsertIsIdempotent(t *testing.T) {
	tr := New()
	tr.Insert(0x0A000000, 8, 1)
	tr.Insert(0x0A000000, 8, 1)

	matches := tr.Lookup(0x0A000001)
	if len(matches) != 1 || len(matches[0].IDs) != 1 {
		t.Fatalf("duplicate insert changed the terminating set: %+v", matches)
	}
}

func TestRemovePrunesEmptyNodes(t *testing.T) {
	tr := New()
	tr.Insert(0x0A000000, 8, 1)
	tr.Remove(0x0A000000, 8, 1)

	if got := tr.Lookup(0x0A000001); len(got) != 0 {
		t.Fatalf("Lookup after Remove = %+v, want no matches", got)
	}
	if got := tr.NodeCount(); got != 1 {
		t.Fatalf("NodeCount() = %d, want 1 (root only)", got)
	}
}

func TestMultipleRuleIDsAtSamePrefix(t *testing.T) {
	tr := New()
	tr.Insert(0x0A000000, 8, 1)
	tr.Insert(0x0A000000, 8, 2)

	matches := tr.Lookup(0x0A000001)
	if len(matches) != 1 {
		t.Fatalf("len(matches) = %d, want 1", len(matches))
	}
	if !reflect.DeepEqual(matches[0].IDs, []uint32{1, 2}) {
		t.Fatalf("IDs = %v, want [1 2]", matches[0].IDs)
	}
}

func TestDepthAndNodeCount(t *testing.T) {
	tr := New()
	if tr.Depth() != 0 || tr.NodeCount() != 1 {
		t.Fatalf("empty trie: Depth=%d NodeCount=%d, want 0 and 1", tr.Depth(), tr.NodeCount())
	}
	tr.Insert(0x0A010200, 24, 1)
	if tr.Depth() != 24 {
		t.Fatalf("Depth() = %d, want 24", tr.Depth())
	}
	if tr.NodeCount() != 25 {
		t.Fatalf("NodeCount() = %d, want 25", tr.NodeCount())
	}
}

func TestOldRootStableAcrossInsert(t *testing.T) {
	tr := New()
	tr.Insert(0x0A000000, 8, 1)
	before := tr.Lookup(0x0A000001)

	old := tr.Insert(0x0B000000, 8, 2)
	if old == nil {
		t.Fatalf("Insert returned a nil previous root")
	}

	after := tr.Lookup(0x0A000001)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("inserting an unrelated prefix changed an existing lookup: before=%+v after=%+v", before, after)
	}
}
