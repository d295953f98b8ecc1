package classifier

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestClassifier(t *testing.T, opts Options) *Classifier {
	t.Helper()
	c := New(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})), opts)
	t.Cleanup(c.Close)
	return c
}

func cidr(addr uint32, length uint8) *Prefix { return &Prefix{Addr: addr, Len: length} }
func ports(low, high uint16) *PortRange      { return &PortRange{Low: low, High: high} }

func TestBasicMatch(t *testing.T) {
	c := newTestClassifier(t, Options{})
	if err := c.AddRule(Rule{
		ID: 1, Priority: 10, Enabled: true,
		Filter:  Filter{SrcPrefix: cidr(0x0A000000, 8), DstPort: ports(443, 443), Protocol: 6},
		Actions: []Action{{Kind: ActionForward, NextHop: 0x0A000001}},
	}); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	res := c.Classify(PacketHeader{SrcIP: 0x0A010203, DstIP: 0x08080808, DstPort: 443, Protocol: 6})
	want := ClassificationResult{Matched: true, RuleID: 1, Actions: []Action{{Kind: ActionForward, NextHop: 0x0A000001}}}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("Classify result mismatch (-want +got):\n%s", diff)
	}

	miss := c.Classify(PacketHeader{SrcIP: 0x0B010203, DstIP: 0x08080808, DstPort: 443, Protocol: 6})
	if miss.Matched {
		t.Fatalf("Classify matched %+v for an address outside the rule's prefix", miss)
	}
}

func TestPriorityTieBreak(t *testing.T) {
	c := newTestClassifier(t, Options{})
	// Two rules matching everything, equal priority: lower id wins.
	if err := c.AddRule(Rule{ID: 5, Priority: 0, Enabled: true}); err != nil {
		t.Fatalf("AddRule(5): %v", err)
	}
	if err := c.AddRule(Rule{ID: 2, Priority: 0, Enabled: true}); err != nil {
		t.Fatalf("AddRule(2): %v", err)
	}

	res := c.Classify(PacketHeader{})
	if !res.Matched || res.RuleID != 2 {
		t.Fatalf("Classify = %+v, want rule 2 (lower id wins an equal-priority tie)", res)
	}
}

func TestLongestPrefixBeatsHigherPriority(t *testing.T) {
	c := newTestClassifier(t, Options{})
	if err := c.AddRule(Rule{
		ID: 1, Priority: 100, Enabled: true,
		Filter: Filter{SrcPrefix: cidr(0x0A000000, 8)}, // /8, broad, higher priority
	}); err != nil {
		t.Fatalf("AddRule(1): %v", err)
	}
	if err := c.AddRule(Rule{
		ID: 2, Priority: 50, Enabled: true,
		Filter: Filter{SrcPrefix: cidr(0x0A010200, 24)}, // /24, specific, lower priority
	}); err != nil {
		t.Fatalf("AddRule(2): %v", err)
	}

	// The src-trie candidate set is restricted to the longest covering
	// prefix (the /24), so rule 1 is never a candidate regardless of its
	// higher priority.
	res := c.Classify(PacketHeader{SrcIP: 0x0A010203})
	if !res.Matched || res.RuleID != 2 {
		t.Fatalf("Classify = %+v, want rule 2 (longest prefix restricts candidates before priority applies)", res)
	}
}

func TestLongestPrefixWins(t *testing.T) {
	c := newTestClassifier(t, Options{})
	if err := c.AddRule(Rule{
		ID: 1, Priority: 10, Enabled: true,
		Filter: Filter{DstPrefix: cidr(0x0A000000, 8)},
	}); err != nil {
		t.Fatalf("AddRule(1): %v", err)
	}
	if err := c.AddRule(Rule{
		ID: 2, Priority: 10, Enabled: true,
		Filter: Filter{DstPrefix: cidr(0x0A010000, 16)},
	}); err != nil {
		t.Fatalf("AddRule(2): %v", err)
	}

	res := c.Classify(PacketHeader{DstIP: 0x0A010203})
	if !res.Matched || res.RuleID != 2 {
		t.Fatalf("Classify = %+v, want rule 2 (the /16 is the longest cover for 10.1.2.3)", res)
	}
}

func TestDisabledRuleNeverMatches(t *testing.T) {
	c := newTestClassifier(t, Options{})
	if err := c.AddRule(Rule{ID: 1, Priority: 10, Enabled: false}); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	res := c.Classify(PacketHeader{})
	if res.Matched {
		t.Fatalf("Classify matched a disabled rule: %+v", res)
	}
}

func TestPortRangeBoundaries(t *testing.T) {
	c := newTestClassifier(t, Options{})
	if err := c.AddRule(Rule{
		ID: 1, Priority: 0, Enabled: true,
		Filter: Filter{DstPort: ports(1024, 2048)},
	}); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	for _, p := range []uint16{1024, 1500, 2048} {
		if res := c.Classify(PacketHeader{DstPort: p}); !res.Matched {
			t.Fatalf("Classify(port %d) did not match an inclusive boundary", p)
		}
	}
	for _, p := range []uint16{1023, 2049} {
		if res := c.Classify(PacketHeader{DstPort: p}); res.Matched {
			t.Fatalf("Classify(port %d) matched outside the range", p)
		}
	}
}

func TestDefaultRouteMatchesEverything(t *testing.T) {
	c := newTestClassifier(t, Options{})
	if err := c.AddRule(Rule{ID: 1, Priority: -100, Enabled: true}); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	for _, hdr := range []PacketHeader{
		{},
		{SrcIP: 0xFFFFFFFF, DstIP: 0xFFFFFFFF, SrcPort: 65535, DstPort: 65535, Protocol: 255},
	} {
		if res := c.Classify(hdr); !res.Matched || res.RuleID != 1 {
			t.Fatalf("Classify(%+v) = %+v, want the default rule", hdr, res)
		}
	}
}

func TestDeleteRuleStopsMatching(t *testing.T) {
	c := newTestClassifier(t, Options{})
	if err := c.AddRule(Rule{ID: 1, Priority: 0, Enabled: true}); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if err := c.DeleteRule(1); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	if res := c.Classify(PacketHeader{}); res.Matched {
		t.Fatalf("Classify matched after DeleteRule: %+v", res)
	}
}

func TestModifyRuleReindexes(t *testing.T) {
	c := newTestClassifier(t, Options{})
	if err := c.AddRule(Rule{
		ID: 1, Priority: 0, Enabled: true,
		Filter: Filter{SrcPrefix: cidr(0x0A000000, 8)},
	}); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if err := c.ModifyRule(1, RuleBody{
		Priority: 0, Enabled: true,
		Filter: Filter{SrcPrefix: cidr(0x0B000000, 8)},
	}); err != nil {
		t.Fatalf("ModifyRule: %v", err)
	}

	if res := c.Classify(PacketHeader{SrcIP: 0x0A000001}); res.Matched {
		t.Fatalf("Classify matched the rule's old filter after Modify: %+v", res)
	}
	if res := c.Classify(PacketHeader{SrcIP: 0x0B000001}); !res.Matched || res.RuleID != 1 {
		t.Fatalf("Classify did not match the rule's new filter after Modify: %+v", res)
	}
}

func TestPrefilterNeverProducesFalseNegative(t *testing.T) {
	c := newTestClassifier(t, Options{EnablePrefilter: true, ExpectedRuleCount: 4})
	if err := c.AddRule(Rule{ID: 1, Priority: 0, Enabled: true, Filter: Filter{Protocol: 17}}); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	res := c.Classify(PacketHeader{Protocol: 17})
	if !res.Matched {
		t.Fatalf("prefilter rejected a packet whose protocol matches a live rule's signature")
	}
}

func TestMatchCounterIsMonotone(t *testing.T) {
	c := newTestClassifier(t, Options{})
	if err := c.AddRule(Rule{ID: 1, Priority: 0, Enabled: true}); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Classify(PacketHeader{})
			}
		}()
	}
	wg.Wait()

	stats, ok := c.Stats(1)
	if !ok {
		t.Fatalf("Stats(1) not found")
	}
	if stats.MatchCount != 1000 {
		t.Fatalf("MatchCount = %d, want 1000 (20 goroutines x 50 classifications)", stats.MatchCount)
	}
}

func TestClassifyRace(t *testing.T) {
	c := newTestClassifier(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const readers = 4
	var wg sync.WaitGroup
	wg.Add(1 + readers)

	go func() {
		defer wg.Done()
		for id := uint32(1); ; id++ {
			select {
			case <-ctx.Done():
				return
			default:
			}
			_ = c.AddRule(Rule{ID: id, Priority: int32(id), Enabled: true,
				Filter: Filter{SrcPrefix: cidr(id<<8, 24)}})
			_ = c.ModifyRule(id, RuleBody{Priority: int32(id) + 1, Enabled: true,
				Filter: Filter{SrcPrefix: cidr(id<<8, 24)}})
			if id > 1 {
				_ = c.DeleteRule(id - 1)
			}
		}
	}()

	for i := 0; i < readers; i++ {
		go func() {
			defer wg.Done()
			deadline := time.Now().Add(50 * time.Millisecond)
			for time.Now().Before(deadline) {
				c.Classify(PacketHeader{SrcIP: 3 << 8})
			}
			cancel()
		}()
	}

	wg.Wait()
}

func TestRuleBodyRoundTrip(t *testing.T) {
	c := newTestClassifier(t, Options{})
	body := RuleBody{
		Priority: 7, Enabled: true,
		Filter:  Filter{SrcPort: ports(1, 2)},
		Actions: []Action{{Kind: ActionLog, Tag: "x"}},
	}

	if err := c.AddRule(Rule{ID: 1, Priority: 0, Enabled: true}); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if err := c.ModifyRule(1, body); err != nil {
		t.Fatalf("ModifyRule: %v", err)
	}
	stored, ok := c.store.Resolve(1)
	if !ok {
		t.Fatalf("rule 1 not found after Modify")
	}
	if stored.Priority != body.Priority || len(stored.Actions) != 1 || stored.Actions[0].Tag != "x" {
		t.Fatalf("stored rule = %+v, want it to round-trip body's fields", stored)
	}
}

// rejectPriority is a ConflictPolicy that vetoes any candidate whose
// Priority equals bad, used to force ModifyRule's conflict-rollback path.
type rejectPriority struct{ bad int32 }

func (p rejectPriority) Check(existing []*Rule, candidate *Rule) (uint32, bool) {
	if candidate.Priority == p.bad {
		return 999, false
	}
	return 0, true
}

func TestModifyRuleRollsBackIndicesOnConflict(t *testing.T) {
	c := newTestClassifier(t, Options{ConflictPolicy: rejectPriority{bad: 99}})
	if err := c.AddRule(Rule{
		ID: 1, Priority: 0, Enabled: true,
		Filter: Filter{SrcPrefix: cidr(0x0A000000, 8)},
	}); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	err := c.ModifyRule(1, RuleBody{
		Priority: 99, Enabled: true,
		Filter: Filter{SrcPrefix: cidr(0x0B000000, 8)},
	})
	if err == nil {
		t.Fatalf("ModifyRule: want a conflict error, got nil")
	}

	// A rejected Modify must leave the field indices agreeing with
	// whatever the store still resolves id to: the old filter, matching,
	// and the rejected new filter, not matching.
	if res := c.Classify(PacketHeader{SrcIP: 0x0A000001}); !res.Matched || res.RuleID != 1 {
		t.Fatalf("Classify = %+v, want the pre-Modify rule still indexed under its old filter", res)
	}
	if res := c.Classify(PacketHeader{SrcIP: 0x0B000001}); res.Matched {
		t.Fatalf("Classify matched the rejected new filter: %+v", res)
	}
}

func TestDeleteRuleUnindexesAndRejectsRepeat(t *testing.T) {
	// DeleteRule removes field-index projections before touching the
	// store. Its store-rejection rollback branch cannot be reached through
	// the public API (Resolve under writerMu means store.Delete succeeds),
	// so this checks the observable outcome instead: the rule stops
	// matching, and a second delete of the same id fails.
	c := newTestClassifier(t, Options{})
	if err := c.AddRule(Rule{
		ID: 1, Priority: 0, Enabled: true,
		Filter: Filter{SrcPrefix: cidr(0x0A000000, 8)},
	}); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if err := c.DeleteRule(1); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	if res := c.Classify(PacketHeader{SrcIP: 0x0A000001}); res.Matched {
		t.Fatalf("Classify matched after DeleteRule: %+v", res)
	}
	if err := c.DeleteRule(1); err == nil {
		t.Fatalf("DeleteRule on an already-deleted id: want NotFound, got nil")
	}
}
