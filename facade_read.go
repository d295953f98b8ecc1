package classifier

import (
	"context"
	"time"

	"github.com/plexsphere/classifierd/internal/prefixtrie"
	"golang.org/x/sync/errgroup"
)

// Classify resolves hdr against the live rule set. The candidates are the
// rules found in all four field indices: the id set at the longest prefix
// covering hdr.SrcIP, the id set at the longest prefix covering hdr.DstIP,
// and the rules whose source and destination port ranges contain hdr's
// ports. Among the enabled candidates whose protocol matches, the
// highest-priority rule wins, ties going to the lowest id; a rule at a
// shorter covering prefix is not a candidate even if its priority is
// higher. If no rule applies, the result has Matched false. It never
// returns an error: classification is total.
func (c *Classifier) Classify(hdr PacketHeader) ClassificationResult {
	start := time.Now()
	res := c.classify(hdr)
	c.metrics.classifyLatency.Observe(time.Since(start).Seconds())
	if res.Matched {
		c.metrics.outcomes.WithLabelValues(outcomeMatched).Inc()
	} else {
		c.metrics.outcomes.WithLabelValues(outcomeUnmatched).Inc()
	}
	return res
}

func (c *Classifier) classify(hdr PacketHeader) ClassificationResult {
	if c.filter != nil && c.filter.DefinitelyAbsent(signature(hdr.Protocol)) {
		c.metrics.outcomes.WithLabelValues(outcomePrefilterRejected).Inc()
		return ClassificationResult{}
	}

	guard := c.ep.Enter()
	defer guard.Exit()

	srcMatches := longestMatchIDs(c.srcTrie.Lookup(hdr.SrcIP))
	if len(srcMatches) == 0 {
		return ClassificationResult{}
	}
	dstMatches := longestMatchIDs(c.dstTrie.Lookup(hdr.DstIP))
	if len(dstMatches) == 0 {
		return ClassificationResult{}
	}
	srcPortMatches := c.srcPorts.Stab(hdr.SrcPort)
	if len(srcPortMatches) == 0 {
		return ClassificationResult{}
	}
	dstPortMatches := c.dstPorts.Stab(hdr.DstPort)
	if len(dstPortMatches) == 0 {
		return ClassificationResult{}
	}

	candidates := intersectIDs(srcMatches, dstMatches, srcPortMatches, dstPortMatches)
	if len(candidates) == 0 {
		return ClassificationResult{}
	}

	best := c.bestMatch(candidates, hdr.Protocol)
	if best == nil {
		return ClassificationResult{}
	}

	best.BumpCounter(time.Now().UnixNano())
	return ClassificationResult{
		Matched: true,
		RuleID:  best.ID,
		Actions: append([]Action(nil), best.Actions...),
	}
}

// bestMatch picks the highest-priority enabled rule among candidates
// whose protocol matches proto, breaking ties by ascending id. Field
// indices are authoritative: a rule reached through every one of the
// four candidate sets is considered a match on those fields without any
// further re-checking of its Filter, which is a declarative record of
// what was indexed, not a second matcher to run.
func (c *Classifier) bestMatch(candidates []uint32, proto Protocol) *Rule {
	var best *Rule
	for _, id := range candidates {
		r, ok := c.store.Resolve(id)
		if !ok || !r.Enabled {
			continue
		}
		if r.Filter.Protocol != 0 && r.Filter.Protocol != proto {
			continue
		}
		if best == nil || better(r, best) {
			best = r
		}
	}
	return best
}

func better(a, b *Rule) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.ID < b.ID
}

// longestMatchIDs returns the id set registered at the single longest
// prefix covering the looked-up address, or nil if nothing covers it.
// Trie.Lookup yields matches longest-first, so the candidate set for a
// dimension is its first entry alone: a /8 and a /16 both covering an
// address are not both candidates, only the /16's ids are.
func longestMatchIDs(matches []prefixtrie.Match) []uint32 {
	if len(matches) == 0 {
		return nil
	}
	return matches[0].IDs
}

// intersectIDs returns the ids present in every one of lists. Each input
// list's ids are individually sorted and duplicate-free (the index
// types guarantee this per node), but the flattened union across nodes
// is not globally sorted, so intersection is done by counting rather
// than a merge.
func intersectIDs(lists ...[]uint32) []uint32 {
	counts := make(map[uint32]int, len(lists[0]))
	for _, id := range lists[0] {
		counts[id] = 1
	}
	for _, list := range lists[1:] {
		seen := make(map[uint32]bool, len(list))
		for _, id := range list {
			if seen[id] {
				continue
			}
			seen[id] = true
			if n, ok := counts[id]; ok {
				counts[id] = n + 1
			}
		}
	}
	out := make([]uint32, 0, len(counts))
	need := len(lists)
	for id, n := range counts {
		if n == need {
			out = append(out, id)
		}
	}
	return out
}

// ClassifyBatch classifies every header in hdrs concurrently, bounded by
// concurrency (a value <= 0 means unbounded), and returns results in the
// same order as hdrs. Each header goes through Classify on its own, which
// enters the epoch and loads every index root separately, so headers of
// one batch can observe different rule-set versions when a write lands
// while the batch runs. ctx is not consulted: every header is classified
// even if ctx is cancelled. ClassifyBatch never returns an error since
// Classify never does.
func (c *Classifier) ClassifyBatch(ctx context.Context, hdrs []PacketHeader, concurrency int) []ClassificationResult {
	results := make([]ClassificationResult, len(hdrs))
	g, _ := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, hdr := range hdrs {
		i, hdr := i, hdr
		g.Go(func() error {
			results[i] = c.Classify(hdr)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
