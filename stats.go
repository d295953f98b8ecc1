package classifier

// RuleStats is a point-in-time snapshot of one rule's match statistics.
type RuleStats struct {
	ID             uint32
	MatchCount     uint64
	LastMatchNanos int64
}

// Stats returns id's current match statistics, or ok=false if id is not
// a live rule.
func (c *Classifier) Stats(id uint32) (RuleStats, bool) {
	r, ok := c.store.Resolve(id)
	if !ok {
		return RuleStats{}, false
	}
	return RuleStats{ID: r.ID, MatchCount: r.MatchCount(), LastMatchNanos: r.LastMatchNanos()}, true
}

// StatsAll returns every live rule's match statistics, in the store's
// priority-sorted order.
func (c *Classifier) StatsAll() []RuleStats {
	snap := c.store.SnapshotByPriority()
	out := make([]RuleStats, len(snap))
	for i, r := range snap {
		out[i] = RuleStats{ID: r.ID, MatchCount: r.MatchCount(), LastMatchNanos: r.LastMatchNanos()}
	}
	return out
}

// ResetStats zeroes id's match statistics. Returns false if id is not a
// live rule.
func (c *Classifier) ResetStats(id uint32) bool {
	return c.store.ResetCounter(id)
}

// ResetAllStats zeroes every live rule's match statistics.
func (c *Classifier) ResetAllStats() {
	c.store.ResetAllCounters()
}

// IndexDiagnostics reports structural diagnostics for the four field
// indices and the prefilter, carried forward from the original
// implementation's per-structure introspection accessors. It is meant
// for operational tooling, not the classify hot path.
type IndexDiagnostics struct {
	SrcTrieDepth, DstTrieDepth         uint8
	SrcTrieNodes, DstTrieNodes         int
	SrcPortTreeHeight, DstPortTreeHeight int
	SrcPortTreeSize, DstPortTreeSize     int

	PrefilterEnabled            bool
	PrefilterBits               uint64
	PrefilterHashes             int
	PrefilterPopCount           uint64
	PrefilterEstimatedFPRate    float64
	PrefilterRemovedSinceRebuild uint64
}

// Diagnostics reports the current structural state of every index.
func (c *Classifier) Diagnostics() IndexDiagnostics {
	d := IndexDiagnostics{
		SrcTrieDepth:         c.srcTrie.Depth(),
		DstTrieDepth:         c.dstTrie.Depth(),
		SrcTrieNodes:         c.srcTrie.NodeCount(),
		DstTrieNodes:         c.dstTrie.NodeCount(),
		SrcPortTreeHeight:    c.srcPorts.Height(),
		DstPortTreeHeight:    c.dstPorts.Height(),
		SrcPortTreeSize:      c.srcPorts.Size(),
		DstPortTreeSize:      c.dstPorts.Size(),
		PrefilterEnabled:     c.filter != nil,
	}
	if c.filter != nil {
		d.PrefilterBits, d.PrefilterHashes = c.filter.Size()
		d.PrefilterPopCount = c.filter.PopCount()
		d.PrefilterEstimatedFPRate = c.filter.EstimatedFalsePositiveRate()
		d.PrefilterRemovedSinceRebuild = c.filter.RemovedSinceRebuild()
	}
	return d
}
