package classifier

// prefixArgs normalizes an optional Prefix filter field into trie
// arguments: a nil Prefix means "any address", represented as the
// zero-length prefix that terminates at the trie root and so matches
// every address.
func prefixArgs(p *Prefix) (addr uint32, length uint8) {
	if p == nil {
		return 0, 0
	}
	return p.Addr, p.Len
}

// portArgs normalizes an optional PortRange filter field into range-tree
// arguments: a nil PortRange means "any port", represented as the full
// [0, 65535] range.
func portArgs(p *PortRange) (low, high uint16) {
	if p == nil {
		return 0, 65535
	}
	return p.Low, p.High
}

// insertIndices registers r under all four field indices and, if the
// prefilter is enabled, its protocol signature(s). It retires each
// index's previous root through the epoch scheme rather than discarding
// it directly, so a reader still traversing the old root is never left
// holding a dangling reference.
func (c *Classifier) insertIndices(r *Rule) {
	retiredAt := c.ep.Current()

	srcAddr, srcLen := prefixArgs(r.Filter.SrcPrefix)
	if old := c.srcTrie.Insert(srcAddr, srcLen, r.ID); old != nil {
		c.retire(retiredAt, old)
	}

	dstAddr, dstLen := prefixArgs(r.Filter.DstPrefix)
	if old := c.dstTrie.Insert(dstAddr, dstLen, r.ID); old != nil {
		c.retire(retiredAt, old)
	}

	srcLow, srcHigh := portArgs(r.Filter.SrcPort)
	if old := c.srcPorts.Insert(srcLow, srcHigh, r.ID); old != nil {
		c.retire(retiredAt, old)
	}

	dstLow, dstHigh := portArgs(r.Filter.DstPort)
	if old := c.dstPorts.Insert(dstLow, dstHigh, r.ID); old != nil {
		c.retire(retiredAt, old)
	}

	c.ep.Advance()

	if c.filter != nil {
		for _, sig := range ruleSignatures(r.Filter) {
			c.filter.Insert(sig)
		}
	}
}

// removeIndices is insertIndices' inverse. It does not touch the
// prefilter's bit array (Bloom filters don't support removal); it only
// records that a rule left, so the facade knows when accumulated
// removals warrant a rebuild.
func (c *Classifier) removeIndices(r *Rule) {
	retiredAt := c.ep.Current()

	srcAddr, srcLen := prefixArgs(r.Filter.SrcPrefix)
	if old := c.srcTrie.Remove(srcAddr, srcLen, r.ID); old != nil {
		c.retire(retiredAt, old)
	}

	dstAddr, dstLen := prefixArgs(r.Filter.DstPrefix)
	if old := c.dstTrie.Remove(dstAddr, dstLen, r.ID); old != nil {
		c.retire(retiredAt, old)
	}

	srcLow, srcHigh := portArgs(r.Filter.SrcPort)
	if old := c.srcPorts.Remove(srcLow, srcHigh, r.ID); old != nil {
		c.retire(retiredAt, old)
	}

	dstLow, dstHigh := portArgs(r.Filter.DstPort)
	if old := c.dstPorts.Remove(dstLow, dstHigh, r.ID); old != nil {
		c.retire(retiredAt, old)
	}

	c.ep.Advance()

	if c.filter != nil {
		c.filter.NoteRuleRemoved()
	}
}

// retire schedules a retired index root's release through the background
// reclaimer once no reader can still be traversing it. old is only ever
// passed by a caller that has already checked it against its own
// concrete-typed nil (an any-typed nil wrapping a nil *node would
// otherwise compare unequal to nil itself). Freeing it means handing the
// slot to the configured Allocator so any external bulk-allocation
// bookkeeping can keep up with the index's actual memory use.
func (c *Classifier) retire(retiredAt uint64, old any) {
	alloc := c.opts.Allocator
	c.reclaimer.Retire(retiredAt, func() { alloc.Release() })
}

// maybeRebuildPrefilterLocked rebuilds the prefilter from the current
// live rule set if enough removals have accumulated since the last
// rebuild, if the filter's estimated false-positive rate has risen above
// twice its target, or if the filter has saturated (every query now reads
// PossiblyPresent, so it has no remaining selectivity). Called with
// writerMu held.
func (c *Classifier) maybeRebuildPrefilterLocked() {
	if c.filter == nil {
		return
	}

	saturated := c.filter.Saturated()
	needsRebuild := saturated ||
		c.filter.RemovedSinceRebuild() >= c.opts.RebuildRemovalThreshold ||
		c.filter.EstimatedFalsePositiveRate() > c.opts.TargetFalsePositive*2
	if !needsRebuild {
		return
	}

	live := c.store.SnapshotByPriority()

	// A saturated filter ran out of bits at its current m; resizing for
	// exactly the live rule count reproduces the same saturation on the
	// next few inserts, so grow m instead of just refreshing it.
	target := uint32(len(live))
	if saturated {
		c.metrics.prefilterSaturations.Inc()
		c.logger.Warn("prefilter saturated, rebuilding with a larger m", "live_rules", len(live))
		target *= 2
	}

	c.filter.Rebuild(target)
	for _, r := range live {
		for _, sig := range ruleSignatures(r.Filter) {
			c.filter.Insert(sig)
		}
	}
	c.metrics.prefilterRebuilds.Inc()
	c.logger.Info("prefilter rebuilt", "live_rules", len(live))
}
