package classifier

import (
	"github.com/plexsphere/classifierd/internal/codes"
	"github.com/plexsphere/classifierd/internal/ruleset"
)

// AddRule validates r, inserts it into the rule store, then indexes it
// across all four field indices and, if enabled, the prefilter. The four
// steps run as a single critical section under writerMu: a concurrent
// Classify call can observe the rule store and the indices slightly out
// of step with each other mid-pipeline (the rule resolvable but not yet
// indexed, or vice versa) only in the sense that it simply won't match
// the new rule yet — it can never observe a torn index, since every
// index publishes its new root atomically.
func (c *Classifier) AddRule(r Rule) error {
	c.writerMu.Lock()
	defer c.writerMu.Unlock()

	if err := c.opts.Allocator.Acquire(); err != nil {
		return codes.Wrap(codes.AllocatorExhausted, "add_rule", err)
	}

	if err := c.store.Add(&r); err != nil {
		c.opts.Allocator.Release()
		c.metrics.writes.WithLabelValues("add", codeLabel(err)).Inc()
		return err
	}

	stored, _ := c.store.Resolve(r.ID)
	c.insertIndices(stored)
	c.maybeRebuildPrefilterLocked()

	c.metrics.writes.WithLabelValues("add", "ok").Inc()
	c.logger.Debug("rule added", "id", r.ID, "priority", r.Priority)
	return nil
}

// DeleteRule removes the rule with the given id from every field index
// first, then from the rule store, so a lock-free Classify running
// concurrently never resolves id in the store after the index has already
// stopped gating packets toward it, or vice versa.
func (c *Classifier) DeleteRule(id uint32) error {
	c.writerMu.Lock()
	defer c.writerMu.Unlock()

	existing, ok := c.store.Resolve(id)
	if !ok {
		c.metrics.writes.WithLabelValues("delete", codes.NotFound.String()).Inc()
		return codes.New(codes.NotFound)
	}

	c.removeIndices(existing)

	if err := c.store.Delete(id); err != nil {
		// The single writer lock and the Resolve above mean this should
		// never happen, but if it does, id is still live in the store
		// and must not be left unreachable through the field indices.
		c.insertIndices(existing)
		c.logger.Error("DeleteRule: store rejected a delete after indices were already removed", "id", id, "err", err)
		c.metrics.writes.WithLabelValues("delete", codeLabel(err)).Inc()
		return err
	}

	c.maybeRebuildPrefilterLocked()

	c.metrics.writes.WithLabelValues("delete", "ok").Inc()
	c.logger.Debug("rule deleted", "id", id)
	return nil
}

// ModifyRule replaces every mutable field of the rule at id with body's
// values, re-indexing it under its new filter. The rule's id and running
// counters are preserved.
//
// The pipeline is validate -> remove old projections -> apply the change
// in the store -> insert new projections, in that order. Since the field
// indices are authoritative for the lock-free read path (bestMatch never
// re-checks a candidate's Filter), doing the store mutation first would
// open a window where id already resolves to the new rule while the old
// rule's projections are still live: a packet matching the old filter
// would reach id in the indices and then be classified against the new
// rule's actions, an incoherent state the read path must never observe.
func (c *Classifier) ModifyRule(id uint32, body RuleBody) error {
	c.writerMu.Lock()
	defer c.writerMu.Unlock()

	existing, ok := c.store.Resolve(id)
	if !ok {
		c.metrics.writes.WithLabelValues("modify", codes.NotFound.String()).Inc()
		return codes.New(codes.NotFound)
	}

	if err := ruleset.Validate(body.Filter); err != nil {
		c.metrics.writes.WithLabelValues("modify", codeLabel(err)).Inc()
		return err
	}

	if err := c.opts.Allocator.Acquire(); err != nil {
		return codes.Wrap(codes.AllocatorExhausted, "modify_rule", err)
	}

	c.removeIndices(existing)

	if err := c.store.Modify(id, body); err != nil {
		// Validate already passed, so this is a conflict-policy veto.
		// Restore the projections we pulled so a concurrent reader keeps
		// seeing the unchanged, coherent pre-Modify state.
		c.insertIndices(existing)
		if restored, ok := c.store.Resolve(id); !ok || restored != existing {
			c.logger.Error("ModifyRule: rollback left the store and field indices disagreeing", "id", id)
			c.metrics.writes.WithLabelValues("modify", codes.InternalInconsistency.String()).Inc()
			c.opts.Allocator.Release()
			return codes.New(codes.InternalInconsistency)
		}
		c.opts.Allocator.Release()
		c.metrics.writes.WithLabelValues("modify", codeLabel(err)).Inc()
		return err
	}

	updated, _ := c.store.Resolve(id)
	c.insertIndices(updated)
	c.maybeRebuildPrefilterLocked()

	c.metrics.writes.WithLabelValues("modify", "ok").Inc()
	c.logger.Debug("rule modified", "id", id, "priority", body.Priority)
	return nil
}

func codeLabel(err error) string {
	if ce, ok := err.(*codes.Error); ok {
		return ce.Code.String()
	}
	return "error"
}
