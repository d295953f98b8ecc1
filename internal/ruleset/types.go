// Package ruleset implements the rule store (C1): the authoritative
// mapping from rule id to rule, a priority-sorted view, and per-rule
// atomic statistics. It owns the domain value types (Rule, Filter,
// Prefix, PortRange, Action) that the rest of the classifier shares.
package ruleset

import (
	"sync/atomic"
)

// Protocol is an L4 protocol number; 0 means "any".
type Protocol uint8

// Prefix is an IPv4 address/length pair. Addr holds only the significant
// high bits (the invariant that bits beyond Len are zero is enforced by
// Validate, not by the type itself).
type Prefix struct {
	Addr uint32
	Len  uint8 // 0..32
}

// PortRange is an inclusive [Low, High] range over L4 ports.
type PortRange struct {
	Low, High uint16
}

// ActionKind identifies the primary action variant.
type ActionKind uint8

const (
	ActionForward ActionKind = iota
	ActionDrop
	ActionLog
	ActionMirror
)

// Action is one entry in a rule's ordered action list. Only the fields
// relevant to Kind are meaningful.
type Action struct {
	Kind    ActionKind
	NextHop uint32 // ActionForward
	Tag     string // ActionLog
	Target  string // ActionMirror
}

// Filter is a rule's five-field predicate. A nil pointer field means
// "any" for that field; Protocol uses the zero value for "any" instead,
// since protocol is not optional the way the other fields are.
type Filter struct {
	SrcPrefix *Prefix
	DstPrefix *Prefix
	SrcPort   *PortRange
	DstPort   *PortRange
	Protocol  Protocol
}

// Rule is a classification rule. Everything but Enabled and the counters
// is treated as immutable once stored: Modify always replaces the whole
// value rather than mutating fields in place, so a *Rule reached through a
// published snapshot never changes underneath a reader.
type Rule struct {
	ID       uint32
	Priority int32
	Filter   Filter
	Actions  []Action
	Enabled  bool

	matchCount  atomic.Uint64
	lastMatchNs atomic.Int64
}

// MatchCount returns the rule's current match counter.
func (r *Rule) MatchCount() uint64 { return r.matchCount.Load() }

// LastMatchNanos returns the unix-nanosecond timestamp of the rule's last
// match, or 0 if it has never matched (or was reset).
func (r *Rule) LastMatchNanos() int64 { return r.lastMatchNs.Load() }

// BumpCounter atomically increments the match counter and records ts as
// the last-match timestamp. It takes no lock: this is what lets the
// classify hot path update statistics without going through the store's
// write path.
func (r *Rule) BumpCounter(ts int64) {
	r.matchCount.Add(1)
	r.lastMatchNs.Store(ts)
}

// ResetCounter zeroes the match counter and last-match timestamp.
func (r *Rule) ResetCounter() {
	r.matchCount.Store(0)
	r.lastMatchNs.Store(0)
}

// clone returns a new *Rule with the same field values but fresh,
// zero-valued atomics and a non-aliased Actions slice; used whenever a
// rule is inserted into a Store so the caller's own Rule can keep being
// mutated without affecting the stored copy.
func (r *Rule) clone() *Rule {
	cp := &Rule{ID: r.ID, Priority: r.Priority, Filter: r.Filter, Enabled: r.Enabled}
	cp.Actions = append([]Action(nil), r.Actions...)
	return cp
}

// RuleBody carries every mutable field of a rule, used by Modify to
// replace a rule's body while keeping its ID and counters.
type RuleBody struct {
	Priority int32
	Filter   Filter
	Actions  []Action
	Enabled  bool
}
