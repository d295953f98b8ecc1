package ruleset

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/plexsphere/classifierd/internal/codes"
)

// ConflictPolicy is a named hook the store calls before every mutation. The
// default, AllowAllPolicy, reports no conflict; a richer policy (e.g.
// rejecting overlapping filters at equal priority) can be substituted at
// construction without changing any caller, the same shape as the
// teacher's injected FirewallController interface.
type ConflictPolicy interface {
	// Check inspects candidate against the rules that would remain live
	// alongside it (existing never includes candidate's own prior
	// version on Modify) and reports a conflicting rule id if any.
	Check(existing []*Rule, candidate *Rule) (conflictID uint32, ok bool)
}

// AllowAllPolicy is the default ConflictPolicy: no conflict, ever.
type AllowAllPolicy struct{}

func (AllowAllPolicy) Check([]*Rule, *Rule) (uint32, bool) { return 0, true }

// published is an immutable, atomically-swapped view of the live rule set:
// a priority-sorted slice and an id index built together so a reader that
// loads one never sees the slice and the index disagree.
type published struct {
	byPriority []*Rule
	byID       map[uint32]*Rule
}

// Store is the rule store (C1): authoritative id -> rule mapping with a
// priority-sorted snapshot view. Writers (Add/Delete/Modify) serialize
// through mu; readers (Resolve/SnapshotByPriority/Len/EnabledLen) load the
// published pointer and never block on mu.
type Store struct {
	mu     sync.Mutex
	live   map[uint32]*Rule // writer-owned working set, mu-protected
	policy ConflictPolicy

	pub atomic.Pointer[published]
}

// New returns an empty Store. A nil policy defaults to AllowAllPolicy.
func New(policy ConflictPolicy) *Store {
	if policy == nil {
		policy = AllowAllPolicy{}
	}
	s := &Store{live: make(map[uint32]*Rule), policy: policy}
	s.pub.Store(&published{byPriority: []*Rule{}, byID: map[uint32]*Rule{}})
	return s
}

// Add inserts rule if its id is unused and it passes validation and the
// conflict policy.
func (s *Store) Add(r *Rule) error {
	if err := Validate(r.Filter); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.live[r.ID]; exists {
		return codes.New(codes.DuplicateID)
	}
	if otherID, ok := s.policy.Check(s.allLocked(), r); !ok {
		return codes.Conflicting(otherID)
	}
	s.live[r.ID] = r.clone()
	s.publishLocked()
	return nil
}

// Delete removes the rule with the given id.
func (s *Store) Delete(id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live[id]; !ok {
		return codes.New(codes.NotFound)
	}
	delete(s.live, id)
	s.publishLocked()
	return nil
}

// Modify replaces every mutable field of the rule at id with body's values,
// keeping id and the existing counters. It validates and checks the
// conflict policy before applying anything.
func (s *Store) Modify(id uint32, body RuleBody) error {
	if err := Validate(body.Filter); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.live[id]
	if !ok {
		return codes.New(codes.NotFound)
	}
	candidate := &Rule{
		ID:       id,
		Priority: body.Priority,
		Filter:   body.Filter,
		Actions:  append([]Action(nil), body.Actions...),
		Enabled:  body.Enabled,
	}
	if otherID, ok := s.policy.Check(s.allExceptLocked(id), candidate); !ok {
		return codes.Conflicting(otherID)
	}
	candidate.matchCount.Store(existing.matchCount.Load())
	candidate.lastMatchNs.Store(existing.lastMatchNs.Load())
	s.live[id] = candidate
	s.publishLocked()
	return nil
}

// Resolve returns the live rule for id, or ok=false if none exists. It is
// lock-free: safe to call from the classify hot path.
func (s *Store) Resolve(id uint32) (*Rule, bool) {
	r, ok := s.pub.Load().byID[id]
	return r, ok
}

// SnapshotByPriority returns the current priority-sorted view: descending
// by Priority, ties ascending by ID. The returned slice is never mutated
// after publication, so it is safe to hold and range over for the lifetime
// of a reader's critical section even as writers keep mutating the store.
func (s *Store) SnapshotByPriority() []*Rule {
	return s.pub.Load().byPriority
}

// Len returns the number of live rules.
func (s *Store) Len() int { return len(s.pub.Load().byPriority) }

// EnabledLen returns the number of live rules with Enabled set.
func (s *Store) EnabledLen() int {
	n := 0
	for _, r := range s.pub.Load().byPriority {
		if r.Enabled {
			n++
		}
	}
	return n
}

// BumpCounter atomically records a match on rule id at timestamp ts
// (unix nanoseconds). Returns false if id is not live.
func (s *Store) BumpCounter(id uint32, ts int64) bool {
	r, ok := s.Resolve(id)
	if !ok {
		return false
	}
	r.BumpCounter(ts)
	return true
}

// ResetCounter zeroes rule id's counters. Returns false if id is not live.
func (s *Store) ResetCounter(id uint32) bool {
	r, ok := s.Resolve(id)
	if !ok {
		return false
	}
	r.ResetCounter()
	return true
}

// ResetAllCounters zeroes every live rule's counters.
func (s *Store) ResetAllCounters() {
	for _, r := range s.pub.Load().byPriority {
		r.ResetCounter()
	}
}

func (s *Store) allLocked() []*Rule {
	out := make([]*Rule, 0, len(s.live))
	for _, r := range s.live {
		out = append(out, r)
	}
	return out
}

func (s *Store) allExceptLocked(id uint32) []*Rule {
	out := make([]*Rule, 0, len(s.live))
	for rid, r := range s.live {
		if rid != id {
			out = append(out, r)
		}
	}
	return out
}

// publishLocked rebuilds the priority-sorted view and id index from the
// writer's working set and atomically publishes them together. Called with
// mu held, on every membership or priority change.
func (s *Store) publishLocked() {
	byPriority := make([]*Rule, 0, len(s.live))
	byID := make(map[uint32]*Rule, len(s.live))
	for _, r := range s.live {
		byPriority = append(byPriority, r)
		byID[r.ID] = r
	}
	sort.Slice(byPriority, func(i, j int) bool {
		if byPriority[i].Priority != byPriority[j].Priority {
			return byPriority[i].Priority > byPriority[j].Priority
		}
		return byPriority[i].ID < byPriority[j].ID
	})
	s.pub.Store(&published{byPriority: byPriority, byID: byID})
}
