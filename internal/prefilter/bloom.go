// Package prefilter implements the negative prefilter (C4): a Bloom filter
// over packet/rule signatures used to definitively reject non-membership
// before paying for a full field-index lookup. It must never produce a
// false negative.
package prefilter

import (
	"math"
	"math/bits"
	"sync/atomic"

	"golang.org/x/crypto/blake2b"
)

// state bundles the bit array together with the m/k parameters that were in
// effect when it was built, so a reader that loads one atomic pointer never
// sees a words slice sized for one m paired with a k (or m) from a
// different generation. Rebuild publishes a whole new state.
type state struct {
	words []atomic.Uint64
	m     uint64
	k     int
}

// Filter is the negative prefilter. The zero value is not usable; build one
// with New.
type Filter struct {
	target float64 // target false-positive rate, fixed at construction

	cur atomic.Pointer[state]

	insertions   atomic.Uint64
	removedRules atomic.Uint64
}

// New sizes a Filter from the expected rule count and target false-positive
// rate using the standard formulas:
//
//	m = ceil(-n * ln(p) / ln(2)^2)
//	k = ceil((m/n) * ln(2))
func New(expectedRuleCount uint32, targetFalsePositive float64) *Filter {
	f := &Filter{target: targetFalsePositive}
	m, k := optimalParams(uint64(expectedRuleCount), targetFalsePositive)
	f.cur.Store(&state{words: make([]atomic.Uint64, wordCount(m)), m: m, k: k})
	return f
}

func optimalParams(n uint64, p float64) (m uint64, k int) {
	if n == 0 {
		n = 1
	}
	if p <= 0 || p >= 1 {
		p = 0.01
	}
	mf := math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2))
	m = uint64(mf)
	if m < 64 {
		m = 64
	}
	kf := math.Ceil((float64(m) / float64(n)) * math.Ln2)
	k = int(kf)
	if k < 1 {
		k = 1
	}
	return m, k
}

func wordCount(m uint64) uint64 { return (m + 63) / 64 }

// baseHashes computes the two independent base hashes h1, h2 that the
// standard k-reduction formula combines into k effective hash functions.
// Each is a blake2b-256 digest of the signature under a distinct
// domain-separation prefix byte, folding the first 8 bytes of the digest
// into a uint64 — one real hash evaluation per base, as the formula
// requires.
func baseHashes(sig []byte) (h1, h2 uint64) {
	buf := make([]byte, 1, 1+len(sig))
	buf[0] = 0x01
	sum1 := blake2b.Sum256(append(buf, sig...))
	buf[0] = 0x02
	sum2 := blake2b.Sum256(append(buf[:1], sig...))
	h1 = beUint64(sum1[:8])
	h2 = beUint64(sum2[:8])
	return h1, h2
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func combine(h1, h2 uint64, i int, m uint64) uint64 {
	ii := uint64(i)
	return (h1 + ii*(h2+ii+1)) % m
}

// Insert sets the k bits for sig's signature. Setting an already-set bit is
// a no-op (release-order atomic OR via CAS loop), so inserting the same
// signature twice has the same effect as once.
func (f *Filter) Insert(sig []byte) {
	h1, h2 := baseHashes(sig)
	st := f.cur.Load()
	for i := 0; i < st.k; i++ {
		idx := combine(h1, h2, i, st.m)
		setBit(st, idx)
	}
	f.insertions.Add(1)
}

func setBit(st *state, idx uint64) {
	word := idx / 64
	bit := uint64(1) << (idx % 64)
	w := &st.words[word]
	for {
		old := w.Load()
		if old&bit != 0 {
			return
		}
		if w.CompareAndSwap(old, old|bit) {
			return
		}
	}
}

// PossiblyPresent reports whether sig's signature might be in the set. A
// false return is definitive: the signature is provably absent.
func (f *Filter) PossiblyPresent(sig []byte) bool {
	h1, h2 := baseHashes(sig)
	st := f.cur.Load()
	for i := 0; i < st.k; i++ {
		idx := combine(h1, h2, i, st.m)
		word := idx / 64
		bit := uint64(1) << (idx % 64)
		if st.words[word].Load()&bit == 0 {
			return false
		}
	}
	return true
}

// DefinitelyAbsent is the complement of PossiblyPresent, named for how
// callers use it on the classify hot path.
func (f *Filter) DefinitelyAbsent(sig []byte) bool {
	return !f.PossiblyPresent(sig)
}

// NoteRuleRemoved records that a rule was removed without updating the bit
// array — standard Bloom filters don't support removal, so the classifier
// tracks how many removals have accumulated since the last rebuild to
// decide when a rebuild is warranted.
func (f *Filter) NoteRuleRemoved() {
	f.removedRules.Add(1)
}

// RemovedSinceRebuild returns the number of NoteRuleRemoved calls since the
// filter was built or last rebuilt.
func (f *Filter) RemovedSinceRebuild() uint64 {
	return f.removedRules.Load()
}

// PopCount returns the number of set bits in the current bit array.
func (f *Filter) PopCount() uint64 {
	st := f.cur.Load()
	var n uint64
	for i := range st.words {
		n += uint64(bits.OnesCount64(st.words[i].Load()))
	}
	return n
}

// EstimatedFalsePositiveRate estimates the current false-positive
// probability from the bit array's actual fill ratio, (popcount/m)^k —
// more accurate than the design-time formula once insertions have
// diverged from the expected count it was sized for.
func (f *Filter) EstimatedFalsePositiveRate() float64 {
	st := f.cur.Load()
	fill := float64(f.PopCount()) / float64(st.m)
	return math.Pow(fill, float64(st.k))
}

// Saturated reports whether every rule-relevant bit is set, meaning the
// filter has no remaining selectivity: every query will return
// PossiblyPresent. Bits beyond m in the last word are excluded.
func (f *Filter) Saturated() bool {
	st := f.cur.Load()
	n := uint64(len(st.words))
	for i, w := range st.words {
		mask := ^uint64(0)
		if uint64(i) == n-1 {
			if rem := st.m % 64; rem != 0 {
				mask = (uint64(1) << rem) - 1
			}
		}
		if w.Load()&mask != mask {
			return false
		}
	}
	return true
}

// Rebuild replaces the bit array with a fresh, empty one sized for
// expectedRuleCount and the filter's original target false-positive rate,
// and resets the insertion/removal counters. It does not reinsert any
// signatures: the caller (the classifier facade, which owns the rule ->
// signature mapping) must re-insert every live rule's signatures
// afterward.
func (f *Filter) Rebuild(expectedRuleCount uint32) {
	m, k := optimalParams(uint64(expectedRuleCount), f.target)
	f.cur.Store(&state{words: make([]atomic.Uint64, wordCount(m)), m: m, k: k})
	f.insertions.Store(0)
	f.removedRules.Store(0)
}

// Size returns the current bit array's size in bits (m) and hash count (k).
func (f *Filter) Size() (m uint64, k int) {
	st := f.cur.Load()
	return st.m, st.k
}
