package classifier

// Allocator is the bulk allocator abstraction the core assumes (see the
// spec's scope note: the core treats it as an O(1) acquire/release
// capability and does not implement it). Acquire is called before a write
// allocates new rule/index state; Release is called once the epoch scheme
// proves the state it replaced is unreachable. The default NoopAllocator
// never fails and does no bookkeeping.
type Allocator interface {
	Acquire() error
	Release()
}

// NoopAllocator is the default Allocator: always succeeds, does nothing.
type NoopAllocator struct{}

func (NoopAllocator) Acquire() error { return nil }
func (NoopAllocator) Release()       {}

// Options configures a new Classifier.
type Options struct {
	// EnablePrefilter controls whether the negative Bloom-filter
	// prefilter (C4) is consulted before a full lookup. Disabling it
	// costs selectivity on the miss path but removes the Bloom filter's
	// memory footprint entirely.
	EnablePrefilter bool

	// ExpectedRuleCount and TargetFalsePositive size the prefilter (see
	// internal/prefilter.New). Ignored if EnablePrefilter is false.
	ExpectedRuleCount  uint32
	TargetFalsePositive float64

	// ConflictPolicy overrides the default AllowAllPolicy.
	ConflictPolicy ConflictPolicy

	// Allocator overrides the default NoopAllocator.
	Allocator Allocator

	// RebuildRemovalThreshold is the number of rule removals since the
	// last prefilter rebuild that triggers an automatic rebuild,
	// independent of the false-positive-rate and saturation triggers.
	// Zero selects the default: ExpectedRuleCount/4, or 16 if that is
	// zero.
	RebuildRemovalThreshold uint64
}

func (o Options) withDefaults() Options {
	if o.ExpectedRuleCount == 0 {
		o.ExpectedRuleCount = 1024
	}
	if o.TargetFalsePositive <= 0 || o.TargetFalsePositive >= 1 {
		o.TargetFalsePositive = 0.01
	}
	if o.ConflictPolicy == nil {
		o.ConflictPolicy = AllowAllPolicy{}
	}
	if o.Allocator == nil {
		o.Allocator = NoopAllocator{}
	}
	if o.RebuildRemovalThreshold == 0 {
		o.RebuildRemovalThreshold = uint64(o.ExpectedRuleCount) / 4
		if o.RebuildRemovalThreshold == 0 {
			o.RebuildRemovalThreshold = 16
		}
	}
	return o
}
