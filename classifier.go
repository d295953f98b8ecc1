package classifier

import (
	"context"
	"log/slog"
	"sync"

	"github.com/plexsphere/classifierd/internal/epoch"
	"github.com/plexsphere/classifierd/internal/prefilter"
	"github.com/plexsphere/classifierd/internal/prefixtrie"
	"github.com/plexsphere/classifierd/internal/rangetree"
	"github.com/plexsphere/classifierd/internal/ruleset"
)

// Classifier is the classifier facade (C5): it composes the rule store
// (C1), two longest-prefix-match tries (C2, one per address direction),
// two range trees (C3, one per port direction), and an optional negative
// prefilter (C4) behind a single-writer, many-reader concurrency
// discipline. The zero value is not usable; construct with New.
type Classifier struct {
	logger *slog.Logger
	opts   Options

	store *ruleset.Store

	srcTrie  *prefixtrie.Trie
	dstTrie  *prefixtrie.Trie
	srcPorts *rangetree.Tree
	dstPorts *rangetree.Tree
	filter   *prefilter.Filter

	ep        *epoch.Epoch
	reclaimer *epoch.Reclaimer
	cancel    context.CancelFunc

	metrics *metrics

	// writerMu serializes the full write pipeline (validate -> store ->
	// indices -> prefilter) across AddRule/DeleteRule/ModifyRule. The
	// store's own mutex only protects the store; the field indices and
	// the prefilter have no mutex of their own, so the facade is what
	// makes a write atomic from a caller's point of view.
	writerMu sync.Mutex
}

// New builds a Classifier. A nil logger defaults to slog.Default().
func New(logger *slog.Logger, opts Options) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()

	ep := epoch.New()
	reclaimer := epoch.NewReclaimer(ep, 0)
	ctx, cancel := context.WithCancel(context.Background())

	c := &Classifier{
		logger:    logger.With("component", "classifier"),
		opts:      opts,
		store:     ruleset.New(opts.ConflictPolicy),
		srcTrie:   prefixtrie.New(),
		dstTrie:   prefixtrie.New(),
		srcPorts:  rangetree.New(),
		dstPorts:  rangetree.New(),
		ep:        ep,
		reclaimer: reclaimer,
		cancel:    cancel,
		metrics:   newMetrics(),
	}
	if opts.EnablePrefilter {
		c.filter = prefilter.New(opts.ExpectedRuleCount, opts.TargetFalsePositive)
	}
	go reclaimer.Run(ctx)

	c.logger.Info("classifier started",
		"prefilter_enabled", opts.EnablePrefilter,
		"expected_rule_count", opts.ExpectedRuleCount,
	)
	return c
}

// Close stops the background reclaimer and waits for it to drain. A
// Classifier must not be used after Close returns.
func (c *Classifier) Close() {
	c.cancel()
	c.reclaimer.Stop()
	c.logger.Info("classifier stopped")
}

// Len returns the number of live rules.
func (c *Classifier) Len() int { return c.store.Len() }

// EnabledLen returns the number of live, enabled rules.
func (c *Classifier) EnabledLen() int { return c.store.EnabledLen() }
