// Package classifier implements an in-memory, high-throughput IPv4 packet
// classifier (C5, the classifier facade): given a packet's 5-tuple header,
// it returns the highest-priority rule matching that packet and the
// action list attached to it, coordinating a rule store, two
// longest-prefix-match tries, two interval trees, and an optional Bloom
// filter prefilter under a single-writer, many-reader concurrency
// discipline.
package classifier

import (
	"github.com/plexsphere/classifierd/internal/codes"
	"github.com/plexsphere/classifierd/internal/ruleset"
)

// Domain value types are owned by internal/ruleset (the rule store needs
// them to exist before anything else does) and re-exported here by alias
// so callers only ever import the root package.
type (
	Protocol   = ruleset.Protocol
	Prefix     = ruleset.Prefix
	PortRange  = ruleset.PortRange
	ActionKind = ruleset.ActionKind
	Action     = ruleset.Action
	Filter     = ruleset.Filter
	Rule       = ruleset.Rule
	RuleBody   = ruleset.RuleBody

	// ConflictPolicy lets a caller replace the default no-conflict
	// verdict with a richer check (e.g. overlapping filters at equal
	// priority) without changing any other code.
	ConflictPolicy = ruleset.ConflictPolicy
)

const (
	ActionForward = ruleset.ActionForward
	ActionDrop    = ruleset.ActionDrop
	ActionLog     = ruleset.ActionLog
	ActionMirror  = ruleset.ActionMirror
)

// AllowAllPolicy is the default ConflictPolicy: no conflict, ever.
type AllowAllPolicy = ruleset.AllowAllPolicy

// Code and Error are the structured write-path result codes. The
// classification (read) path never returns one: it is always total.
type (
	Code  = codes.Code
	Error = codes.Error
)

const (
	CodeOK                    = codes.OK
	CodeDuplicateID           = codes.DuplicateID
	CodeNotFound              = codes.NotFound
	CodeInvalidRule           = codes.InvalidRule
	CodeConflict              = codes.Conflict
	CodeAllocatorExhausted    = codes.AllocatorExhausted
	CodeInternalInconsistency = codes.InternalInconsistency
	CodeSaturatedPrefilter    = codes.SaturatedPrefilter
)

// PacketHeader is the 5-tuple used for classification.
type PacketHeader struct {
	SrcIP, DstIP     uint32
	SrcPort, DstPort uint16
	Protocol         Protocol
}

// ClassificationResult is always returned by Classify/ClassifyBatch; it
// never carries an error. Matched is false when no rule applies.
type ClassificationResult struct {
	Matched bool
	RuleID  uint32
	Actions []Action
}
