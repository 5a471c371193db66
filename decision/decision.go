// Package decision implements the deterministic leaf/split decision engine
// (C5, spec.md §4.3). Decide is a pure function: no I/O, no clock access
// beyond the nowMs parameter supplied by the caller.
package decision

import "github.com/dshills/rlm-engine/run"

// Thresholds for the scope_too_large reason, keyed by run mode
// (spec.md §4.3 item 5).
const (
	reviewTFiles = 12
	reviewTBytes = 2_000_000
	defaultTFiles = 16
	defaultTBytes = 3_000_000
)

// ScopeMetrics is the subset of scope.Metrics the decision engine consults.
type ScopeMetrics struct {
	FileCount  int
	TotalBytes int64
}

// Outcome is the result of a decision (spec.md §4.3): Decision is "leaf" or
// "split"; Reason is one of the fixed ordered reason codes.
type Outcome struct {
	Decision string
	Reason   string
}

// Decide evaluates the fixed, ordered reason table against one node. nowMs
// is the caller-supplied current time in epoch milliseconds so the function
// stays pure and deterministic for a given input tuple (P4).
func Decide(mode string, node run.Node, metrics ScopeMetrics, nowMs int64) Outcome {
	if nowMs > node.Budgets.DeadlineEpochMs {
		return Outcome{Decision: run.DecisionLeaf, Reason: run.ReasonDeadlineExceeded}
	}
	if node.Depth >= node.Budgets.MaxDepth {
		return Outcome{Decision: run.DecisionLeaf, Reason: run.ReasonMaxDepthReached}
	}
	if node.Budgets.RemainingLLMCalls <= 0 {
		return Outcome{Decision: run.DecisionLeaf, Reason: run.ReasonLLMBudgetExhausted}
	}
	if node.Budgets.RemainingTokens <= 0 {
		return Outcome{Decision: run.DecisionLeaf, Reason: run.ReasonTokenBudgetExhausted}
	}

	tFiles, tBytes := defaultTFiles, int64(defaultTBytes)
	if mode == run.ModeReview {
		tFiles, tBytes = reviewTFiles, reviewTBytes
	}
	if metrics.FileCount > tFiles || metrics.TotalBytes > tBytes {
		return Outcome{Decision: run.DecisionSplit, Reason: run.ReasonScopeTooLarge}
	}

	return Outcome{Decision: run.DecisionLeaf, Reason: run.ReasonScopeSmallEnough}
}
