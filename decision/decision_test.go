package decision

import (
	"testing"

	"github.com/dshills/rlm-engine/run"
)

func baseNode() run.Node {
	return run.Node{
		Depth: 1,
		Budgets: run.Budgets{
			MaxDepth:          4,
			RemainingLLMCalls: 10,
			RemainingTokens:   1000,
			DeadlineEpochMs:   1_000_000,
		},
	}
}

func TestDecideOrderedReasons(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(n *run.Node)
		now      int64
		metrics  ScopeMetrics
		mode     string
		wantDec  string
		wantRsn  string
	}{
		{
			name:    "deadline exceeded short-circuits everything",
			mutate:  func(n *run.Node) { n.Depth = 100 }, // would otherwise be max_depth
			now:     2_000_000,
			wantDec: run.DecisionLeaf,
			wantRsn: run.ReasonDeadlineExceeded,
		},
		{
			name:    "max depth reached",
			mutate:  func(n *run.Node) { n.Depth = 4 },
			now:     1,
			wantDec: run.DecisionLeaf,
			wantRsn: run.ReasonMaxDepthReached,
		},
		{
			name:    "llm budget exhausted",
			mutate:  func(n *run.Node) { n.Budgets.RemainingLLMCalls = 0 },
			now:     1,
			wantDec: run.DecisionLeaf,
			wantRsn: run.ReasonLLMBudgetExhausted,
		},
		{
			name:    "token budget exhausted",
			mutate:  func(n *run.Node) { n.Budgets.RemainingTokens = 0 },
			now:     1,
			wantDec: run.DecisionLeaf,
			wantRsn: run.ReasonTokenBudgetExhausted,
		},
		{
			name:    "scope too large in review mode at lower threshold",
			mode:    run.ModeReview,
			metrics: ScopeMetrics{FileCount: 13},
			now:     1,
			wantDec: run.DecisionSplit,
			wantRsn: run.ReasonScopeTooLarge,
		},
		{
			name:    "scope small enough",
			now:     1,
			metrics: ScopeMetrics{FileCount: 3, TotalBytes: 100},
			wantDec: run.DecisionLeaf,
			wantRsn: run.ReasonScopeSmallEnough,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := baseNode()
			if tc.mutate != nil {
				tc.mutate(&n)
			}
			out := Decide(tc.mode, n, tc.metrics, tc.now)
			if out.Decision != tc.wantDec || out.Reason != tc.wantRsn {
				t.Fatalf("got %+v, want decision=%s reason=%s", out, tc.wantDec, tc.wantRsn)
			}
		})
	}
}

func TestDecideGenericThresholdHigherThanReview(t *testing.T) {
	n := baseNode()
	out := Decide(run.ModeGeneric, n, ScopeMetrics{FileCount: 13}, 1)
	if out.Decision != run.DecisionLeaf {
		t.Fatalf("generic mode threshold is 16 files; 13 files should stay a leaf, got %+v", out)
	}
}
