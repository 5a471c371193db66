// Package run defines the persisted data model for the repo-scale recursive
// runner (Run, Node, Result, Finding, queue events) and the event-sourced
// store that reconstructs them from an on-disk run directory.
package run

import (
	"strconv"
	"time"
)

// Status values for a Run.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// Mode values for a Run.
const (
	ModeGeneric = "generic"
	ModeWiki    = "wiki"
	ModeReview  = "review"
)

// Scheduler policy values.
const (
	SchedulerBFS    = "bfs"
	SchedulerDFS    = "dfs"
	SchedulerHybrid = "hybrid"
)

// Status values for a Node.
const (
	NodeStatusQueued    = "queued"
	NodeStatusRunning   = "running"
	NodeStatusCompleted = "completed"
	NodeStatusFailed    = "failed"
	NodeStatusCancelled = "cancelled"
)

// Decision values for a Node.
const (
	DecisionUndecided = "undecided"
	DecisionLeaf      = "leaf"
	DecisionSplit     = "split"
)

// Scope types for a Node.
const (
	ScopeRepo      = "repo"
	ScopeDir       = "dir"
	ScopeModule    = "module"
	ScopeFileGroup = "file_group"
	ScopeFileSlice = "file_slice"
)

// Domain tags for findings and nodes.
const (
	DomainSecurity     = "security"
	DomainQuality      = "quality"
	DomainPerformance  = "performance"
	DomainDocs         = "docs"
	DomainArchitecture = "architecture"
)

// Finding severities, ordered weakest to strongest.
const (
	SeverityInfo     = "info"
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// SeverityRank maps a severity to its numeric rank used by synthesis
// ranking and the risk score formula (spec.md §4.7).
var SeverityRank = map[string]int{
	SeverityCritical: 5,
	SeverityHigh:     4,
	SeverityMedium:   3,
	SeverityLow:      2,
	SeverityInfo:     1,
}

// Result statuses.
const (
	ResultCompleted = "completed"
	ResultPartial   = "partial"
	ResultFailed    = "failed"
)

// Queue event kinds (spec.md §4.1).
const (
	EventNodeEnqueued  = "node_enqueued"
	EventNodeDequeued  = "node_dequeued"
	EventNodeStarted   = "node_started"
	EventNodeSplit     = "node_split"
	EventNodeAggregated = "node_aggregated"
	EventNodeCompleted = "node_completed"
	EventNodeFailed    = "node_failed"
	EventNodeRequeued  = "node_requeued"
	EventRunCancelled  = "run_cancelled"
	EventRunResumed    = "run_resumed"
)

// Decision reason codes, in evaluation order (spec.md §4.3).
const (
	ReasonDeadlineExceeded       = "deadline_exceeded"
	ReasonMaxDepthReached        = "max_depth_reached"
	ReasonLLMBudgetExhausted     = "llm_budget_exhausted"
	ReasonTokenBudgetExhausted   = "token_budget_exhausted"
	ReasonScopeTooLarge          = "scope_too_large"
	ReasonScopeSmallEnough       = "scope_small_enough"
	ReasonSplitNoChildrenFallback = "split_no_children_fallback_leaf"
)

// Artifact kinds registered in output_index / result artifacts.
const (
	ArtifactWikiNode             = "wiki_node"
	ArtifactWikiIndex            = "wiki_index"
	ArtifactWikiModuleIndex      = "wiki_module_index"
	ArtifactWikiArchitecture     = "wiki_architecture_summary"
	ArtifactReviewFindingsRanked = "review_findings_ranked"
	ArtifactReviewClusters       = "review_findings_clusters"
	ArtifactReviewSummary        = "review_summary"
	ArtifactReviewReport         = "review_report"
	ArtifactCodeQuality          = "codequality"
	ArtifactSARIF                = "sarif"
	ArtifactExport               = "export"
)

// Config holds the per-run budget and scheduling configuration
// (spec.md §3.1, §6.2 defaults applied by the caller of StartRun).
type Config struct {
	MaxDepth        int    `json:"max_depth"`
	MaxLLMCalls     int    `json:"max_llm_calls"`
	MaxTokens       int    `json:"max_tokens"`
	MaxWallClockMs  int64  `json:"max_wall_clock_ms"`
	Scheduler       string `json:"scheduler"`
}

// Progress is a pure function of the latest node snapshots (spec.md §3.1).
type Progress struct {
	NodesTotal     int `json:"nodes_total"`
	NodesCompleted int `json:"nodes_completed"`
	NodesFailed    int `json:"nodes_failed"`
	ActiveNodes    int `json:"active_nodes"`
	MaxDepthSeen   int `json:"max_depth_seen"`
}

// OutputEntry is one entry of a Run's output_index.
type OutputEntry struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
}

// Checkpoint tracks how much of the queue log has been observed.
type Checkpoint struct {
	LastEventOffset int       `json:"last_event_offset"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Run is the top-level persisted entity for one repo-scale recursive run.
type Run struct {
	RunID        string        `json:"run_id"`
	Objective    string        `json:"objective"`
	Mode         string        `json:"mode"`
	Status       string        `json:"status"`
	RootNodeID   string        `json:"root_node_id"`
	Config       Config        `json:"config"`
	Progress     Progress      `json:"progress"`
	OutputIndex  []OutputEntry `json:"output_index"`
	Checkpoint   Checkpoint    `json:"checkpoint"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// ScopeRef names the file paths a node is responsible for.
type ScopeRef struct {
	Paths []string `json:"paths"`
}

// Budgets are the recursion budgets carried by a node (spec.md §3.2).
type Budgets struct {
	MaxDepth           int   `json:"max_depth"`
	RemainingLLMCalls  int   `json:"remaining_llm_calls"`
	RemainingTokens    int   `json:"remaining_tokens"`
	DeadlineEpochMs    int64 `json:"deadline_epoch_ms"`
}

// NodeMetrics are optional scope/execution metrics recorded on a node.
type NodeMetrics struct {
	FileCount     int   `json:"file_count"`
	TotalBytes    int64 `json:"total_bytes"`
	DurationMs    int64 `json:"duration_ms"`
	FindingsCount int   `json:"findings_count"`
}

// NodeErr is a structured node execution error (spec.md §7).
type NodeErr struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Node is a scoped unit of work in the run's recursion tree (spec.md §3.2).
type Node struct {
	RunID          string       `json:"run_id"`
	NodeID         string       `json:"node_id"`
	ParentID       string       `json:"parent_id,omitempty"`
	Depth          int          `json:"depth"`
	ScopeType      string       `json:"scope_type"`
	ScopeRef       ScopeRef     `json:"scope_ref"`
	Objective      string       `json:"objective"`
	Domain         string       `json:"domain,omitempty"`
	Status         string       `json:"status"`
	Decision       string       `json:"decision"`
	DecisionReason string       `json:"decision_reason,omitempty"`
	ChildIDs       []string     `json:"child_ids,omitempty"`
	Confidence     *float64     `json:"confidence,omitempty"`
	Budgets        Budgets      `json:"budgets"`
	Metrics        *NodeMetrics `json:"metrics,omitempty"`
	Errors         []NodeErr    `json:"errors,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Terminal reports whether the node is in a terminal status.
func (n Node) Terminal() bool {
	switch n.Status {
	case NodeStatusCompleted, NodeStatusFailed, NodeStatusCancelled:
		return true
	default:
		return false
	}
}

// Evidence is a single evidence pointer for a Finding (spec.md §3.4).
type Evidence struct {
	Path      string `json:"path"`
	LineStart int    `json:"line_start"`
	LineEnd   int    `json:"line_end"`
	Quote     string `json:"quote,omitempty"`
}

// Finding is a reviewable observation (spec.md §3.4).
type Finding struct {
	ID            string     `json:"id"`
	Domain        string     `json:"domain"`
	Severity      string     `json:"severity"`
	Confidence    float64    `json:"confidence"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	SuggestedFix  string     `json:"suggested_fix,omitempty"`
	Evidence      []Evidence `json:"evidence"`
}

// Artifact is a {kind, path} pair relative to the run directory.
type Artifact struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
}

// Result is the outcome of executing (or aggregating) a node (spec.md §3.3).
type Result struct {
	RunID             string     `json:"run_id"`
	NodeID            string     `json:"node_id"`
	Status            string     `json:"status"`
	Summary           string     `json:"summary"`
	Findings          []Finding  `json:"findings,omitempty"`
	Artifacts         []Artifact `json:"artifacts,omitempty"`
	AggregationNotes  string     `json:"aggregation_notes,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// QueueEvent is one entry of the append-only queue.jsonl log (spec.md §4.1).
type QueueEvent struct {
	RunID     string                 `json:"run_id"`
	Event     string                 `json:"event"`
	NodeID    string                 `json:"node_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// DepthHistogram tallies node count by recursion depth, keyed by the
// string form of Node.Depth (e.g. "0": 1), the shape spec.md §6.2's
// repo_rlm_status and §8's export.json scenario both require.
func DepthHistogram(nodes map[string]Node) map[string]int {
	hist := make(map[string]int)
	for _, n := range nodes {
		hist[strconv.Itoa(n.Depth)]++
	}
	return hist
}
