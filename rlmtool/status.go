package rlmtool

import (
	"sort"

	"github.com/dshills/rlm-engine/run"
)

// maxActiveBranchPreview bounds the active branch preview (spec.md §6.2
// "repo_rlm_status").
const maxActiveBranchPreview = 8

// ActiveBranch is one entry of StatusDoc's active branch preview.
type ActiveBranch struct {
	NodeID   string `json:"node_id"`
	Depth    int    `json:"depth"`
	Status   string `json:"status"`
	Decision string `json:"decision"`
}

// StatusDoc is the repo_rlm_status payload (spec.md §6.2): the run plus
// enough of its node/queue state to inspect progress without re-deriving
// it from the run directory by hand.
type StatusDoc struct {
	Run            run.Run             `json:"run"`
	Nodes          map[string]run.Node `json:"nodes"`
	QueueEvents    []run.QueueEvent    `json:"queue_events"`
	ResultCount    int                 `json:"result_count"`
	DepthHistogram map[string]int      `json:"depth_histogram"`
	ActiveBranches []ActiveBranch      `json:"active_branches"`
}

// buildStatusDoc assembles a StatusDoc from a run's current snapshot.
func buildStatusDoc(r run.Run, nodes map[string]run.Node, queueEvents []run.QueueEvent, resultCount int) StatusDoc {
	return StatusDoc{
		Run:            r,
		Nodes:          nodes,
		QueueEvents:    queueEvents,
		ResultCount:    resultCount,
		DepthHistogram: run.DepthHistogram(nodes),
		ActiveBranches: activeBranchPreview(nodes),
	}
}

// activeBranchPreview lists up to maxActiveBranchPreview queued/running
// nodes, shallowest and oldest first (mirroring scheduler.selectNext's BFS
// ordering), so the preview reads as "what the scheduler would do next".
func activeBranchPreview(nodes map[string]run.Node) []ActiveBranch {
	var active []run.Node
	for _, n := range nodes {
		if n.Status == run.NodeStatusQueued || n.Status == run.NodeStatusRunning {
			active = append(active, n)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		a, b := active[i], active[j]
		if a.Depth != b.Depth {
			return a.Depth < b.Depth
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	if len(active) > maxActiveBranchPreview {
		active = active[:maxActiveBranchPreview]
	}

	preview := make([]ActiveBranch, 0, len(active))
	for _, n := range active {
		preview = append(preview, ActiveBranch{
			NodeID:   n.NodeID,
			Depth:    n.Depth,
			Status:   n.Status,
			Decision: n.Decision,
		})
	}
	return preview
}
