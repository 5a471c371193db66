package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/dshills/rlm-engine/run"
)

// aggregatePass scans for split parents whose children are all terminal and
// whose own Result is still absent, aggregates each such parent, and
// returns how many parents were aggregated (spec.md §4.6.2 step 1,
// §4.6.6).
func (s *Scheduler) aggregatePass(r run.Run) (int, error) {
	nodes, err := s.store.LatestNodes()
	if err != nil {
		return 0, err
	}
	results, err := s.store.LatestResults()
	if err != nil {
		return 0, err
	}

	var parentIDs []string
	for id, n := range nodes {
		if n.Decision != run.DecisionSplit || len(n.ChildIDs) == 0 {
			continue
		}
		if _, done := results[id]; done {
			continue
		}
		if !allChildrenTerminal(nodes, n.ChildIDs) {
			continue
		}
		parentIDs = append(parentIDs, id)
	}
	sort.Strings(parentIDs) // deterministic order within a single step

	count := 0
	for _, id := range parentIDs {
		parent := nodes[id]
		if err := s.aggregateOne(r, parent, nodes, results); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func allChildrenTerminal(nodes map[string]run.Node, childIDs []string) bool {
	for _, cid := range childIDs {
		c, ok := nodes[cid]
		if !ok || !c.Terminal() {
			return false
		}
	}
	return true
}

func (s *Scheduler) aggregateOne(r run.Run, parent run.Node, nodes map[string]run.Node, results map[string]run.Result) error {
	var findings []run.Finding
	var summaries []string
	failedCount := 0
	for _, cid := range parent.ChildIDs {
		child := nodes[cid]
		if child.Status == run.NodeStatusFailed || child.Status == run.NodeStatusCancelled {
			failedCount++
		}
		if res, ok := results[cid]; ok {
			findings = append(findings, res.Findings...)
			summaries = append(summaries, res.Summary)
		}
	}

	childCount := len(parent.ChildIDs)
	var status string
	var notes string
	switch {
	case failedCount == childCount:
		status = run.ResultFailed
		notes = fmt.Sprintf("all %d children failed or were cancelled", childCount)
	case failedCount > 0:
		status = run.ResultPartial
		notes = fmt.Sprintf("%d of %d children failed or were cancelled", failedCount, childCount)
	default:
		status = run.ResultCompleted
	}

	result := run.Result{
		RunID:            r.RunID,
		NodeID:           parent.NodeID,
		Status:           status,
		Summary:          fmt.Sprintf("Aggregated %d children: %s", childCount, joinSummaries(summaries)),
		Findings:         findings,
		AggregationNotes: notes,
		CreatedAt:        time.Now(),
	}
	if err := s.store.AppendResult(result); err != nil {
		return err
	}

	parent.UpdatedAt = time.Now()
	switch status {
	case run.ResultFailed:
		parent.Status = run.NodeStatusFailed
	default:
		parent.Status = run.NodeStatusCompleted
		confidence := 0.8
		if status == run.ResultPartial {
			confidence = 0.6
		}
		parent.Confidence = &confidence
	}
	if err := s.store.AppendNode(parent); err != nil {
		return err
	}
	s.emit(r.RunID, parent.NodeID, run.EventNodeAggregated, map[string]interface{}{"status": status})
	return nil
}

func joinSummaries(summaries []string) string {
	if len(summaries) == 0 {
		return "(no child summaries)"
	}
	out := summaries[0]
	for _, s := range summaries[1:] {
		out += " | " + s
	}
	if len(out) > 2000 {
		out = out[:2000] + "..."
	}
	return out
}
