// Package split implements the split planner (C4, spec.md §4.4): given a
// node's scope, it produces non-overlapping child scopes with distributed
// budgets. There is no direct teacher analog (the teacher's workflow edges
// are authored statically at build time); this package follows the
// teacher's preference for small pure functions returning explicit
// structured output instead.
package split

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/rlm-engine/run"
	"github.com/dshills/rlm-engine/scope"
)

const splitCostLLMCalls = 1
const splitCostTokens = 4000
const fileGroupSize = 8

var sanitizeRe = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

func sanitizeLabel(label string) string {
	s := sanitizeRe.ReplaceAllString(label, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "group"
	}
	return s
}

// Plan enumerates the immediate children of parent's scope paths and
// returns the resulting child nodes, already budgeted and marked
// decision=undecided; the caller (the scheduler) sets decision=split on the
// parent.
//
// Per spec.md §4.4: if any subdirectories exist among the parent's scope
// paths, one child per subdirectory is produced (scope_type=dir). Otherwise
// the parent's leaf files are grouped into chunks of up to 8
// (scope_type=file_group). A file belongs to exactly one child scope.
func Plan(parent run.Node) ([]run.Node, error) {
	var allDirs, allFiles []string
	for _, p := range parent.ScopeRef.Paths {
		dirs, files, err := scope.Enumerate(p)
		if err != nil {
			return nil, err
		}
		allDirs = append(allDirs, dirs...)
		allFiles = append(allFiles, files...)
	}

	var groups [][]string
	var labels []string
	var scopeType string

	if len(allDirs) > 0 {
		scopeType = run.ScopeDir
		for _, d := range allDirs {
			groups = append(groups, []string{d})
			labels = append(labels, lastPathSegment(d))
		}
	} else if len(allFiles) > 0 {
		scopeType = run.ScopeFileGroup
		for i := 0; i < len(allFiles); i += fileGroupSize {
			end := i + fileGroupSize
			if end > len(allFiles) {
				end = len(allFiles)
			}
			groups = append(groups, allFiles[i:end])
			labels = append(labels, fmt.Sprintf("group-%d", i/fileGroupSize))
		}
	}

	if len(groups) == 0 {
		return nil, nil
	}

	remainingLLM := parent.Budgets.RemainingLLMCalls - splitCostLLMCalls
	if remainingLLM < 0 {
		remainingLLM = 0
	}
	remainingTokens := parent.Budgets.RemainingTokens - splitCostTokens
	if remainingTokens < 0 {
		remainingTokens = 0
	}
	perChildLLM := remainingLLM / len(groups)
	perChildTokens := remainingTokens / len(groups)

	children := make([]run.Node, 0, len(groups))
	for i, g := range groups {
		label := sanitizeLabel(labels[i])
		childID := fmt.Sprintf("%s:%d:%s", parent.NodeID, i, label)
		children = append(children, run.Node{
			RunID:     parent.RunID,
			NodeID:    childID,
			ParentID:  parent.NodeID,
			Depth:     parent.Depth + 1,
			ScopeType: scopeType,
			ScopeRef:  run.ScopeRef{Paths: g},
			Objective: parent.Objective,
			Domain:    parent.Domain,
			Status:    run.NodeStatusQueued,
			Decision:  run.DecisionUndecided,
			Budgets: run.Budgets{
				MaxDepth:          parent.Budgets.MaxDepth,
				RemainingLLMCalls: perChildLLM,
				RemainingTokens:   perChildTokens,
				DeadlineEpochMs:   parent.Budgets.DeadlineEpochMs,
			},
		})
	}
	return children, nil
}

func lastPathSegment(p string) string {
	p = strings.TrimRight(p, "/")
	idx := strings.LastIndexAny(p, "/\\")
	if idx < 0 {
		return p
	}
	return p[idx+1:]
}
