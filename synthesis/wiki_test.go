package synthesis

import (
	"strings"
	"testing"

	"github.com/dshills/rlm-engine/run"
)

func TestBuildWikiIndexAndModules(t *testing.T) {
	r := run.Run{RunID: "run-w", Objective: "document architecture and quality"}
	results := map[string]run.Result{
		"root:0": {
			NodeID:  "root:0",
			Summary: "alpha module summary",
			Artifacts: []run.Artifact{
				{Kind: run.ArtifactWikiNode, Path: "wiki/nodes/root_0.md"},
			},
		},
		"root:1": {
			NodeID:  "root:1",
			Summary: "beta module summary",
			Artifacts: []run.Artifact{
				{Kind: run.ArtifactWikiNode, Path: "wiki/nodes/root_1.md"},
			},
		},
	}

	artifacts := BuildWiki(r, results)
	if !strings.Contains(string(artifacts.IndexMD), "root:0") || !strings.Contains(string(artifacts.IndexMD), "root:1") {
		t.Fatalf("expected both node refs in index: %s", artifacts.IndexMD)
	}
	if !strings.Contains(string(artifacts.ModuleIndexMD), "wiki:") {
		t.Fatalf("expected module counts for 'wiki' segment: %s", artifacts.ModuleIndexMD)
	}
	if !strings.Contains(string(artifacts.ArchitectureSummaryMD), "architecture") {
		t.Fatalf("expected architecture focus tag in summary: %s", artifacts.ArchitectureSummaryMD)
	}
}

func TestCollectWikiNodeArtifactsDedupesByPath(t *testing.T) {
	results := map[string]run.Result{
		"a": {NodeID: "a", Artifacts: []run.Artifact{{Kind: run.ArtifactWikiNode, Path: "wiki/nodes/x.md"}}},
		"b": {NodeID: "b", Artifacts: []run.Artifact{{Kind: run.ArtifactWikiNode, Path: "wiki/nodes/x.md"}}},
	}
	refs := collectWikiNodeArtifacts(results)
	if len(refs) != 1 {
		t.Fatalf("expected dedupe by path, got %d refs", len(refs))
	}
}
