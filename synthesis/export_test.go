package synthesis

import (
	"encoding/json"
	"testing"

	"github.com/dshills/rlm-engine/run"
)

func TestBuildSARIFLevelMapping(t *testing.T) {
	deduped := []run.Finding{
		{Domain: run.DomainSecurity, Title: "t1", Description: "d1", Severity: run.SeverityCritical, Evidence: []run.Evidence{{Path: "a.go", LineStart: 1, LineEnd: 1}}},
		{Domain: run.DomainQuality, Title: "t2", Description: "d2", Severity: run.SeverityLow, Evidence: []run.Evidence{{Path: "b.go", LineStart: 0, LineEnd: 0}}},
	}
	doc := buildSARIF(deduped)
	if doc.Version != "2.1.0" {
		t.Fatalf("expected SARIF 2.1.0, got %s", doc.Version)
	}
	results := doc.Runs[0].Results
	if len(results) != 2 {
		t.Fatalf("expected 2 SARIF results, got %d", len(results))
	}
	if results[0].Level != "error" {
		t.Fatalf("expected critical to map to error, got %s", results[0].Level)
	}
	if results[1].Level != "note" {
		t.Fatalf("expected low to map to note, got %s", results[1].Level)
	}
	if results[1].Locations[0].PhysicalLocation.Region.StartLine != 1 {
		t.Fatalf("expected line floored to 1, got %d", results[1].Locations[0].PhysicalLocation.Region.StartLine)
	}
}

func TestBuildCodeQualitySeverityMapping(t *testing.T) {
	deduped := []run.Finding{
		{Title: "t1", Description: "d1", Domain: run.DomainSecurity, Severity: run.SeverityCritical, Evidence: []run.Evidence{{Path: "a.go", LineStart: 5}}},
	}
	issues := buildCodeQuality(deduped)
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(issues))
	}
	if issues[0].Severity != "blocker" {
		t.Fatalf("expected critical->blocker, got %s", issues[0].Severity)
	}
	if issues[0].Fingerprint == "" {
		t.Fatalf("expected a non-empty fingerprint")
	}
}

func TestBuildExportRoundTrip(t *testing.T) {
	r := run.Run{RunID: "run-e", Objective: "obj", Mode: run.ModeReview, Status: run.RunStatusCompleted}
	nodes := map[string]run.Node{"root:0": {NodeID: "root:0", Decision: run.DecisionLeaf}}
	results := map[string]run.Result{
		"root:0": {NodeID: "root:0", Findings: []run.Finding{
			{Domain: run.DomainSecurity, Title: "t", Description: "d", Severity: run.SeverityHigh, Confidence: 0.9, Evidence: []run.Evidence{{Path: "a.go", LineStart: 1, LineEnd: 1}}},
		}},
	}
	artifacts := BuildReview(r, nodes, results)
	doc := BuildExport(r, artifacts, nodes)
	if doc.RunID != "run-e" {
		t.Fatalf("expected run id round-tripped, got %s", doc.RunID)
	}
	if doc.DepthHistogram["0"] != 1 {
		t.Fatalf("expected depth_histogram[0]=1, got %v", doc.DepthHistogram)
	}

	data := ExportJSON(doc)
	var decoded ExportDoc
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("expected valid JSON export, got error: %v", err)
	}
	if decoded.Ranked.RawCount != 1 {
		t.Fatalf("expected raw count 1 in round-tripped export, got %d", decoded.Ranked.RawCount)
	}
}
