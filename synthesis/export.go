package synthesis

import "github.com/dshills/rlm-engine/run"

// sarifLog is the minimal SARIF 2.1.0 document shape the spec requires
// (spec.md §4.7 step 5, §6.4): one run, one tool driver, one result per
// deduped finding.
type sarifLog struct {
	Schema  string      `json:"$schema"`
	Version string      `json:"version"`
	Runs    []sarifRun  `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name  string      `json:"name"`
	Rules []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string            `json:"id"`
	ShortDescription sarifText         `json:"shortDescription"`
	Properties       map[string]string `json:"properties,omitempty"`
}

type sarifText struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID    string           `json:"ruleId"`
	Level     string           `json:"level"`
	Message   sarifText        `json:"message"`
	Locations []sarifLocation  `json:"locations"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           sarifRegion           `json:"region"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine,omitempty"`
}

// sarifLevel maps a finding severity to a SARIF result level: severity ≥
// high maps to error, medium to warning, else note (spec.md §4.7 step 5).
var sarifLevel = map[string]string{
	run.SeverityCritical: "error",
	run.SeverityHigh:     "error",
	run.SeverityMedium:   "warning",
	run.SeverityLow:      "note",
	run.SeverityInfo:     "note",
}

// sarifRuleID derives the spec's <domain>:<title-slug> rule key (spec.md
// §4.7 step 5, §6.4).
func sarifRuleID(f run.Finding) string {
	return f.Domain + ":" + titleSlug(f.Title)
}

func titleSlug(title string) string {
	var b []byte
	prevDash := false
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b = append(b, byte(r))
			prevDash = false
		case r >= 'A' && r <= 'Z':
			b = append(b, byte(r-'A'+'a'))
			prevDash = false
		default:
			if !prevDash && len(b) > 0 {
				b = append(b, '-')
				prevDash = true
			}
		}
	}
	for len(b) > 0 && b[len(b)-1] == '-' {
		b = b[:len(b)-1]
	}
	return string(b)
}

func buildSARIF(deduped []run.Finding) sarifLog {
	ruleSeen := map[string]bool{}
	var rules []sarifRule
	var results []sarifResult

	for _, f := range deduped {
		ruleID := sarifRuleID(f)
		if !ruleSeen[ruleID] {
			ruleSeen[ruleID] = true
			rules = append(rules, sarifRule{
				ID:               ruleID,
				ShortDescription: sarifText{Text: f.Title},
			})
		}

		var locs []sarifLocation
		for _, ev := range f.Evidence {
			locs = append(locs, sarifLocation{
				PhysicalLocation: sarifPhysicalLocation{
					ArtifactLocation: sarifArtifactLocation{URI: ev.Path},
					Region:           sarifRegion{StartLine: max1(ev.LineStart), EndLine: ev.LineEnd},
				},
			})
		}

		results = append(results, sarifResult{
			RuleID:    ruleID,
			Level:     sarifLevel[f.Severity],
			Message:   sarifText{Text: f.Title + ": " + f.Description},
			Locations: locs,
		})
	}

	return sarifLog{
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json",
		Version: "2.1.0",
		Runs: []sarifRun{{
			Tool:    sarifTool{Driver: sarifDriver{Name: "rlm-engine", Rules: rules}},
			Results: results,
		}},
	}
}

// max1 floors a SARIF line number at 1 — SARIF forbids startLine=0, which
// an untracked evidence pointer could otherwise produce.
func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// ExportDoc is the repo_rlm_export payload shape (spec.md §6.2
// "repo_rlm_export"): a single portable bundle combining run metadata,
// ranked findings, and clusters, independent of the on-disk run directory
// layout so it can be handed to a caller that never touches the
// filesystem directly.
type ExportDoc struct {
	RunID          string         `json:"run_id"`
	Objective      string         `json:"objective"`
	Mode           string         `json:"mode"`
	Status         string         `json:"status"`
	Ranked         RankedFindings `json:"ranked_findings"`
	Clusters       []Cluster      `json:"clusters"`
	DepthHistogram map[string]int `json:"depth_histogram"`
}

// BuildExport assembles the repo_rlm_export document from a completed
// BuildReview result, the owning run, and its latest node snapshot (for
// depth_histogram, spec.md §8 scenario 1).
func BuildExport(r run.Run, artifacts ReviewArtifacts, nodes map[string]run.Node) ExportDoc {
	return ExportDoc{
		RunID:          r.RunID,
		Objective:      r.Objective,
		Mode:           r.Mode,
		Status:         r.Status,
		Ranked:         artifacts.Ranked,
		Clusters:       artifacts.Clusters,
		DepthHistogram: run.DepthHistogram(nodes),
	}
}

// ExportJSON renders ExportDoc as indented JSON.
func ExportJSON(doc ExportDoc) []byte {
	return mustJSON(doc)
}
