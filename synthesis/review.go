// Package synthesis implements the synthesis engine (C7, spec.md §4.7):
// deterministic review synthesis (dedupe, cluster, risk score, CI exports)
// and wiki synthesis. Heavily grounded on
// examples/multi-llm-review/consolidator/deduplicator.go's SHA-based id
// generation and sort-then-merge grouping idiom, re-expressed against the
// spec's own exact dedupe/cluster key formulas rather than the teacher's
// Levenshtein-fuzzy grouping (see fuzzy.go for that enrichment, kept
// separate so it never changes the exact-key counts below).
package synthesis

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dshills/rlm-engine/run"
)

// Cluster groups findings sharing (domain, first path segment, first 8
// normalized title words) (spec.md §4.7 step 3).
type Cluster struct {
	ID            string   `json:"id"`
	Domain        string   `json:"domain"`
	Title         string   `json:"title"`
	Severity      string   `json:"severity"`
	Confidence    float64  `json:"confidence"`
	AffectedPaths []string `json:"affected_paths"`
	Count         int      `json:"count"`
}

// RankedFindings is the findings-ranked.json document shape (spec.md §4.7
// step 5).
type RankedFindings struct {
	RunID          string         `json:"run_id"`
	Objective      string         `json:"objective"`
	ObjectiveTags  []string       `json:"objective_tags"`
	RawCount       int            `json:"raw_count"`
	DedupedCount   int            `json:"deduped_count"`
	ClusterCount   int            `json:"cluster_count"`
	RiskScore      float64        `json:"risk_score"`
	SeverityCounts map[string]int `json:"severity_counts"`
	Findings       []run.Finding  `json:"findings"`
}

// ReviewArtifacts bundles every byte-for-byte artifact emitted by review
// synthesis, alongside the metadata the caller needs to register them.
type ReviewArtifacts struct {
	Ranked       RankedFindings
	Clusters     []Cluster
	RankedJSON   []byte
	ClustersJSON []byte
	SummaryJSON  []byte
	ReportMD     []byte
	CodeQuality  []byte
	SARIF        []byte
}

// objectiveTagKeywords drives the focus-tag derivation shared by review and
// wiki synthesis (spec.md §4.7 "Wiki synthesis").
var objectiveTagKeywords = []string{
	run.DomainSecurity, run.DomainPerformance, run.DomainQuality, run.DomainDocs, run.DomainArchitecture,
}

// ObjectiveTags derives focus tags from keyword matches on the objective.
func ObjectiveTags(objective string) []string {
	lower := strings.ToLower(objective)
	var tags []string
	for _, kw := range objectiveTagKeywords {
		if strings.Contains(lower, kw) {
			tags = append(tags, kw)
		}
	}
	return tags
}

// dedupeKey is the spec's exact dedupe key (spec.md §4.7 step 2).
func dedupeKey(f run.Finding) string {
	var path string
	var lineStart, lineEnd int
	if len(f.Evidence) > 0 {
		path, lineStart, lineEnd = f.Evidence[0].Path, f.Evidence[0].LineStart, f.Evidence[0].LineEnd
	}
	return strings.Join([]string{f.Domain, f.Title, path, strconv.Itoa(lineStart), strconv.Itoa(lineEnd)}, "\x1f")
}

// clusterKey is the spec's exact cluster key (spec.md §4.7 step 3).
func clusterKey(f run.Finding) string {
	firstSegment := ""
	if len(f.Evidence) > 0 {
		firstSegment = firstPathSegment(f.Evidence[0].Path)
	}
	return strings.Join([]string{f.Domain, firstSegment, normalizedTitlePrefix(f.Title, 8)}, "\x1f")
}

func firstPathSegment(path string) string {
	path = strings.TrimPrefix(filepathToSlash(path), "/")
	idx := strings.Index(path, "/")
	if idx < 0 {
		return path
	}
	return path[:idx]
}

func filepathToSlash(p string) string { return strings.ReplaceAll(p, "\\", "/") }

func normalizedTitlePrefix(title string, n int) string {
	words := strings.Fields(strings.ToLower(title))
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// ExtractLeafFindings gathers findings only from results whose node is a
// leaf (decision=leaf), never from aggregated-parent results, since an
// aggregated parent's Result already carries the union of its descendants'
// findings — iterating over every result would multiply-count a finding
// once per ancestor level. This resolves an ambiguity the spec leaves
// implicit (see DESIGN.md).
func ExtractLeafFindings(nodes map[string]run.Node, results map[string]run.Result) []run.Finding {
	var out []run.Finding
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids) // deterministic traversal order
	for _, id := range ids {
		n, ok := nodes[id]
		if !ok || n.Decision != run.DecisionLeaf {
			continue
		}
		res := results[id]
		for _, f := range res.Findings {
			if len(f.Evidence) == 0 {
				continue // dropped: no evidence pointer (spec.md §4.7 step 1)
			}
			out = append(out, normalizeFinding(f))
		}
	}
	return out
}

func normalizeFinding(f run.Finding) run.Finding {
	if _, ok := run.SeverityRank[f.Severity]; !ok {
		f.Severity = run.SeverityInfo
	}
	return f
}

// Dedupe applies the spec's exact dedupe rule: collisions on dedupeKey keep
// the entry with higher severity, or higher confidence on ties. The
// surviving order is by descending severity rank then descending
// confidence.
func Dedupe(findings []run.Finding) []run.Finding {
	best := map[string]run.Finding{}
	order := []string{}
	for _, f := range findings {
		key := dedupeKey(f)
		existing, ok := best[key]
		if !ok {
			best[key] = f
			order = append(order, key)
			continue
		}
		if betterFinding(f, existing) {
			best[key] = f
		}
	}
	out := make([]run.Finding, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := run.SeverityRank[out[i].Severity], run.SeverityRank[out[j].Severity]
		if ri != rj {
			return ri > rj
		}
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

func betterFinding(a, b run.Finding) bool {
	ra, rb := run.SeverityRank[a.Severity], run.SeverityRank[b.Severity]
	if ra != rb {
		return ra > rb
	}
	return a.Confidence > b.Confidence
}

// ClusterFindings groups deduped findings by clusterKey (spec.md §4.7
// step 3).
func ClusterFindings(deduped []run.Finding) []Cluster {
	type acc struct {
		domain     string
		title      string
		severity   string
		confidence float64
		paths      map[string]bool
		count      int
	}
	groups := map[string]*acc{}
	order := []string{}
	for _, f := range deduped {
		key := clusterKey(f)
		a, ok := groups[key]
		if !ok {
			a = &acc{domain: f.Domain, title: f.Title, paths: map[string]bool{}}
			groups[key] = a
			order = append(order, key)
		}
		if run.SeverityRank[f.Severity] > run.SeverityRank[a.severity] {
			a.severity = f.Severity
		}
		if f.Confidence > a.confidence {
			a.confidence = f.Confidence
		}
		if len(f.Evidence) > 0 {
			a.paths[f.Evidence[0].Path] = true
		}
		a.count++
	}

	clusters := make([]Cluster, 0, len(order))
	for _, key := range order {
		a := groups[key]
		paths := make([]string, 0, len(a.paths))
		for p := range a.paths {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		clusters = append(clusters, Cluster{
			ID:            "cluster_" + shortSHA1(key),
			Domain:        a.domain,
			Title:         a.title,
			Severity:      a.severity,
			Confidence:    a.confidence,
			AffectedPaths: paths,
			Count:         a.count,
		})
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		si, sj := run.SeverityRank[clusters[i].Severity], run.SeverityRank[clusters[j].Severity]
		if si != sj {
			return si > sj
		}
		if clusters[i].Count != clusters[j].Count {
			return clusters[i].Count > clusters[j].Count
		}
		return clusters[i].Confidence > clusters[j].Confidence
	})
	return clusters
}

func shortSHA1(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// clampConfidence clamps to [0.2, 1] as required by the risk score formula
// (spec.md §4.7 step 4).
func clampConfidence(c float64) float64 {
	if c < 0.2 {
		return 0.2
	}
	if c > 1 {
		return 1
	}
	return c
}

// RiskScore computes Σ severity_rank × clamp(confidence, 0.2, 1), rounded
// to two decimals (spec.md §4.7 step 4).
func RiskScore(deduped []run.Finding) float64 {
	var total float64
	for _, f := range deduped {
		total += float64(run.SeverityRank[f.Severity]) * clampConfidence(f.Confidence)
	}
	return math.Round(total*100) / 100
}

// BuildReview runs the full deterministic review synthesis pipeline and
// renders every artifact (spec.md §4.7 "Review synthesis").
func BuildReview(r run.Run, nodes map[string]run.Node, results map[string]run.Result) ReviewArtifacts {
	raw := ExtractLeafFindings(nodes, results)
	deduped := Dedupe(raw)
	deduped = assignIDs(deduped)
	clusters := ClusterFindings(deduped)

	severityCounts := map[string]int{}
	for _, f := range deduped {
		severityCounts[f.Severity]++
	}

	ranked := RankedFindings{
		RunID:          r.RunID,
		Objective:      r.Objective,
		ObjectiveTags:  ObjectiveTags(r.Objective),
		RawCount:       len(raw),
		DedupedCount:   len(deduped),
		ClusterCount:   len(clusters),
		RiskScore:      RiskScore(deduped),
		SeverityCounts: severityCounts,
		Findings:       deduped,
	}

	return ReviewArtifacts{
		Ranked:       ranked,
		Clusters:     clusters,
		RankedJSON:   mustJSON(ranked),
		ClustersJSON: mustJSON(struct {
			Clusters []Cluster `json:"clusters"`
		}{clusters}),
		SummaryJSON: mustJSON(buildSummary(clusters)),
		ReportMD:    buildReportMD(ranked, clusters),
		CodeQuality: mustJSON(buildCodeQuality(deduped)),
		SARIF:       mustJSON(buildSARIF(deduped)),
	}
}

// assignIDs gives every deduped finding a stable id derived from its
// dedupe key, matching the teacher's generateIssueID SHA-truncation idiom.
func assignIDs(findings []run.Finding) []run.Finding {
	for i := range findings {
		sum := sha256.Sum256([]byte(dedupeKey(findings[i])))
		findings[i].ID = hex.EncodeToString(sum[:])[:8]
	}
	return findings
}

type hotspot struct {
	ID            string   `json:"id"`
	Domain        string   `json:"domain"`
	Title         string   `json:"title"`
	Severity      string   `json:"severity"`
	Count         int      `json:"count"`
	AffectedPaths []string `json:"affected_paths"`
}

type summaryDoc struct {
	TopHotspots []hotspot `json:"top_hotspots"`
}

func buildSummary(clusters []Cluster) summaryDoc {
	n := len(clusters)
	if n > 10 {
		n = 10
	}
	hotspots := make([]hotspot, 0, n)
	for _, c := range clusters[:n] {
		hotspots = append(hotspots, hotspot{ID: c.ID, Domain: c.Domain, Title: c.Title, Severity: c.Severity, Count: c.Count, AffectedPaths: c.AffectedPaths})
	}
	return summaryDoc{TopHotspots: hotspots}
}

func buildReportMD(ranked RankedFindings, clusters []Cluster) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Review Report\n\n")
	fmt.Fprintf(&b, "Objective: %s\n\n", ranked.Objective)
	fmt.Fprintf(&b, "Risk score: %.2f\n\n", ranked.RiskScore)

	b.WriteString("## Severity breakdown\n\n")
	for _, sev := range []string{run.SeverityCritical, run.SeverityHigh, run.SeverityMedium, run.SeverityLow, run.SeverityInfo} {
		fmt.Fprintf(&b, "- %s: %d\n", sev, ranked.SeverityCounts[sev])
	}

	b.WriteString("\n## Top clusters\n\n")
	topClusters := clusters
	if len(topClusters) > 20 {
		topClusters = topClusters[:20]
	}
	for _, c := range topClusters {
		fmt.Fprintf(&b, "- [%s] %s (%s, count=%d)\n", c.Severity, c.Title, c.Domain, c.Count)
	}

	b.WriteString("\n## Top findings\n\n")
	topFindings := ranked.Findings
	if len(topFindings) > 50 {
		topFindings = topFindings[:50]
	}
	for _, f := range topFindings {
		loc := ""
		if len(f.Evidence) > 0 {
			loc = fmt.Sprintf("%s:%d", f.Evidence[0].Path, f.Evidence[0].LineStart)
		}
		fmt.Fprintf(&b, "- [%s] %s (%s) at %s\n", f.Severity, f.Title, f.Domain, loc)
	}
	return []byte(b.String())
}

// codeQualityIssue is the Code Climate issue shape subset (spec.md §4.7
// step 5, §6.4).
type codeQualityIssue struct {
	Description string   `json:"description"`
	CheckName   string   `json:"check_name"`
	Fingerprint string   `json:"fingerprint"`
	Severity    string   `json:"severity"`
	Location    location `json:"location"`
}

type location struct {
	Path  string `json:"path"`
	Lines lines  `json:"lines"`
}

type lines struct {
	Begin int `json:"begin"`
}

var codeQualitySeverity = map[string]string{
	run.SeverityCritical: "blocker",
	run.SeverityHigh:     "critical",
	run.SeverityMedium:   "major",
	run.SeverityLow:      "minor",
	run.SeverityInfo:     "info",
}

func buildCodeQuality(deduped []run.Finding) []codeQualityIssue {
	out := make([]codeQualityIssue, 0, len(deduped))
	for _, f := range deduped {
		path, begin := "", 0
		if len(f.Evidence) > 0 {
			path, begin = f.Evidence[0].Path, f.Evidence[0].LineStart
		}
		sum := sha256.Sum256([]byte(dedupeKey(f)))
		out = append(out, codeQualityIssue{
			Description: f.Description,
			CheckName:   "pi-rlm-" + f.Domain,
			Fingerprint: hex.EncodeToString(sum[:]),
			Severity:    codeQualitySeverity[f.Severity],
			Location:    location{Path: path, Lines: lines{Begin: begin}},
		})
	}
	return out
}

func mustJSON(v interface{}) []byte {
	// Marshal errors here would indicate a programmer error in the shapes
	// above (unsupported types), never a runtime condition worth
	// propagating to the caller of BuildReview.
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("synthesis: unreachable marshal failure: %v", err))
	}
	return data
}
