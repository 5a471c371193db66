// Package leaf implements the leaf executor (C3, spec.md §4.5): collects
// scope metrics for a leaf node, runs the fixed review pattern checks, and
// optionally emits a per-node wiki artifact. Adapted from the file
// sampling idiom of examples/multi-llm-review/scanner.go and the
// severity/category vocabulary of examples/multi-llm-review/types.go.
package leaf

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dshills/rlm-engine/run"
	"github.com/dshills/rlm-engine/scope"
)

const (
	maxSampleFiles      = 200
	maxReviewFiles      = 40
	maxReviewFileBytes  = 256 * 1024
	maxFindingsPerNode  = 25
)

// WikiArtifact is a per-node wiki document to be persisted by the caller.
type WikiArtifact struct {
	RelPath string
	Content []byte
}

// Output is the result of executing one leaf node.
type Output struct {
	Result run.Result
	Wiki   *WikiArtifact
}

// Execute runs the leaf analysis for a node (spec.md §4.5).
func Execute(node run.Node, mode string) (Output, error) {
	start := time.Now()

	m, err := scope.Walk(node.ScopeRef.Paths, maxSampleFiles)
	if err != nil {
		return Output{}, err
	}

	var findings []run.Finding
	if mode == run.ModeReview {
		findings = scanForFindings(m.SampledFiles)
	}

	duration := time.Since(start).Milliseconds()
	summary := formatSummary(node.NodeID, node.ScopeType, m, findings, duration)

	result := run.Result{
		RunID:     node.RunID,
		NodeID:    node.NodeID,
		Status:    run.ResultCompleted,
		Summary:   summary,
		Findings:  findings,
		CreatedAt: time.Now(),
	}

	out := Output{Result: result}
	if mode == run.ModeWiki {
		wiki := renderWikiNode(node, m)
		out.Wiki = &wiki
		out.Result.Artifacts = append(out.Result.Artifacts, run.Artifact{Kind: run.ArtifactWikiNode, Path: wiki.RelPath})
	}
	return out, nil
}

func formatSummary(nodeID, scopeType string, m scope.Metrics, findings []run.Finding, durationMs int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Leaf analysis for node %s | scope=%s | files=%d | bytes=%d | top_extensions=%s | sample_files=%s",
		nodeID, scopeType, m.FileCount, m.TotalBytes, topExtensions(m.ExtensionHist), sampleFilesPreview(m.SampledFiles))
	if len(findings) > 0 {
		fmt.Fprintf(&b, " | findings=%d", len(findings))
	}
	fmt.Fprintf(&b, " | duration_ms=%d", durationMs)
	return b.String()
}

func topExtensions(hist map[string]int) string {
	type kv struct {
		ext   string
		count int
	}
	kvs := make([]kv, 0, len(hist))
	for k, v := range hist {
		kvs = append(kvs, kv{k, v})
	}
	sort.Slice(kvs, func(i, j int) bool {
		if kvs[i].count != kvs[j].count {
			return kvs[i].count > kvs[j].count
		}
		return kvs[i].ext < kvs[j].ext
	})
	if len(kvs) > 5 {
		kvs = kvs[:5]
	}
	parts := make([]string, 0, len(kvs))
	for _, e := range kvs {
		parts = append(parts, fmt.Sprintf("%s:%d", e.ext, e.count))
	}
	return strings.Join(parts, ",")
}

func sampleFilesPreview(files []string) string {
	n := len(files)
	if n > 5 {
		n = 5
	}
	names := make([]string, 0, n)
	for _, f := range files[:n] {
		names = append(names, filepath.Base(f))
	}
	return strings.Join(names, ",")
}

// scanForFindings scans up to maxReviewFiles sampled files (each capped at
// maxReviewFileBytes) for the fixed pattern table, capping the node at
// maxFindingsPerNode findings total.
func scanForFindings(sampledFiles []string) []run.Finding {
	var findings []run.Finding
	files := sampledFiles
	if len(files) > maxReviewFiles {
		files = files[:maxReviewFiles]
	}

	for _, path := range files {
		if len(findings) >= maxFindingsPerNode {
			break
		}
		info, err := os.Stat(path)
		if err != nil || info.Size() > maxReviewFileBytes {
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		lines := readLines(f)
		f.Close()

		for _, p := range reviewPatterns {
			if len(findings) >= maxFindingsPerNode {
				break
			}
			lineNo := firstMatchLine(lines, p.Pattern)
			if lineNo == 0 {
				continue
			}
			findings = append(findings, run.Finding{
				ID:           "", // assigned by synthesis (C7) from the dedupe key
				Domain:       p.Domain,
				Severity:     p.Severity,
				Confidence:   p.Confidence,
				Title:        p.Title,
				Description:  p.Description,
				SuggestedFix: p.SuggestedFix,
				Evidence: []run.Evidence{{
					Path:      path,
					LineStart: lineNo,
					LineEnd:   lineNo,
					Quote:     p.Pattern,
				}},
			})
		}
	}
	return findings
}

func readLines(f *os.File) []string {
	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

// firstMatchLine returns the 1-based line number of the first line
// containing pattern as a substring, or 0 if not found.
func firstMatchLine(lines []string, pattern string) int {
	for i, line := range lines {
		if strings.Contains(line, pattern) {
			return i + 1
		}
	}
	return 0
}

func renderWikiNode(node run.Node, m scope.Metrics) WikiArtifact {
	sanitized := sanitizeNodeID(node.NodeID)
	var b strings.Builder
	fmt.Fprintf(&b, "# Node %s\n\n", node.NodeID)
	fmt.Fprintf(&b, "- scope_type: %s\n", node.ScopeType)
	fmt.Fprintf(&b, "- files: %d\n", m.FileCount)
	fmt.Fprintf(&b, "- bytes: %d\n", m.TotalBytes)
	fmt.Fprintf(&b, "- top_extensions: %s\n\n", topExtensions(m.ExtensionHist))
	b.WriteString("## Sample files\n\n")
	for _, f := range m.SampledFiles {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	return WikiArtifact{
		RelPath: filepath.ToSlash(filepath.Join("artifacts", "wiki", "nodes", sanitized+".md")),
		Content: []byte(b.String()),
	}
}

var nodeIDSanitizer = strings.NewReplacer(":", "_", "/", "_", "\\", "_", " ", "_")

func sanitizeNodeID(id string) string { return nodeIDSanitizer.Replace(id) }
