package synthesis

import (
	"sort"

	"github.com/agnivade/levenshtein"
	"github.com/dshills/rlm-engine/run"
)

// FuzzyGroup is a same-file, line-proximate, textually-similar cluster of
// exact-deduped findings — an enrichment layer over the exact dedupe
// output, never a replacement for it. Grounded on
// examples/multi-llm-review/consolidator/deduplicator.go's isFuzzyMatch
// stage (same file, line proximity ±5, Levenshtein similarity ≥ 70%),
// adapted here to operate AFTER the spec's exact dedupe/cluster pipeline
// instead of before it, so raw_count/deduped_count/cluster_count (spec.md
// §8 P5) are computed purely from the exact-key rules in review.go and
// never perturbed by fuzzy grouping.
type FuzzyGroup struct {
	RepresentativeID string   `json:"representative_id"`
	MemberIDs        []string `json:"member_ids"`
}

const (
	fuzzyLineProximity    = 5
	fuzzySimilarityFloor  = 0.70
)

// GroupFuzzy finds additional near-duplicate relationships among already
// exact-deduped findings, purely as an advisory annotation layer. It does
// not feed RankedFindings' counts, and BuildReview and the report renderer
// do not call it.
func GroupFuzzy(deduped []run.Finding) []FuzzyGroup {
	merged := make([]bool, len(deduped))
	var groups []FuzzyGroup

	for i := range deduped {
		if merged[i] {
			continue
		}
		members := []string{deduped[i].ID}
		merged[i] = true
		for j := i + 1; j < len(deduped); j++ {
			if merged[j] {
				continue
			}
			if isFuzzyMatch(deduped[i], deduped[j]) {
				members = append(members, deduped[j].ID)
				merged[j] = true
			}
		}
		if len(members) > 1 {
			sort.Strings(members[1:])
			groups = append(groups, FuzzyGroup{RepresentativeID: deduped[i].ID, MemberIDs: members})
		}
	}
	return groups
}

func isFuzzyMatch(a, b run.Finding) bool {
	pathA, lineA := evidencePathLine(a)
	pathB, lineB := evidencePathLine(b)
	if pathA == "" || pathA != pathB {
		return false
	}

	lineDiff := lineA - lineB
	if lineDiff < 0 {
		lineDiff = -lineDiff
	}
	if lineDiff > fuzzyLineProximity {
		return false
	}

	distance := levenshtein.ComputeDistance(a.Description, b.Description)
	maxLen := len(a.Description)
	if len(b.Description) > maxLen {
		maxLen = len(b.Description)
	}
	if maxLen == 0 {
		return true
	}
	similarity := 1.0 - (float64(distance) / float64(maxLen))
	return similarity >= fuzzySimilarityFloor
}

func evidencePathLine(f run.Finding) (string, int) {
	if len(f.Evidence) == 0 {
		return "", 0
	}
	return f.Evidence[0].Path, f.Evidence[0].LineStart
}
