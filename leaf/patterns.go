package leaf

import "github.com/dshills/rlm-engine/run"

// reviewPattern is one row of the fixed pattern table scanned in review
// mode (spec.md §4.5). The open question on "any" word-boundary matching
// is decided in SPEC_FULL.md §9: plain substring matching, matching the
// documented baseline behavior.
type reviewPattern struct {
	Pattern      string
	Severity     string
	Confidence   float64
	Domain       string
	Title        string
	Description  string
	SuggestedFix string
}

// reviewPatterns is the fixed, ordered pattern table (spec.md §4.5).
var reviewPatterns = []reviewPattern{
	{
		Pattern:      "eval(",
		Severity:     run.SeverityHigh,
		Confidence:   0.8,
		Domain:       run.DomainSecurity,
		Title:        "Potential dynamic code execution",
		Description:  "A call resembling eval( was found, which can execute arbitrary code constructed at runtime.",
		SuggestedFix: "Avoid eval-like constructs or strictly validate inputs",
	},
	{
		Pattern:      "TODO",
		Severity:     run.SeverityLow,
		Confidence:   0.6,
		Domain:       run.DomainQuality,
		Title:        "Unresolved TODO found",
		Description:  "A TODO marker was found in the sampled source, indicating incomplete work.",
		SuggestedFix: "Track TODO in issue and resolve or remove",
	},
	{
		Pattern:      "any",
		Severity:     run.SeverityMedium,
		Confidence:   0.6,
		Domain:       run.DomainQuality,
		Title:        "Type safety risk",
		Description:  "Use of a loosely-typed \"any\" construct was found, which weakens static type guarantees.",
		SuggestedFix: "Replace with stricter types",
	},
}
