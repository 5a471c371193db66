package interactive

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dshills/rlm-engine/interp"
)

// rootSystemPrompt is the fixed system prompt sent with every root-model
// call. The source material (spec.md §4.8) points at a fixed prompt text
// in "§6" but the referenced section carries no literal wording, so this
// text is authored here rather than transcribed.
const rootSystemPrompt = `You are the reasoning controller of a recursive language model.
A long context has been loaded into a persistent Python REPL alongside your
conversation; you cannot see its contents directly except through a short
preview, so inspect it with code before answering.

Each turn, think briefly about what to do next, then emit exactly one
fenced code block to run in the REPL. Prefer a ` + "```repl```" + ` (or ` + "```python```" + `)
block containing plain Python. You also have two shorthand forms available
when you only need to delegate a sub-question rather than write code:
<llm_query>...</llm_query> asks a single-turn sub-model, and
<rlm_query>...</rlm_query> asks a recursive sub-controller with its own
REPL over the same context.

The REPL namespace exposes: context (the full input), llm_query,
llm_query_batched, rlm_query, rlm_query_batched, strip_fences, SHOW_VARS.
Call FINAL(answer) or FINAL_VAR("name") once you have the answer, or
SUBMIT(answer) to finalize immediately. Until you call one of those, the
loop continues and you will see the REPL's output on the next turn.`

// ExtractCode scans a root-model response for executable code using the
// fixed ordered envelope priority from spec.md §4.8 step 2c: fenced
// ```repl```, fenced ```python```/```py```, <repl>, <rlm_query>,
// <llm_query>, then structured <tool_call>/<invoke> forms. All matched
// blocks are concatenated in document order with blank-line separators;
// everything outside a matched block becomes the returned reasoning
// (spec.md §9 "Dynamic dispatch in code parsing": a table of
// (matcher, extractor) pairs rather than conditional branches).
func ExtractCode(response string) (reasoning string, code string) {
	type match struct {
		start, end int
		code       string
	}

	var matches []match
	offset := 0
	for offset <= len(response) {
		bestStart, bestEnd := -1, -1
		var bestCode string

		for _, m := range codeMatchers {
			loc := m.re.FindStringSubmatchIndex(response[offset:])
			if loc == nil {
				continue
			}
			start := offset + loc[0]
			end := offset + loc[1]
			if bestStart == -1 || start < bestStart {
				bestStart, bestEnd = start, end
				bestCode = m.extract(response[offset:], loc)
			}
		}

		if bestStart == -1 {
			break
		}
		matches = append(matches, match{start: bestStart, end: bestEnd, code: bestCode})
		offset = bestEnd
	}

	var reasoningParts []string
	var codeParts []string
	cursor := 0
	for _, m := range matches {
		if prose := strings.TrimSpace(response[cursor:m.start]); prose != "" {
			reasoningParts = append(reasoningParts, prose)
		}
		if trimmed := strings.TrimSpace(m.code); trimmed != "" {
			codeParts = append(codeParts, trimmed)
		}
		cursor = m.end
	}
	if prose := strings.TrimSpace(response[cursor:]); prose != "" {
		reasoningParts = append(reasoningParts, prose)
	}

	return strings.Join(reasoningParts, "\n"), strings.Join(codeParts, "\n\n")
}

type codeMatcher struct {
	re      *regexp.Regexp
	extract func(search string, loc []int) string
}

// codeMatchers is deliberately a data table, not a chain of if/else
// branches (spec.md §9).
var codeMatchers = []codeMatcher{
	{re: regexp.MustCompile(`(?s)` + "```repl\\s*?\\n(.*?)```"), extract: groupVerbatim(1)},
	{re: regexp.MustCompile(`(?s)` + "```(?:python|py)\\s*?\\n(.*?)```"), extract: groupVerbatim(1)},
	{re: regexp.MustCompile(`(?s)<repl>(.*?)</repl>`), extract: groupVerbatim(1)},
	{re: regexp.MustCompile(`(?s)<rlm_query>(.*?)</rlm_query>`), extract: groupAsCall("rlm_query")},
	{re: regexp.MustCompile(`(?s)<llm_query>(.*?)</llm_query>`), extract: groupAsCall("llm_query")},
	{re: regexp.MustCompile(`(?s)<(?:tool_call|invoke)\b[^>]*>(.*?)</(?:tool_call|invoke)>`), extract: extractToolCall},
}

func groupVerbatim(n int) func(string, []int) string {
	return func(search string, loc []int) string {
		return groupText(search, loc, n)
	}
}

func groupAsCall(fn string) func(string, []int) string {
	return func(search string, loc []int) string {
		prompt := strings.TrimSpace(groupText(search, loc, 1))
		return fmt.Sprintf("%s(%s)", fn, pyStringLiteral(prompt))
	}
}

func groupText(search string, loc []int, n int) string {
	i := n * 2
	if i+1 >= len(loc) || loc[i] < 0 {
		return ""
	}
	return search[loc[i]:loc[i+1]]
}

// toolCallPrompt and toolCallPrompts match a JSON-style "prompt"/"prompts"
// field inside a <tool_call>/<invoke> body; bare key="value" attribute
// forms are not matched.
var (
	toolCallPrompt   = regexp.MustCompile(`(?s)"prompt"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	toolCallPrompts  = regexp.MustCompile(`(?s)"prompts"\s*:\s*\[(.*?)\]`)
	toolCallModel    = regexp.MustCompile(`"model"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	toolCallListElem = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
)

// extractToolCall rewrites a structured <tool_call>/<invoke> body carrying
// a prompt or prompts parameter into an equivalent llm_query(...) /
// llm_query_batched(...) call (spec.md §4.8 step 2c).
func extractToolCall(search string, loc []int) string {
	body := groupText(search, loc, 1)

	modelArg := ""
	if m := toolCallModel.FindStringSubmatch(body); m != nil {
		modelArg = ", model=" + pyStringLiteral(unescapeJSONString(m[1]))
	}

	if m := toolCallPrompts.FindStringSubmatch(body); m != nil {
		elems := toolCallListElem.FindAllStringSubmatch(m[1], -1)
		var items []string
		for _, e := range elems {
			items = append(items, pyStringLiteral(unescapeJSONString(e[1])))
		}
		return fmt.Sprintf("llm_query_batched([%s]%s)", strings.Join(items, ", "), modelArg)
	}

	if m := toolCallPrompt.FindStringSubmatch(body); m != nil {
		return fmt.Sprintf("llm_query(%s%s)", pyStringLiteral(unescapeJSONString(m[1])), modelArg)
	}

	return ""
}

func unescapeJSONString(raw string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+raw+`"`), &out); err != nil {
		return raw
	}
	return out
}

// pyStringLiteral renders s as a double-quoted Python string literal. JSON
// and Python double-quoted string escaping coincide for the control
// characters and unicode escapes produced here, so reusing encoding/json
// avoids hand-rolling a second escaper.
func pyStringLiteral(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

const contextPreviewChars = 500

// buildIterationPrompt assembles the per-iteration user message: query,
// context length/preview, full prior trajectory, and a first-iteration
// exploration note (spec.md §4.8 step 2a).
func buildIterationPrompt(query, contextText string, trajectory []TrajectoryStep, firstIteration bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\n", query)

	preview := contextText
	if len(preview) > contextPreviewChars {
		preview = preview[:contextPreviewChars]
	}
	fmt.Fprintf(&b, "Context length: %d characters\nContext preview (first %d chars):\n%s\n\n",
		len(contextText), contextPreviewChars, preview)

	if firstIteration {
		b.WriteString("This is the first iteration. Explore the context with code before committing to an answer.\n\n")
	}

	if len(trajectory) > 0 {
		b.WriteString("Trajectory so far:\n")
		for _, step := range trajectory {
			fmt.Fprintf(&b, "--- iteration %d ---\n", step.Iteration)
			if step.Reasoning != "" {
				fmt.Fprintf(&b, "reasoning: %s\n", step.Reasoning)
			}
			if step.Code != "" {
				fmt.Fprintf(&b, "code:\n%s\n", step.Code)
			}
			fmt.Fprintf(&b, "output: %s\n", step.Output)
		}
		b.WriteString("\n")
	}

	b.WriteString("Respond with brief reasoning followed by exactly one fenced ```repl``` code block.\n")
	return b.String()
}

// buildFallbackPrompt is the single summarization call made when the
// iteration budget is exhausted without a final answer (spec.md §4.8
// step 3).
func buildFallbackPrompt(query string, trajectory []TrajectoryStep) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The iteration budget was exhausted before a final answer was produced for this query: %s\n\n", query)
	b.WriteString("Review the trajectory below and give your best final answer as plain text, with no code block.\n\n")
	for _, step := range trajectory {
		fmt.Fprintf(&b, "--- iteration %d ---\noutput: %s\n", step.Iteration, step.Output)
	}
	return b.String()
}

// formatStepOutput combines stdout, an optional variable dump, and
// stderr/error, truncated to maxChars with a truncation note (spec.md
// §4.8 step 2g).
func formatStepOutput(r interp.ExecuteResult, maxChars int) string {
	var b strings.Builder
	if r.Stdout != "" {
		b.WriteString(r.Stdout)
	}
	if len(r.ShowVars) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		keys := make([]string, 0, len(r.ShowVars))
		for k := range r.ShowVars {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+r.ShowVars[k])
		}
		b.WriteString("vars: " + strings.Join(parts, ", "))
	}
	if r.HasError {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("[stderr] " + r.Error)
	} else if r.Stderr != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("[stderr] " + r.Stderr)
	}

	out := b.String()
	if maxChars > 0 && len(out) > maxChars {
		out = out[:maxChars] + "\n...[truncated]"
	}
	return out
}
