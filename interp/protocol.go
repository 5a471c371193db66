// Package interp hosts the persistent code-interpreter child process used
// by the interactive controller (C9, spec.md §4.9): process lifecycle,
// the stdin/stdout sentinel protocol, and namespace-helper rebinding.
// Grounded on the stdio subprocess transport idiom in
// codeready-toolchain-tarsy/pkg/mcp/transport.go's createStdioTransport
// (os/exec.Cmd wiring, environment inheritance), generalized from an
// SDK-owned framed transport to this spec's sentinel-delimited protocol.
package interp

import (
	"github.com/tidwall/gjson"
)

// Sentinels delimiting the stdin/stdout protocol (spec.md §4.9).
const (
	SentinelReady       = "__REPL_READY__"
	SentinelExec        = "__REPL_EXEC__"
	SentinelResultStart = "__REPL_RESULT_START__"
	SentinelResultEnd   = "__REPL_RESULT_END__"
)

// ExecuteResult is the parsed trailing JSON block of one execute response
// (spec.md §4.9 "Protocol").
type ExecuteResult struct {
	Stdout      string
	Stderr      string
	FinalAnswer string
	HasFinal    bool
	Submitted   bool
	Error       string
	HasError    bool
	ShowVars    map[string]string
}

// parseResultBlock tolerantly parses the JSON object between
// SentinelResultStart/End using gjson, so a child emitting unexpected or
// partially-malformed extra fields never aborts the host (the interpreter
// process is untrusted user-adjacent code, not a binary protocol peer).
func parseResultBlock(raw string) ExecuteResult {
	var out ExecuteResult
	if !gjson.Valid(raw) {
		out.Stdout = raw
		return out
	}
	parsed := gjson.Parse(raw)
	out.Stdout = parsed.Get("stdout").String()
	out.Stderr = parsed.Get("stderr").String()
	if fa := parsed.Get("final_answer"); fa.Exists() {
		out.FinalAnswer = fa.String()
		out.HasFinal = true
	}
	if fv := parsed.Get("final_var"); fv.Exists() {
		out.FinalAnswer = fv.String()
		out.HasFinal = true
	}
	out.Submitted = parsed.Get("submitted").Bool()
	if errVal := parsed.Get("error"); errVal.Exists() && errVal.String() != "" {
		out.Error = errVal.String()
		out.HasError = true
	}
	if vars := parsed.Get("show_vars"); vars.Exists() && vars.IsObject() {
		out.ShowVars = map[string]string{}
		vars.ForEach(func(key, value gjson.Result) bool {
			out.ShowVars[key.String()] = value.String()
			return true
		})
	}
	return out
}
