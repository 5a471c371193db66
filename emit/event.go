// Package emit provides structured event emission for the repo-scale
// recursive runner and the interactive RLM controller. Adapted from the
// teacher's graph/emit package: same Emitter/Event/LogEmitter shape,
// repurposed to carry this domain's run/node/queue lifecycle vocabulary
// (spec.md §4.1) instead of generic workflow node events.
package emit

// Event is one observability event. Msg carries the event vocabulary word
// (e.g. "node_enqueued", "node_started", "run_cancelled" — see
// run.Event* constants); Meta carries event-specific structured detail.
type Event struct {
	RunID  string                 `json:"runID"`
	Step   int                    `json:"step"`
	NodeID string                 `json:"nodeID"`
	Msg    string                 `json:"msg"`
	Meta   map[string]interface{} `json:"meta,omitempty"`
}

// Emitter receives observability events. Implementations must not block the
// caller indefinitely; a slow sink should buffer internally.
type Emitter interface {
	Emit(event Event)
}
