package emit

// NullEmitter discards every event. Useful as the default emitter in tests
// and library callers that have not wired observability.
type NullEmitter struct{}

// Emit discards the event.
func (NullEmitter) Emit(Event) {}
