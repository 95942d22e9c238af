package capability

import "github.com/tailored-agentic-units/monologue/observability"

// Capability event types.
const (
	EventCall       observability.EventType = "capability.call"
	EventResult     observability.EventType = "capability.result"
	EventUnknown    observability.EventType = "capability.unknown"
	EventHookFailed observability.EventType = "capability.hook.failed"
	EventReload     observability.EventType = "capability.reload"
)
