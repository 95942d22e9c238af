package extension

import "github.com/tailored-agentic-units/monologue/observability"

// Extension pipeline event types.
const (
	EventFailed observability.EventType = "extension.failed"
	EventPanic  observability.EventType = "extension.panic"
	EventReload observability.EventType = "extension.reload"
)
