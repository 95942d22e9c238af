package kernel

import "github.com/tailored-agentic-units/monologue/observability"

// Kernel event types emitted during a monologue.
const (
	EventRunStart       observability.EventType = "kernel.run.start"
	EventRunComplete    observability.EventType = "kernel.run.complete"
	EventIterationStart observability.EventType = "kernel.iteration.start"
	EventModelCall      observability.EventType = "kernel.model.call"
	EventDispatch       observability.EventType = "kernel.dispatch"
	EventMisformat      observability.EventType = "kernel.misformat"
	EventResponse       observability.EventType = "kernel.response"
	EventProfile        observability.EventType = "kernel.profile"
	EventError          observability.EventType = "kernel.error"
)
