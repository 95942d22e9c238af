package evolution

import "github.com/tailored-agentic-units/monologue/observability"

// Evolution event types.
const (
	EventAnalyzed  observability.EventType = "evolution.analyzed"
	EventApplied   observability.EventType = "evolution.applied"
	EventFailed    observability.EventType = "evolution.failed"
	EventSuggested observability.EventType = "evolution.suggested"
)
