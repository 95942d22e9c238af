package history

import "github.com/tailored-agentic-units/monologue/observability"

// History event types.
const (
	EventAppend       observability.EventType = "history.append"
	EventCompress     observability.EventType = "history.compress"
	EventJournalError observability.EventType = "history.journal.error"
)
