package faults

// LogEvent is a stable identifier for a fault or notable occurrence,
// used to correlate failure events with telemetry records. IDs are
// grouped by area and must never be renumbered.
type LogEvent struct {
	ID   int
	Name string
}

// Dispatch-level events (1xxx).
var (
	EventUnmatchedEventType   = LogEvent{ID: 1001, Name: "event_type_unmatched"}
	EventHandlerPanicked      = LogEvent{ID: 1002, Name: "handler_panicked"}
	EventValidationShortCycle = LogEvent{ID: 1003, Name: "subscription_validation"}
)

// Handler lifecycle events (2xxx).
var (
	EventPayloadDecodeFailed = LogEvent{ID: 2001, Name: "payload_decode_failed"}
	EventPayloadEmpty        = LogEvent{ID: 2002, Name: "payload_empty"}
	EventWorkFailed          = LogEvent{ID: 2003, Name: "handler_work_failed"}
	EventUnhandledFault      = LogEvent{ID: 2004, Name: "unhandled_fault"}
)

// Publish events (3xxx).
var (
	EventAcknowledgePublishFailed = LogEvent{ID: 3001, Name: "acknowledge_publish_failed"}
	EventOutcomePublishFailed     = LogEvent{ID: 3002, Name: "outcome_publish_failed"}
	EventFailurePublishFailed     = LogEvent{ID: 3003, Name: "failure_publish_failed"}
)
