package events

import "strings"

// EventType identifies the category of an event for routing and handling.
// Values follow the platform's dotted naming convention, e.g.
// "request.blob.copy" or "response.blob.copy.success".
type EventType string

// Reserved event types understood by the relay core itself. Everything else
// is owned by the concrete handlers registered with the dispatcher.
const (
	// EventTypeSubscriptionValidation is the one-time handshake event the
	// push-delivery platform sends when a webhook subscription is created.
	// The dispatcher answers it directly without consulting any handler.
	EventTypeSubscriptionValidation EventType = "Microsoft.EventGrid.SubscriptionValidationEvent"

	// EventTypeAcknowledge is published back to a requestor's subject before
	// business logic runs, for request-prefixed event types only.
	EventTypeAcknowledge EventType = "response.acknowledge"

	// EventTypeFailure is the generic failure event type used when a handler
	// fault is translated into an outbound event.
	EventTypeFailure EventType = "response.failure"
)

// RequestPrefix marks event types that represent inbound requests and
// therefore receive an acknowledge event. The comparison is case-insensitive.
const RequestPrefix = "request."

// DataVersionAny is the wildcard token in a handler registration that
// accepts any data version of a given event type.
const DataVersionAny = "*"

// DefaultDataVersion is stamped on envelopes the relay core constructs
// itself (acknowledge, failure, and handler outcome events).
const DefaultDataVersion = "1.0"

// IsRequest reports whether the event type carries the reserved request
// prefix.
func (t EventType) IsRequest() bool {
	return len(t) >= len(RequestPrefix) && strings.EqualFold(string(t)[:len(RequestPrefix)], RequestPrefix)
}
