package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventEnvelope is the wire-level unit exchanged on the event bus. Envelopes
// are constructed by the sender and consumed read-only; the relay core never
// mutates one, it only constructs new envelopes when publishing outcomes.
type EventEnvelope struct {
	// ID uniquely identifies this envelope.
	ID string `json:"id"`

	// Type identifies the category of this event for routing and handling.
	Type EventType `json:"eventType"`

	// DataVersion is the schema version of the payload.
	DataVersion string `json:"dataVersion"`

	// Subject is the resource path this event concerns. Outcome envelopes
	// derive their subject from the handler's subject plus the new ID.
	Subject string `json:"subject"`

	// EventTime records when the envelope was created.
	EventTime time.Time `json:"eventTime"`

	// Data is the opaque payload. Concrete handlers declare the type it
	// deserializes into.
	Data json.RawMessage `json:"data"`
}

// NewEnvelope constructs an outbound envelope with a fresh unique ID and the
// current timestamp.
func NewEnvelope(eventType EventType, subject string, dataVersion string, data json.RawMessage) EventEnvelope {
	return EventEnvelope{
		ID:          uuid.NewString(),
		Type:        eventType,
		DataVersion: dataVersion,
		Subject:     subject,
		EventTime:   time.Now().UTC(),
		Data:        data,
	}
}

// OperationContext is an opaque, caller-supplied correlation document that is
// threaded through every event, failure, and log entry. It is copied by
// reference and never mutated once attached.
type OperationContext json.RawMessage

// IsZero reports whether no context has been attached.
func (c OperationContext) IsZero() bool { return len(c) == 0 }

// MarshalJSON emits the raw document verbatim, or null when absent.
func (c OperationContext) MarshalJSON() ([]byte, error) {
	if len(c) == 0 {
		return []byte("null"), nil
	}
	return c, nil
}

// UnmarshalJSON stores the raw document without interpreting it. A JSON
// null is treated as an absent context.
func (c *OperationContext) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = nil
		return nil
	}
	*c = append((*c)[0:0], data...)
	return nil
}

// String returns the raw document for logging.
func (c OperationContext) String() string { return string(c) }
