package faults

import (
	"encoding/json"
	"fmt"

	"github.com/clipwave/mediarelay/internal/domain/events"
)

// ToFailureResponse converts a fault into the failure response contract.
// The handler identity is required: a missing handler ID or name is a
// caller contract violation, not a recoverable condition. locator may be
// empty when no telemetry record is available.
//
// Conversion happens exactly once, at the point a fault would otherwise
// escape the handler lifecycle boundary; the same fault must never be
// converted twice.
func ToFailureResponse(f *Fault, handlerID, handlerName, locator string) (*events.FailureResponse, error) {
	if handlerID == "" {
		return nil, fmt.Errorf("handler id is required to convert a fault")
	}
	if handlerName == "" {
		return nil, fmt.Errorf("handler name is required to convert a fault")
	}

	return &events.FailureResponse{
		ResponseBase: events.ResponseBase{
			Context:     f.OperationContext(),
			ReturnEvent: events.EventTypeFailure,
		},
		Message:          f.Message(),
		LogEventID:       f.LogEvent().ID,
		LogRecordLocator: locator,
		HandlerID:        handlerID,
		HandlerName:      handlerName,
		Details:          FlattenChain(f),
	}, nil
}

// ToEnvelope wraps a failure response in an outbound envelope carrying the
// generic failure event type and the subject "failure/<handlerID>/<logEventID>".
func ToEnvelope(resp *events.FailureResponse) (events.EventEnvelope, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return events.EventEnvelope{}, fmt.Errorf("marshaling failure response: %w", err)
	}

	subject := fmt.Sprintf("failure/%s/%d", resp.HandlerID, resp.LogEventID)
	return events.NewEnvelope(events.EventTypeFailure, subject, events.DefaultDataVersion, data), nil
}
