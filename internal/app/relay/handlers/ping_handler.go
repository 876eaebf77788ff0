// Package handlers contains concrete handlers built on the relay
// lifecycle. Vendor media integrations live in their own modules; the
// handlers here are the transport-free operations the relay service always
// ships with.
package handlers

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/clipwave/mediarelay/internal/app/relay"
	"github.com/clipwave/mediarelay/internal/domain/events"
	"github.com/clipwave/mediarelay/pkg/common/logger"
)

// Event types owned by the ping handler.
const (
	EventTypePingRequested events.EventType = "request.ping"
	EventTypePingCompleted events.EventType = "response.ping.success"
)

// PingRequest asks the relay to echo a message, proving the event path end
// to end.
type PingRequest struct {
	events.RequestBase

	Message string `json:"message"`
}

// PingCompleted echoes the request message back with a receipt timestamp.
type PingCompleted struct {
	events.ResponseBase

	Message    string    `json:"message"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// NewPingHandler constructs the ping handler. It accepts any data version
// of the ping request event.
func NewPingHandler(id string, publisher events.Publisher, log *logger.Logger, tracer trace.Tracer) (events.Handler, error) {
	registration := events.Registration{
		EventTypePingRequested: {events.DataVersionAny},
	}

	work := func(ctx context.Context, req PingRequest, eventType events.EventType) (events.Response, error) {
		return &PingCompleted{
			ResponseBase: events.ResponseBase{
				Context:     req.Context,
				ReturnEvent: EventTypePingCompleted,
			},
			Message:    req.Message,
			ReceivedAt: time.Now().UTC(),
		}, nil
	}

	return relay.NewHandler(id, "PingHandler", "/mediarelay/ping", registration, work, publisher, log, tracer)
}
