// Package events defines the domain model for the relay's event
// distribution core: the wire envelope, handler registration and matching,
// the response contract family, and the ports the core uses to talk to its
// collaborators. It is technology-agnostic; transport and bus concerns live
// in the infra layer.
package events

import "context"

// Publisher provides single-event publish capability to the outbound topic.
// The boolean result reports whether the bus accepted the envelope; a false
// result and an error are both treated as soft failures by the relay core.
// Connection pooling and delivery durability are the implementation's
// responsibility.
type Publisher interface {
	Publish(ctx context.Context, event EventEnvelope) (bool, error)
}

// Handler is the extension point a concrete business-logic module implements
// to plug into the dispatcher. Handlers are expected to be cheap, stateless
// objects whose registration table is fixed at construction.
type Handler interface {
	// ID returns the handler's stable, unique identifier, used for
	// attribution in logs and failure events. No two handlers registered
	// with the same dispatcher may share an ID.
	ID() string

	// Name returns the handler's human-readable type name for diagnostics.
	Name() string

	// Matches reports whether this handler processes the given event type
	// and data version. The dispatcher must call Matches before Handle.
	Matches(eventType EventType, dataVersion string) bool

	// Handle processes a single envelope. The boolean result reports
	// whether the envelope was handled successfully; business failures are
	// reflected onto the bus as failure events, not returned here. The
	// error return is reserved for caller contract violations (nil payload,
	// unmatched event type).
	Handle(ctx context.Context, evt EventEnvelope) (bool, error)
}
