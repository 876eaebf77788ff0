package events

// Response is the contract a handler's business logic returns. Concrete
// handlers embed ResponseBase in their type-specific success payloads; the
// relay core provides the failure and acknowledge variants.
type Response interface {
	// EventType is the outbound event type to publish for this response.
	EventType() EventType

	// OperationContext returns the correlation document carried by this
	// response, if any.
	OperationContext() OperationContext

	// SkipPublish reports whether the lifecycle should treat the response
	// as handled without publishing an outcome event. Used by side-effect
	// only operations.
	SkipPublish() bool
}

// ResponseBase carries the fields common to every response variant. The
// routing fields are excluded from the payload JSON; only the operation
// context travels on the wire.
type ResponseBase struct {
	// Context is the operation context propagated from the request.
	Context OperationContext `json:"operationContext,omitempty"`

	// ReturnEvent is the event type published for this response.
	ReturnEvent EventType `json:"-"`

	// DoNotPublish suppresses outcome publication even on success.
	DoNotPublish bool `json:"-"`
}

// EventType implements Response.
func (r *ResponseBase) EventType() EventType { return r.ReturnEvent }

// OperationContext implements Response.
func (r *ResponseBase) OperationContext() OperationContext { return r.Context }

// SkipPublish implements Response.
func (r *ResponseBase) SkipPublish() bool { return r.DoNotPublish }

// AcknowledgeResponse is published back to the requestor's subject before
// business logic runs, for request-prefixed event types only.
type AcknowledgeResponse struct {
	ResponseBase

	// RequestEventType echoes the inbound event type being acknowledged.
	RequestEventType EventType `json:"eventType"`

	// RequestID echoes the inbound envelope's ID.
	RequestID string `json:"eventId"`
}

// NewAcknowledgeResponse builds the acknowledge payload for an inbound
// request envelope.
func NewAcknowledgeResponse(evt EventEnvelope, opCtx OperationContext) *AcknowledgeResponse {
	return &AcknowledgeResponse{
		ResponseBase:     ResponseBase{Context: opCtx, ReturnEvent: EventTypeAcknowledge},
		RequestEventType: evt.Type,
		RequestID:        evt.ID,
	}
}

// FailureResponse reports a handler fault onto the bus. It carries enough
// attribution (handler identity, log event id, diagnostic locator) to link
// the event to its telemetry record.
type FailureResponse struct {
	ResponseBase

	// Message is the human-readable fault description.
	Message string `json:"message"`

	// LogEventID is the stable numeric identifier of the fault category,
	// used for telemetry correlation.
	LogEventID int `json:"logEventId"`

	// LogRecordLocator optionally links to the detailed telemetry record.
	LogRecordLocator string `json:"logRecordLocator,omitempty"`

	// HandlerID identifies the handler instance that faulted.
	HandlerID string `json:"handlerId"`

	// HandlerName is the handler's type name.
	HandlerName string `json:"handlerName"`

	// Details is the flattened fault chain, outermost first.
	Details []FailureDetail `json:"details,omitempty"`
}

// FailureDetail is one link of a flattened fault chain.
type FailureDetail struct {
	// Message is the link's description.
	Message string `json:"message"`

	// Data carries arbitrary key/value diagnostic data attached to the
	// link, if any.
	Data map[string]any `json:"data,omitempty"`
}

// RequestBase is the standard base for request payloads that carry an
// operation context. Concrete request DTOs embed it so the handler
// lifecycle can extract the context without knowing the payload type.
type RequestBase struct {
	Context OperationContext `json:"operationContext,omitempty"`
}

// OperationContext implements the ContextCarrier capability.
func (r RequestBase) OperationContext() OperationContext { return r.Context }

// ContextCarrier is the capability interface a payload implements to expose
// its operation context to the handler lifecycle.
type ContextCarrier interface {
	OperationContext() OperationContext
}
