// Package relay implements the reusable handler lifecycle every concrete
// event handler is built from: deserialize the payload, acknowledge
// request-type events, invoke the business work, and reflect the outcome
// (or a fault) back onto the bus as a new event. A fault raised by the work
// function is converted into a failure event exactly once, here, and never
// escapes the lifecycle boundary.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/clipwave/mediarelay/internal/domain/events"
	"github.com/clipwave/mediarelay/internal/domain/faults"
	"github.com/clipwave/mediarelay/pkg/common/logger"
	"github.com/clipwave/mediarelay/pkg/common/otel"
)

// WorkFunc is the single required extension point of a handler: given the
// deserialized payload and the inbound event type, it performs the business
// operation and returns the response to publish. Returning an error (or a
// *faults.Fault) reports a business failure; the lifecycle translates it
// into a failure event.
type WorkFunc[T any] func(ctx context.Context, payload T, eventType events.EventType) (events.Response, error)

// ContextExtractor is an optional hook that parses an operation context out
// of the raw payload when the payload type itself does not carry one.
type ContextExtractor func(raw json.RawMessage) events.OperationContext

// ErrNilEnvelopeData reports a caller contract violation: Handle was given
// an envelope without a payload.
var ErrNilEnvelopeData = errors.New("envelope data must not be nil")

// UnmatchedEventError reports a caller contract violation: Handle was
// invoked without a prior successful Matches check.
type UnmatchedEventError struct {
	HandlerName string
	EventType   events.EventType
	DataVersion string
}

func (e *UnmatchedEventError) Error() string {
	return fmt.Sprintf("handler %s does not match event type %s version %s; Matches must be checked before Handle",
		e.HandlerName, e.EventType, e.DataVersion)
}

// HandlerBase drives the acknowledge/execute/publish lifecycle for a single
// payload type T. Concrete handlers are assembled by composing a WorkFunc
// with a registration table; no further methods need implementing.
type HandlerBase[T any] struct {
	id           string
	name         string
	subject      string
	registration events.Registration

	publisher events.Publisher
	logger    *logger.Logger
	tracer    trace.Tracer

	work            WorkFunc[T]
	extractContext  ContextExtractor
	appendSubjectID bool
}

var _ events.Handler = (*HandlerBase[struct{}])(nil)

// Option configures optional lifecycle behavior.
type Option[T any] func(*HandlerBase[T])

// WithContextExtractor installs a hook that parses the operation context
// out of the raw payload for payload types that do not embed RequestBase
// or implement ContextCarrier.
func WithContextExtractor[T any](fn ContextExtractor) Option[T] {
	return func(h *HandlerBase[T]) { h.extractContext = fn }
}

// WithoutSubjectID suppresses appending the outbound envelope's ID to the
// handler subject when publishing outcomes.
func WithoutSubjectID[T any]() Option[T] {
	return func(h *HandlerBase[T]) { h.appendSubjectID = false }
}

// NewHandler constructs a handler from its identity, registration table,
// and work function. id must be stable and unique across all handlers
// registered with a dispatcher (conventionally a UUID); subject is the base
// subject stamped on outcome envelopes.
func NewHandler[T any](
	id string,
	name string,
	subject string,
	registration events.Registration,
	work WorkFunc[T],
	publisher events.Publisher,
	log *logger.Logger,
	tracer trace.Tracer,
	opts ...Option[T],
) (*HandlerBase[T], error) {
	if id == "" {
		return nil, errors.New("handler id is required")
	}
	if name == "" {
		return nil, errors.New("handler name is required")
	}
	if len(registration) == 0 {
		return nil, errors.New("handler registration must not be empty")
	}
	if work == nil {
		return nil, errors.New("handler work function is required")
	}
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}

	h := &HandlerBase[T]{
		id:              id,
		name:            name,
		subject:         subject,
		registration:    registration,
		publisher:       publisher,
		logger:          log.With("component", "handler", "handler_name", name, "handler_id", id),
		tracer:          tracer,
		work:            work,
		appendSubjectID: true,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h, nil
}

// ID implements events.Handler.
func (h *HandlerBase[T]) ID() string { return h.id }

// Name implements events.Handler.
func (h *HandlerBase[T]) Name() string { return h.name }

// Matches implements events.Handler.
func (h *HandlerBase[T]) Matches(eventType events.EventType, dataVersion string) bool {
	return h.registration.Matches(eventType, dataVersion)
}

// Handle implements events.Handler. It never returns an error for business
// failures; those surface as a false result plus a failure event on the
// bus. Errors are reserved for caller contract violations.
func (h *HandlerBase[T]) Handle(ctx context.Context, evt events.EventEnvelope) (bool, error) {
	log := logger.NewLoggerContext(h.logger.With("operation", "handle"))
	log.Add("event_type", evt.Type)
	log.Add("event_id", evt.ID)

	ctx, span := h.tracer.Start(ctx, "handler.handle",
		trace.WithAttributes(
			attribute.String("event_type", string(evt.Type)),
			attribute.String("event_id", evt.ID),
			attribute.String("handler_id", h.id),
			attribute.String("handler_name", h.name),
		))
	defer span.End()

	if evt.Data == nil {
		span.SetStatus(codes.Error, "nil envelope data")
		return false, ErrNilEnvelopeData
	}
	if !h.Matches(evt.Type, evt.DataVersion) {
		err := &UnmatchedEventError{HandlerName: h.name, EventType: evt.Type, DataVersion: evt.DataVersion}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	payload, err := h.decodePayload(evt.Data)
	if err != nil {
		h.publishFailure(ctx, log, err, h.rawContext(evt.Data))
		span.SetStatus(codes.Error, "payload decode failed")
		return false, nil
	}

	opCtx := h.operationContext(payload, evt.Data)

	if evt.Type.IsRequest() {
		h.acknowledge(ctx, log, evt, opCtx)
	}

	resp, err := h.invokeWork(ctx, payload, evt.Type)
	if err != nil {
		h.publishFailure(ctx, log, err, opCtx)
		span.SetStatus(codes.Error, "handler work failed")
		return false, nil
	}

	if resp.SkipPublish() {
		log.Debug(ctx, "outcome publication suppressed by response")
		span.SetStatus(codes.Ok, "handled without publication")
		return true, nil
	}

	if err := h.publishOutcome(ctx, log, resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "outcome publish failed")
		return false, nil
	}

	span.SetStatus(codes.Ok, "event handled")
	return true, nil
}

// decodePayload deserializes the envelope data into T. A payload that
// decodes to a null document is treated the same as a malformed one.
func (h *HandlerBase[T]) decodePayload(raw json.RawMessage) (T, error) {
	var payload T

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return payload, faults.New(faults.EventPayloadEmpty, "event payload is empty")
	}

	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, faults.Wrap(err, faults.EventPayloadDecodeFailed, "event payload could not be deserialized").
			WithData("payload_type", fmt.Sprintf("%T", payload))
	}

	return payload, nil
}

// operationContext resolves the correlation document for the payload:
// prefer the payload's own context (RequestBase embed or ContextCarrier
// implementation), fall back to the configured extractor hook, else absent.
func (h *HandlerBase[T]) operationContext(payload T, raw json.RawMessage) events.OperationContext {
	if carrier, ok := any(payload).(events.ContextCarrier); ok {
		if opCtx := carrier.OperationContext(); !opCtx.IsZero() {
			return opCtx
		}
	}
	return h.rawContext(raw)
}

func (h *HandlerBase[T]) rawContext(raw json.RawMessage) events.OperationContext {
	if h.extractContext == nil {
		return nil
	}
	return h.extractContext(raw)
}

// acknowledge publishes the acknowledge event back to the requestor's
// subject. A failed acknowledge is logged and swallowed; it must not
// prevent the business work from running.
func (h *HandlerBase[T]) acknowledge(ctx context.Context, log *logger.LoggerContext, evt events.EventEnvelope, opCtx events.OperationContext) {
	ack := events.NewAcknowledgeResponse(evt, opCtx)

	data, err := json.Marshal(ack)
	if err != nil {
		log.Error(ctx, "failed to encode acknowledge event",
			"log_event_id", faults.EventAcknowledgePublishFailed.ID, "error", err)
		return
	}

	out := events.NewEnvelope(events.EventTypeAcknowledge, evt.Subject, events.DefaultDataVersion, data)
	if ok, err := h.publisher.Publish(ctx, out); err != nil || !ok {
		log.Error(ctx, "failed to publish acknowledge event",
			"log_event_id", faults.EventAcknowledgePublishFailed.ID,
			"accepted", ok, "error", err)
		return
	}

	log.Debug(ctx, "acknowledge event published", "subject", evt.Subject)
}

// invokeWork runs the work function, converting a panic into a fault so one
// misbehaving handler can never take down the surrounding fan-out.
func (h *HandlerBase[T]) invokeWork(ctx context.Context, payload T, eventType events.EventType) (resp events.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = faults.Newf(faults.EventWorkFailed, "handler work panicked: %v", r)
		}
	}()

	resp, err = h.work(ctx, payload, eventType)
	if err == nil && resp == nil {
		err = faults.New(faults.EventWorkFailed, "handler work returned no response")
	}
	return resp, err
}

// publishOutcome wraps the response in a fresh envelope and publishes it.
// Publish failures are logged and reported to the caller as an error so
// Handle can flip its result to false; they never raise further.
func (h *HandlerBase[T]) publishOutcome(ctx context.Context, log *logger.LoggerContext, resp events.Response) error {
	if resp.EventType() == "" {
		err := faults.New(faults.EventWorkFailed, "response is missing a return event type")
		h.publishFailure(ctx, log, err, resp.OperationContext())
		return err
	}

	data, err := json.Marshal(resp)
	if err != nil {
		fault := faults.Wrap(err, faults.EventWorkFailed, "response could not be serialized")
		h.publishFailure(ctx, log, fault, resp.OperationContext())
		return fault
	}

	out := events.NewEnvelope(resp.EventType(), h.subject, events.DefaultDataVersion, data)
	if h.appendSubjectID {
		out.Subject = h.subject + "/" + out.ID
	}

	if ok, pubErr := h.publisher.Publish(ctx, out); pubErr != nil || !ok {
		log.Error(ctx, "failed to publish outcome event",
			"log_event_id", faults.EventOutcomePublishFailed.ID,
			"outbound_event_type", out.Type,
			"accepted", ok, "error", pubErr)
		if pubErr != nil {
			return pubErr
		}
		return fmt.Errorf("outcome event %s not accepted by the bus", out.Type)
	}

	log.Debug(ctx, "outcome event published",
		"outbound_event_type", out.Type, "subject", out.Subject)
	return nil
}

// publishFailure is the single conversion point from a fault to a failure
// event. Errors that are not already faults are wrapped once; the operation
// context is attached only if the fault does not carry one.
func (h *HandlerBase[T]) publishFailure(ctx context.Context, log *logger.LoggerContext, err error, opCtx events.OperationContext) {
	var fault *faults.Fault
	if !errors.As(err, &fault) {
		fault = faults.Wrap(err, faults.EventUnhandledFault, "unhandled handler fault")
	}
	fault.AttachOperationContext(opCtx)

	locator := diagnosticLocator(ctx)
	log.Error(ctx, "handler fault",
		"log_event_id", fault.LogEvent().ID,
		"log_event", fault.LogEvent().Name,
		"locator", locator,
		"error", fault)

	resp, convErr := faults.ToFailureResponse(fault, h.id, h.name, locator)
	if convErr != nil {
		log.Error(ctx, "failed to convert fault to failure response", "error", convErr)
		return
	}

	out, envErr := faults.ToEnvelope(resp)
	if envErr != nil {
		log.Error(ctx, "failed to build failure envelope", "error", envErr)
		return
	}

	if ok, pubErr := h.publisher.Publish(ctx, out); pubErr != nil || !ok {
		log.Error(ctx, "failed to publish failure event",
			"log_event_id", faults.EventFailurePublishFailed.ID,
			"accepted", ok, "error", pubErr)
	}
}

// diagnosticLocator links a failure event to its telemetry record via the
// active trace. Returns empty when no valid trace is in flight.
func diagnosticLocator(ctx context.Context) string {
	if span := trace.SpanFromContext(ctx); !span.SpanContext().IsValid() {
		return ""
	}
	return "otel:trace/" + otel.GetTraceID(ctx)
}
