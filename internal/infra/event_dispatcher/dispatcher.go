// Package eventdispatcher fans inbound event batches out to every
// registered handler that matches each envelope. Handlers matching the same
// envelope run concurrently and are isolated from one another: a handler
// error or panic is logged and counted as "not handled" without affecting
// its siblings or the rest of the batch. The dispatcher always reports a
// generic accepted outcome; business failures surface asynchronously as
// failure events on the bus, never as transport errors.
package eventdispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/clipwave/mediarelay/internal/domain/events"
	"github.com/clipwave/mediarelay/internal/domain/faults"
	"github.com/clipwave/mediarelay/pkg/common/logger"
)

// Outcome is the generic result returned to the transport layer. Accepted
// is true for every structurally valid batch regardless of handler
// outcomes. ValidationCode is set only when the batch contained a
// subscription-validation handshake event; the transport echoes it back to
// the platform.
type Outcome struct {
	Accepted       bool
	ValidationCode string
}

// ErrNilBatch reports a caller contract violation: Dispatch was invoked
// with a nil batch. An empty batch is valid; a nil one is a wiring defect.
var ErrNilBatch = errors.New("event batch must not be nil")

// DuplicateHandlerIDError reports two registered handlers sharing an ID.
type DuplicateHandlerIDError struct {
	HandlerID string
}

func (e *DuplicateHandlerIDError) Error() string {
	return fmt.Sprintf("duplicate handler id %q: handler ids must be unique within a dispatcher", e.HandlerID)
}

// subscriptionValidationData is the payload of the platform's one-time
// webhook handshake event.
type subscriptionValidationData struct {
	ValidationCode string `json:"validationCode"`
}

// Dispatcher matches inbound envelopes against the registered handlers and
// fans each envelope out to every handler that accepts it. The handler set
// is fixed at construction; no locking is needed at dispatch time.
//
// Typical usage:
//
//	dispatcher, err := eventdispatcher.New(handlers, tracer, log)
//	...
//	outcome, err := dispatcher.Dispatch(ctx, batch)
type Dispatcher struct {
	handlers []events.Handler
	tracer   trace.Tracer
	logger   *logger.Logger
}

// New constructs a Dispatcher over the full set of handlers supplied at
// startup. Handler IDs must be non-empty and unique.
func New(handlers []events.Handler, tracer trace.Tracer, log *logger.Logger) (*Dispatcher, error) {
	seen := make(map[string]struct{}, len(handlers))
	for _, h := range handlers {
		id := h.ID()
		if id == "" {
			return nil, fmt.Errorf("handler %s has an empty id", h.Name())
		}
		if _, dup := seen[id]; dup {
			return nil, &DuplicateHandlerIDError{HandlerID: id}
		}
		seen[id] = struct{}{}
	}

	return &Dispatcher{
		handlers: handlers,
		tracer:   tracer,
		logger:   log.With("component", "event_dispatcher"),
	}, nil
}

// Dispatch processes a batch of envelopes in sequence order. For each
// envelope every matching handler is invoked concurrently; an envelope with
// no matching handler is logged and skipped, which is not an error. A
// subscription-validation envelope short-circuits the batch and returns the
// handshake code immediately.
//
// The returned Outcome is accepted for any structurally valid batch. The
// error return is reserved for caller contract violations (nil batch,
// malformed validation payload) and context cancellation.
func (d *Dispatcher) Dispatch(ctx context.Context, batch []events.EventEnvelope) (Outcome, error) {
	if batch == nil {
		return Outcome{}, ErrNilBatch
	}

	log := logger.NewLoggerContext(d.logger.With("operation", "dispatch"))
	log.Add("batch_size", len(batch))

	ctx, span := d.tracer.Start(ctx, "event_dispatcher.dispatch_batch",
		trace.WithAttributes(attribute.Int("batch_size", len(batch))))
	defer span.End()

	for _, evt := range batch {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "dispatch canceled")
			return Outcome{}, err
		}

		if evt.Type == events.EventTypeSubscriptionValidation {
			code, err := parseValidationCode(evt)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return Outcome{}, err
			}

			log.Info(ctx, "subscription validation handshake answered",
				"log_event_id", faults.EventValidationShortCycle.ID, "event_id", evt.ID)
			span.SetStatus(codes.Ok, "subscription validation")
			return Outcome{Accepted: true, ValidationCode: code}, nil
		}

		d.dispatchOne(ctx, log, evt)
	}

	span.SetStatus(codes.Ok, "batch dispatched")
	return Outcome{Accepted: true}, nil
}

// dispatchOne fans a single envelope out to all matching handlers and logs
// the aggregate result. The aggregate is true only when every matching
// handler reported true; it is recorded for observability and never changes
// the batch outcome.
func (d *Dispatcher) dispatchOne(ctx context.Context, log *logger.LoggerContext, evt events.EventEnvelope) {
	ctx, span := d.tracer.Start(ctx, "event_dispatcher.dispatch_event",
		trace.WithAttributes(
			attribute.String("event_type", string(evt.Type)),
			attribute.String("event_id", evt.ID),
			attribute.String("data_version", evt.DataVersion),
		))
	defer span.End()

	var matching []events.Handler
	for _, h := range d.handlers {
		if h.Matches(evt.Type, evt.DataVersion) {
			matching = append(matching, h)
		}
	}

	if len(matching) == 0 {
		log.Info(ctx, "unhandled event type",
			"log_event_id", faults.EventUnmatchedEventType.ID,
			"event_type", evt.Type,
			"event_id", evt.ID,
			"data_version", evt.DataVersion)
		span.AddEvent("unhandled_event_type")
		span.SetStatus(codes.Ok, "no matching handlers")
		return
	}

	span.SetAttributes(attribute.Int("matching_handlers", len(matching)))

	results := make([]bool, len(matching))
	var wg sync.WaitGroup
	for i, h := range matching {
		wg.Add(1)
		go func(i int, h events.Handler) {
			defer wg.Done()
			results[i] = d.invoke(ctx, h, evt)
		}(i, h)
	}
	wg.Wait()

	handled := true
	for _, r := range results {
		handled = handled && r
	}

	log.Debug(ctx, "event dispatched",
		"event_type", evt.Type,
		"event_id", evt.ID,
		"matching_handlers", len(matching),
		"handled", handled)
	span.SetAttributes(attribute.Bool("handled", handled))
	span.SetStatus(codes.Ok, "event dispatched")
}

// invoke runs one handler against the envelope, converting an error or a
// panic into a "not handled" result so sibling handlers and the rest of the
// batch proceed unaffected.
func (d *Dispatcher) invoke(ctx context.Context, h events.Handler, evt events.EventEnvelope) (handled bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error(ctx, "handler panicked",
				"log_event_id", faults.EventHandlerPanicked.ID,
				"handler_id", h.ID(),
				"handler_name", h.Name(),
				"event_type", evt.Type,
				"event_id", evt.ID,
				"panic", fmt.Sprintf("%v", r))
			handled = false
		}
	}()

	handled, err := h.Handle(ctx, evt)
	if err != nil {
		d.logger.Error(ctx, "handler returned an error",
			"handler_id", h.ID(),
			"handler_name", h.Name(),
			"event_type", evt.Type,
			"event_id", evt.ID,
			"error", err)
		return false
	}

	return handled
}

func parseValidationCode(evt events.EventEnvelope) (string, error) {
	var data subscriptionValidationData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return "", fmt.Errorf("parsing subscription validation payload: %w", err)
	}
	if data.ValidationCode == "" {
		return "", fmt.Errorf("subscription validation payload is missing a validation code")
	}
	return data.ValidationCode, nil
}
