package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/clipwave/mediarelay/internal/domain/events"
	"github.com/clipwave/mediarelay/internal/domain/faults"
	"github.com/clipwave/mediarelay/pkg/common/logger"
)

const (
	testRequestType events.EventType = "request.test"
	testPlainType   events.EventType = "blob.created"
	testSuccessType events.EventType = "response.test.success"
)

// testPayload derives from the standard request base so the lifecycle can
// extract its operation context.
type testPayload struct {
	events.RequestBase

	Name string `json:"name"`
}

// mockPublisher is a test implementation of the Publisher port.
type mockPublisher struct {
	mu        sync.Mutex
	published []events.EventEnvelope

	// failTypes makes Publish fail for the listed event types only.
	failTypes map[events.EventType]error

	// rejectTypes makes Publish return a false result for the listed types.
	rejectTypes map[events.EventType]bool
}

func (m *mockPublisher) Publish(ctx context.Context, evt events.EventEnvelope) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.failTypes[evt.Type]; ok {
		return false, err
	}
	if m.rejectTypes[evt.Type] {
		return false, nil
	}

	m.published = append(m.published, evt)
	return true, nil
}

func (m *mockPublisher) envelopes() []events.EventEnvelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]events.EventEnvelope, len(m.published))
	copy(out, m.published)
	return out
}

func newTestHandler(t *testing.T, pub events.Publisher, work WorkFunc[testPayload], opts ...Option[testPayload]) *HandlerBase[testPayload] {
	t.Helper()

	registration := events.Registration{
		testRequestType: {events.DataVersionAny},
		testPlainType:   {events.DataVersionAny},
	}

	h, err := NewHandler(
		"handler-1",
		"TestHandler",
		"/mediarelay/test",
		registration,
		work,
		pub,
		logger.Noop(),
		noop.NewTracerProvider().Tracer(""),
		opts...,
	)
	require.NoError(t, err)
	return h
}

func successWork(propagateContext bool) WorkFunc[testPayload] {
	return func(ctx context.Context, payload testPayload, eventType events.EventType) (events.Response, error) {
		resp := &events.ResponseBase{ReturnEvent: testSuccessType}
		if propagateContext {
			resp.Context = payload.Context
		}
		return resp, nil
	}
}

func requestEnvelope(eventType events.EventType, data string) events.EventEnvelope {
	return events.EventEnvelope{
		ID:          "evt-1",
		Type:        eventType,
		DataVersion: "1.0",
		Subject:     "/partner/alpha",
		Data:        json.RawMessage(data),
	}
}

// TestHandlerConstructionContract tests the constructor's argument checks.
func TestHandlerConstructionContract(t *testing.T) {
	pub := &mockPublisher{}
	registration := events.Registration{testPlainType: {events.DataVersionAny}}
	work := successWork(false)
	log := logger.Noop()
	tracer := noop.NewTracerProvider().Tracer("")

	_, err := NewHandler("", "TestHandler", "/s", registration, work, pub, log, tracer)
	require.Error(t, err)

	_, err = NewHandler("handler-1", "", "/s", registration, work, pub, log, tracer)
	require.Error(t, err)

	_, err = NewHandler("handler-1", "TestHandler", "/s", events.Registration{}, work, pub, log, tracer)
	require.Error(t, err)

	_, err = NewHandler[testPayload]("handler-1", "TestHandler", "/s", registration, nil, pub, log, tracer)
	require.Error(t, err)

	_, err = NewHandler("handler-1", "TestHandler", "/s", registration, work, nil, log, tracer)
	require.Error(t, err)
}

// TestHandleNilData tests that a missing payload is a caller fault, not a
// business failure.
func TestHandleNilData(t *testing.T) {
	pub := &mockPublisher{}
	h := newTestHandler(t, pub, successWork(false))

	evt := requestEnvelope(testPlainType, "{}")
	evt.Data = nil

	_, err := h.Handle(context.Background(), evt)
	require.ErrorIs(t, err, ErrNilEnvelopeData)
	assert.Empty(t, pub.envelopes(), "no event is published for a caller fault")
}

// TestHandleUnmatchedEvent tests the defensive Matches precondition.
func TestHandleUnmatchedEvent(t *testing.T) {
	pub := &mockPublisher{}
	h := newTestHandler(t, pub, successWork(false))

	evt := requestEnvelope("some.other.event", "{}")

	_, err := h.Handle(context.Background(), evt)
	require.Error(t, err)

	var unmatched *UnmatchedEventError
	require.ErrorAs(t, err, &unmatched)
	assert.Equal(t, events.EventType("some.other.event"), unmatched.EventType)
	assert.Empty(t, pub.envelopes())
}

// TestHandleNullPayload tests that a payload deserializing to null yields
// exactly one failure event and a false result.
func TestHandleNullPayload(t *testing.T) {
	pub := &mockPublisher{}
	h := newTestHandler(t, pub, successWork(false))

	handled, err := h.Handle(context.Background(), requestEnvelope(testPlainType, "null"))
	require.NoError(t, err)
	assert.False(t, handled)

	published := pub.envelopes()
	require.Len(t, published, 1)
	assert.Equal(t, events.EventTypeFailure, published[0].Type)
	assert.True(t, strings.HasPrefix(published[0].Subject, "failure/"))

	var failure events.FailureResponse
	require.NoError(t, json.Unmarshal(published[0].Data, &failure))
	assert.Equal(t, faults.EventPayloadEmpty.ID, failure.LogEventID)
	assert.Equal(t, "handler-1", failure.HandlerID)
	assert.Equal(t, "TestHandler", failure.HandlerName)
}

// TestHandleMalformedPayload tests the deserialization failure path.
func TestHandleMalformedPayload(t *testing.T) {
	pub := &mockPublisher{}
	h := newTestHandler(t, pub, successWork(false))

	handled, err := h.Handle(context.Background(), requestEnvelope(testPlainType, `{"name":`))
	require.NoError(t, err)
	assert.False(t, handled)

	published := pub.envelopes()
	require.Len(t, published, 1)

	var failure events.FailureResponse
	require.NoError(t, json.Unmarshal(published[0].Data, &failure))
	assert.Equal(t, faults.EventPayloadDecodeFailed.ID, failure.LogEventID)
	assert.NotEmpty(t, failure.Details)
}

// TestRequestEventAcknowledged tests that request-prefixed events receive
// an acknowledge event on the inbound subject before the outcome.
func TestRequestEventAcknowledged(t *testing.T) {
	pub := &mockPublisher{}
	h := newTestHandler(t, pub, successWork(true))

	data := `{"operationContext":{"job":"alpha"},"name":"clip"}`
	handled, err := h.Handle(context.Background(), requestEnvelope(testRequestType, data))
	require.NoError(t, err)
	assert.True(t, handled)

	published := pub.envelopes()
	require.Len(t, published, 2)

	ack := published[0]
	assert.Equal(t, events.EventTypeAcknowledge, ack.Type)
	assert.Equal(t, "/partner/alpha", ack.Subject, "acknowledge goes back to the inbound subject")

	var ackResp events.AcknowledgeResponse
	require.NoError(t, json.Unmarshal(ack.Data, &ackResp))
	assert.Equal(t, testRequestType, ackResp.RequestEventType)
	assert.Equal(t, "evt-1", ackResp.RequestID)
	assert.JSONEq(t, `{"job":"alpha"}`, string(ackResp.Context))

	outcome := published[1]
	assert.Equal(t, testSuccessType, outcome.Type)
}

// TestNonRequestSkipsAcknowledge tests that the acknowledge step only runs
// for request-prefixed event types.
func TestNonRequestSkipsAcknowledge(t *testing.T) {
	pub := &mockPublisher{}
	h := newTestHandler(t, pub, successWork(false))

	handled, err := h.Handle(context.Background(), requestEnvelope(testPlainType, `{"name":"clip"}`))
	require.NoError(t, err)
	assert.True(t, handled)

	published := pub.envelopes()
	require.Len(t, published, 1)
	assert.Equal(t, testSuccessType, published[0].Type)
}

// TestAcknowledgeFailureDoesNotBlockWork tests that a failed acknowledge
// publish is swallowed and the business work still runs.
func TestAcknowledgeFailureDoesNotBlockWork(t *testing.T) {
	pub := &mockPublisher{
		failTypes: map[events.EventType]error{
			events.EventTypeAcknowledge: errors.New("bus unavailable"),
		},
	}

	var workRan bool
	work := func(ctx context.Context, payload testPayload, eventType events.EventType) (events.Response, error) {
		workRan = true
		return &events.ResponseBase{ReturnEvent: testSuccessType}, nil
	}

	h := newTestHandler(t, pub, work)

	handled, err := h.Handle(context.Background(), requestEnvelope(testRequestType, `{"name":"clip"}`))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.True(t, workRan, "acknowledge failure must not prevent business logic")

	published := pub.envelopes()
	require.Len(t, published, 1)
	assert.Equal(t, testSuccessType, published[0].Type)
}

// TestDoNotPublish tests that a side-effect-only response suppresses the
// outcome event entirely.
func TestDoNotPublish(t *testing.T) {
	pub := &mockPublisher{}
	work := func(ctx context.Context, payload testPayload, eventType events.EventType) (events.Response, error) {
		return &events.ResponseBase{ReturnEvent: testSuccessType, DoNotPublish: true}, nil
	}
	h := newTestHandler(t, pub, work)

	handled, err := h.Handle(context.Background(), requestEnvelope(testPlainType, `{"name":"clip"}`))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Empty(t, pub.envelopes(), "no outcome event is published")
}

// TestOutcomeSubjectDerivation tests the subject convention for outcome
// envelopes.
func TestOutcomeSubjectDerivation(t *testing.T) {
	pub := &mockPublisher{}
	h := newTestHandler(t, pub, successWork(false))

	handled, err := h.Handle(context.Background(), requestEnvelope(testPlainType, `{"name":"clip"}`))
	require.NoError(t, err)
	assert.True(t, handled)

	published := pub.envelopes()
	require.Len(t, published, 1)
	assert.Equal(t, "/mediarelay/test/"+published[0].ID, published[0].Subject)
}

// TestOutcomeSubjectIDSuppressed tests the WithoutSubjectID option.
func TestOutcomeSubjectIDSuppressed(t *testing.T) {
	pub := &mockPublisher{}
	h := newTestHandler(t, pub, successWork(false), WithoutSubjectID[testPayload]())

	handled, err := h.Handle(context.Background(), requestEnvelope(testPlainType, `{"name":"clip"}`))
	require.NoError(t, err)
	assert.True(t, handled)

	published := pub.envelopes()
	require.Len(t, published, 1)
	assert.Equal(t, "/mediarelay/test", published[0].Subject)
}

// TestWorkFaultPublishesFailure tests that a business fault is translated
// into a failure event carrying the operation context and fault chain.
func TestWorkFaultPublishesFailure(t *testing.T) {
	pub := &mockPublisher{}
	work := func(ctx context.Context, payload testPayload, eventType events.EventType) (events.Response, error) {
		return nil, faults.Wrap(errors.New("encoder offline"), faults.EventWorkFailed, "transcode failed").
			WithData("preset", "h264-1080p")
	}
	h := newTestHandler(t, pub, work)

	data := `{"operationContext":{"job":"alpha"},"name":"clip"}`
	handled, err := h.Handle(context.Background(), requestEnvelope(testPlainType, data))
	require.NoError(t, err)
	assert.False(t, handled)

	published := pub.envelopes()
	require.Len(t, published, 1)
	assert.Equal(t, events.EventTypeFailure, published[0].Type)

	var failure events.FailureResponse
	require.NoError(t, json.Unmarshal(published[0].Data, &failure))
	assert.Equal(t, faults.EventWorkFailed.ID, failure.LogEventID)
	assert.JSONEq(t, `{"job":"alpha"}`, string(failure.Context))
	require.Len(t, failure.Details, 2)
	assert.Equal(t, "transcode failed", failure.Details[0].Message)
	assert.Equal(t, "h264-1080p", failure.Details[0].Data["preset"])
	assert.Equal(t, "encoder offline", failure.Details[1].Message)
}

// TestWorkPlainErrorIsWrappedOnce tests that a non-fault error is wrapped
// in the generic unhandled fault exactly once.
func TestWorkPlainErrorIsWrappedOnce(t *testing.T) {
	pub := &mockPublisher{}
	work := func(ctx context.Context, payload testPayload, eventType events.EventType) (events.Response, error) {
		return nil, errors.New("something odd")
	}
	h := newTestHandler(t, pub, work)

	handled, err := h.Handle(context.Background(), requestEnvelope(testPlainType, `{"name":"clip"}`))
	require.NoError(t, err)
	assert.False(t, handled)

	published := pub.envelopes()
	require.Len(t, published, 1)

	var failure events.FailureResponse
	require.NoError(t, json.Unmarshal(published[0].Data, &failure))
	assert.Equal(t, faults.EventUnhandledFault.ID, failure.LogEventID)
	require.Len(t, failure.Details, 2)
	assert.Equal(t, "something odd", failure.Details[1].Message)
}

// TestWorkPanicBecomesFailureEvent tests panic isolation at the lifecycle
// boundary.
func TestWorkPanicBecomesFailureEvent(t *testing.T) {
	pub := &mockPublisher{}
	work := func(ctx context.Context, payload testPayload, eventType events.EventType) (events.Response, error) {
		panic("index out of range")
	}
	h := newTestHandler(t, pub, work)

	handled, err := h.Handle(context.Background(), requestEnvelope(testPlainType, `{"name":"clip"}`))
	require.NoError(t, err)
	assert.False(t, handled)

	published := pub.envelopes()
	require.Len(t, published, 1)
	assert.Equal(t, events.EventTypeFailure, published[0].Type)

	var failure events.FailureResponse
	require.NoError(t, json.Unmarshal(published[0].Data, &failure))
	assert.Equal(t, faults.EventWorkFailed.ID, failure.LogEventID)
	assert.Contains(t, failure.Message, "index out of range")
}

// TestOutcomePublishFailureFlipsResult tests that a failed outcome publish
// is logged, flips the result to false, and raises nothing further.
func TestOutcomePublishFailureFlipsResult(t *testing.T) {
	pub := &mockPublisher{
		rejectTypes: map[events.EventType]bool{testSuccessType: true},
	}
	h := newTestHandler(t, pub, successWork(false))

	handled, err := h.Handle(context.Background(), requestEnvelope(testPlainType, `{"name":"clip"}`))
	require.NoError(t, err)
	assert.False(t, handled)
}

// TestContextExtractorHook tests the raw-payload context extraction hook
// for payload types without a context field.
func TestContextExtractorHook(t *testing.T) {
	pub := &mockPublisher{}

	extractor := func(raw json.RawMessage) events.OperationContext {
		var probe struct {
			Correlation json.RawMessage `json:"correlation"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil
		}
		return events.OperationContext(probe.Correlation)
	}

	work := func(ctx context.Context, payload testPayload, eventType events.EventType) (events.Response, error) {
		return nil, faults.New(faults.EventWorkFailed, "work failed")
	}

	h := newTestHandler(t, pub, work, WithContextExtractor[testPayload](extractor))

	data := `{"name":"clip","correlation":{"job":"beta"}}`
	handled, err := h.Handle(context.Background(), requestEnvelope(testPlainType, data))
	require.NoError(t, err)
	assert.False(t, handled)

	published := pub.envelopes()
	require.Len(t, published, 1)

	var failure events.FailureResponse
	require.NoError(t, json.Unmarshal(published[0].Data, &failure))
	assert.JSONEq(t, `{"job":"beta"}`, string(failure.Context))
}
