package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/clipwave/mediarelay/internal/domain/events"
	"github.com/clipwave/mediarelay/pkg/common/logger"
)

// countingMetrics is a test implementation of PublisherMetrics.
type countingMetrics struct {
	published atomic.Int64
	errors    atomic.Int64
}

func (m *countingMetrics) IncEventPublished(ctx context.Context, topic string) {
	m.published.Add(1)
}

func (m *countingMetrics) IncPublishError(ctx context.Context, topic string) {
	m.errors.Add(1)
}

func newTestPublisher(t *testing.T, cfg *Config, producer sarama.SyncProducer) (*Publisher, *countingMetrics) {
	t.Helper()
	metrics := &countingMetrics{}
	p := NewPublisher(producer, cfg, logger.Noop(), metrics, noop.NewTracerProvider().Tracer(""))
	return p, metrics
}

func mockProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	return cfg
}

// TestPublishSuccess tests the happy path: the envelope is serialized as
// JSON, keyed by subject, and sent to the default topic.
func TestPublishSuccess(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mockProducerConfig())
	defer producer.Close()

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "media-events" {
			return errors.New("expected default topic")
		}

		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "/partner/alpha" {
			return errors.New("expected subject as partition key")
		}

		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var env events.EventEnvelope
		return json.Unmarshal(value, &env)
	})

	p, metrics := newTestPublisher(t, &Config{DefaultTopic: "media-events"}, producer)

	evt := events.NewEnvelope("response.ping.success", "/partner/alpha", "1.0", []byte(`{}`))
	ok, err := p.Publish(context.Background(), evt)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), metrics.published.Load())
}

// TestPublishTopicRouting tests that mapped event types go to their
// dedicated topic instead of the default.
func TestPublishTopicRouting(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mockProducerConfig())
	defer producer.Close()

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "relay-failures" {
			return errors.New("expected mapped topic")
		}
		return nil
	})

	cfg := &Config{
		DefaultTopic: "media-events",
		TopicMap: map[events.EventType]string{
			events.EventTypeFailure: "relay-failures",
		},
	}
	p, _ := newTestPublisher(t, cfg, producer)

	evt := events.NewEnvelope(events.EventTypeFailure, "failure/h1/2003", "1.0", []byte(`{}`))
	ok, err := p.Publish(context.Background(), evt)
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestPublishFailure tests that a producer error yields a false result and
// counts a publish error.
func TestPublishFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mockProducerConfig())
	defer producer.Close()

	producer.ExpectSendMessageAndFail(sarama.ErrBrokerNotAvailable)

	p, metrics := newTestPublisher(t, &Config{DefaultTopic: "media-events"}, producer)

	evt := events.NewEnvelope("response.ping.success", "/partner/alpha", "1.0", []byte(`{}`))
	ok, err := p.Publish(context.Background(), evt)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(1), metrics.errors.Load())
}
