// Package kafka provides a Kafka-backed implementation of the relay's
// Publisher port.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/clipwave/mediarelay/internal/domain/events"
	"github.com/clipwave/mediarelay/internal/infra/eventbus/kafka/tracing"
	"github.com/clipwave/mediarelay/pkg/common"
	"github.com/clipwave/mediarelay/pkg/common/logger"
)

// PublisherMetrics defines the metrics operations needed to monitor
// outbound event publishing.
type PublisherMetrics interface {
	IncEventPublished(ctx context.Context, topic string)
	IncPublishError(ctx context.Context, topic string)
}

// Config contains settings for connecting to Kafka and routing outbound
// events to topics.
type Config struct {
	// Brokers is a list of Kafka broker addresses to connect to.
	Brokers []string

	// DefaultTopic receives every event type without an explicit mapping.
	DefaultTopic string

	// TopicMap routes specific event types to dedicated topics.
	TopicMap map[events.EventType]string

	// ClientID uniquely identifies this client to the Kafka cluster.
	ClientID string

	// ServiceType identifies the kind of service running this publisher.
	ServiceType string

	// PublishRPS caps outbound publishes per second. Zero disables the
	// limiter.
	PublishRPS float64

	// PublishBurst is the limiter's burst allowance when PublishRPS is set.
	PublishBurst int
}

var _ events.Publisher = (*Publisher)(nil)

// Publisher implements the Publisher port on top of a sarama sync producer.
// Envelopes are serialized as JSON, keyed by subject so events about the
// same resource land on the same partition.
type Publisher struct {
	producer     sarama.SyncProducer
	defaultTopic string
	topicMap     map[events.EventType]string
	limiter      *common.RateLimiter

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics PublisherMetrics
}

// NewPublisherFromConfig creates a Kafka-backed publisher from the provided
// configuration. Producer settings mirror the platform defaults: full acks,
// hash partitioning, success returns enabled.
func NewPublisherFromConfig(
	cfg *Config,
	log *logger.Logger,
	metrics PublisherMetrics,
	tracer trace.Tracer,
) (*Publisher, error) {
	if cfg.DefaultTopic == "" {
		return nil, fmt.Errorf("default topic is required for kafka publisher")
	}
	if metrics == nil {
		return nil, fmt.Errorf("metrics are required for kafka publisher")
	}

	log = log.With(
		"component", "kafka_publisher",
		"client_id", cfg.ClientID,
		"service_type", cfg.ServiceType,
	)

	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Partitioner = sarama.NewHashPartitioner
	producerConfig.ClientID = cfg.ClientID
	producerConfig.Version = sarama.V3_6_0_0

	producer, err := sarama.NewSyncProducer(cfg.Brokers, producerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return newPublisher(producer, cfg, log, metrics, tracer), nil
}

// NewPublisher wraps an existing sync producer. Used by ConnectWithRetry
// and by tests that substitute a mock producer.
func NewPublisher(
	producer sarama.SyncProducer,
	cfg *Config,
	log *logger.Logger,
	metrics PublisherMetrics,
	tracer trace.Tracer,
) *Publisher {
	return newPublisher(producer, cfg, log, metrics, tracer)
}

func newPublisher(
	producer sarama.SyncProducer,
	cfg *Config,
	log *logger.Logger,
	metrics PublisherMetrics,
	tracer trace.Tracer,
) *Publisher {
	var limiter *common.RateLimiter
	if cfg.PublishRPS > 0 {
		burst := cfg.PublishBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = common.NewRateLimiter(cfg.PublishRPS, burst)
	}

	return &Publisher{
		producer:     producer,
		defaultTopic: cfg.DefaultTopic,
		topicMap:     cfg.TopicMap,
		limiter:      limiter,
		logger:       log,
		tracer:       tracer,
		metrics:      metrics,
	}
}

// Publish sends the envelope to the topic mapped for its event type,
// falling back to the default topic. The boolean result reports whether
// the bus accepted the envelope.
func (p *Publisher) Publish(ctx context.Context, event events.EventEnvelope) (bool, error) {
	topic, ok := p.topicMap[event.Type]
	if !ok {
		topic = p.defaultTopic
	}

	ctx, span := tracing.StartProducerSpan(ctx, topic, p.tracer)
	defer span.End()
	span.SetAttributes(
		attribute.String("event_type", string(event.Type)),
		attribute.String("event_id", event.ID),
	)

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			p.metrics.IncPublishError(ctx, topic)
			return false, fmt.Errorf("waiting for publish rate limiter: %w", err)
		}
	}

	msgBytes, err := json.Marshal(event)
	if err != nil {
		span.RecordError(err)
		p.metrics.IncPublishError(ctx, topic)
		return false, fmt.Errorf("failed to serialize envelope %s: %w", event.ID, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.Subject),
		Value: sarama.ByteEncoder(msgBytes),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
			{Key: []byte("data_version"), Value: []byte(event.DataVersion)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.metrics.IncPublishError(ctx, topic)
		return false, fmt.Errorf("failed to publish event %s to topic %s: %w", event.Type, topic, err)
	}

	span.SetAttributes(
		attribute.Int64("partition", int64(partition)),
		attribute.Int64("offset", offset),
	)
	span.SetStatus(codes.Ok, "event published")
	p.metrics.IncEventPublished(ctx, topic)

	p.logger.Debug(ctx, "event published",
		"event_type", event.Type,
		"event_id", event.ID,
		"topic", topic,
		"partition", partition,
		"offset", offset)

	return true, nil
}

// Close shuts down the underlying producer.
func (p *Publisher) Close() error { return p.producer.Close() }
