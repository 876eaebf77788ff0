package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/trace"

	"github.com/clipwave/mediarelay/internal/domain/events"
	"github.com/clipwave/mediarelay/pkg/common/logger"
)

// BatchFunc receives a decoded batch of inbound envelopes. The relay wires
// the dispatcher's Dispatch here.
type BatchFunc func(ctx context.Context, batch []events.EventEnvelope) error

// ConsumerConfig contains settings for the inbound envelope consumer.
type ConsumerConfig struct {
	Brokers  []string
	Topics   []string
	GroupID  string
	ClientID string
}

// Consumer reads JSON event envelopes from the configured topics and hands
// them to a BatchFunc. It is the queue-trigger transport in front of the
// dispatcher; delivery retries and durability belong to the broker, not to
// this component.
type Consumer struct {
	group  sarama.ConsumerGroup
	topics []string
	handle BatchFunc

	logger *logger.Logger
	tracer trace.Tracer
}

// NewConsumerFromConfig creates a consumer group for the inbound topics.
// Consumer settings mirror the platform defaults: round-robin rebalancing,
// oldest offsets, automatic commits enabled since processing outcomes are
// reflected as new events rather than redelivery.
func NewConsumerFromConfig(cfg *ConsumerConfig, handle BatchFunc, log *logger.Logger, tracer trace.Tracer) (*Consumer, error) {
	if handle == nil {
		return nil, fmt.Errorf("batch handler is required for kafka consumer")
	}

	consumerConfig := sarama.NewConfig()
	consumerConfig.ClientID = cfg.ClientID
	consumerConfig.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	consumerConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	consumerConfig.Consumer.Group.Session.Timeout = 20 * time.Second
	consumerConfig.Consumer.Group.Heartbeat.Interval = 6 * time.Second
	consumerConfig.Version = sarama.V3_6_0_0

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &Consumer{
		group:  group,
		topics: cfg.Topics,
		handle: handle,
		logger: log.With("component", "kafka_consumer", "group_id", cfg.GroupID),
		tracer: tracer,
	}, nil
}

// Run consumes until ctx is canceled. Rebalances return from Consume and
// are re-entered automatically.
func (c *Consumer) Run(ctx context.Context) error {
	handler := &groupHandler{consumer: c}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.group.Consume(ctx, c.topics, handler); err != nil {
			return fmt.Errorf("consuming inbound events: %w", err)
		}
	}
}

// Close shuts down the consumer group.
func (c *Consumer) Close() error { return c.group.Close() }

type groupHandler struct {
	consumer *Consumer
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim decodes each message into an envelope and dispatches it as a
// single-envelope batch. Undecodable messages are logged and skipped; the
// push model has no way to reject a malformed envelope back to its sender.
func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	c := h.consumer
	for msg := range claim.Messages() {
		ctx := session.Context()

		var evt events.EventEnvelope
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			c.logger.Error(ctx, "dropping undecodable inbound message",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err)
			session.MarkMessage(msg, "")
			continue
		}

		if err := c.handle(ctx, []events.EventEnvelope{evt}); err != nil {
			c.logger.Error(ctx, "dispatch failed for inbound message",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"event_type", evt.Type,
				"error", err)
		}

		session.MarkMessage(msg, "")
	}
	return nil
}
