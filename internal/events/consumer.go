package events

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/rsclabs/valve-backend/internal/logger"
)

// Reconciler applies monitor records to the deployment and contract state.
type Reconciler interface {
	HandleOnchainEvent(ctx context.Context, record OnchainTransactionRecord) error
	HandleRelayerEvent(ctx context.Context, record RelayerTransactionRecord) error
}

// ConsumerConfig wires the two monitor streams.
type ConsumerConfig struct {
	Brokers      []string
	GroupID      string
	OnchainTopic string
	RelayerTopic string
}

// Consumer reads the on-chain and relay monitor topics and hands each
// record to the reconciler. Offsets commit only after the reconciler
// returns, so redelivery is possible and the reconciler must stay
// idempotent.
type Consumer struct {
	group  sarama.ConsumerGroup
	config ConsumerConfig
	codec  Codec
	rec    Reconciler
	log    *logger.Logger
}

func NewConsumer(config ConsumerConfig, rec Reconciler, log *logger.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_6_0_0
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(config.Brokers, config.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}
	return &Consumer{
		group:  group,
		config: config,
		codec:  NewJSONCodec(),
		rec:    rec,
		log:    log,
	}, nil
}

// Run consumes until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	topics := []string{c.config.OnchainTopic, c.config.RelayerTopic}
	handler := &consumerHandler{consumer: c}
	for {
		if err := c.group.Consume(ctx, topics, handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("consumer session failed", "error", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type consumerHandler struct {
	consumer *Consumer
}

func (h *consumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	c := h.consumer
	for message := range claim.Messages() {
		if err := c.dispatch(session.Context(), message); err != nil {
			c.log.Error("failed to process record",
				"topic", message.Topic,
				"partition", message.Partition,
				"offset", message.Offset,
				"error", err,
			)
		}
		session.MarkMessage(message, "")
	}
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, message *sarama.ConsumerMessage) error {
	switch message.Topic {
	case c.config.OnchainTopic:
		var record OnchainTransactionRecord
		if err := c.codec.Decode(message.Value, &record); err != nil {
			return err
		}
		return c.rec.HandleOnchainEvent(ctx, record)
	case c.config.RelayerTopic:
		var record RelayerTransactionRecord
		if err := c.codec.Decode(message.Value, &record); err != nil {
			return err
		}
		return c.rec.HandleRelayerEvent(ctx, record)
	default:
		return fmt.Errorf("unexpected topic %s", message.Topic)
	}
}
