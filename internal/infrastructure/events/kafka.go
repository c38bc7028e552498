package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/davidleathers/deepguard-backend/internal/service/fraud"
)

// DecisionEventType is the event type header of published decisions
const DecisionEventType = "fraud.decision"

// messageWriter is the subset of *kafka.Writer used for publishing
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the decision publisher
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	ClientID     string
	WriteTimeout time.Duration
}

// KafkaPublisher writes decision events to one topic, keyed by request id
// so that all decisions of a request land on the same partition.
type KafkaPublisher struct {
	writer   messageWriter
	topic    string
	clientID string
	logger   *zap.Logger
	delivery *deliveryHealth
}

// NewKafkaPublisher returns nil when no brokers are configured.
func NewKafkaPublisher(cfg KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	if len(cfg.Brokers) == 0 {
		logger.Info("kafka disabled, decision events are not published")
		return nil
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
		ClientID:  cfg.ClientID,
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Transport:              &kafka.Transport{Dial: dialer.DialFunc, ClientID: cfg.ClientID},
	}

	logger.Info("kafka publisher initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic))

	return newKafkaPublisher(writer, cfg, logger)
}

func newKafkaPublisher(w messageWriter, cfg KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer:   w,
		topic:    cfg.Topic,
		clientID: cfg.ClientID,
		logger:   logger,
		delivery: newDeliveryHealth(deliveryStaleAfter),
	}
}

// PublishDecision writes one decision event.
func (p *KafkaPublisher) PublishDecision(ctx context.Context, event fraud.DecisionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal decision event: %w", err)
	}

	key := event.RequestID
	if key == "" {
		key = event.EventID.String()
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(DecisionEventType)},
			{Key: "kind", Value: []byte(event.Kind)},
			{Key: "producer", Value: []byte(p.clientID)},
		},
	}

	err = p.writer.WriteMessages(ctx, msg)
	p.delivery.observe(err)
	if err != nil {
		p.logger.Error("failed to write decision event",
			zap.String("topic", p.topic),
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("failed to send to kafka: %w", err)
	}
	return nil
}

// Health fails after repeated write errors or when writes have been
// failing for longer than the stale period.
func (p *KafkaPublisher) Health(context.Context) error {
	if err := p.delivery.check(); err != nil {
		return fmt.Errorf("kafka topic %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
