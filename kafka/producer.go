package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"catalog-svc/config"
	"catalog-svc/middleware"
	"catalog-svc/models"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func InitProducer(cfg config.KafkaConfig, logger *zap.Logger) (sarama.SyncProducer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer([]string{cfg.Broker}, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.Info("Kafka producer initialized", zap.String("broker", cfg.Broker))
	return producer, nil
}

// Publisher sends product events to a single topic, keyed by product id so
// that events for one product stay on one partition.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

func NewPublisher(producer sarama.SyncProducer, topic string, logger *zap.Logger) *Publisher {
	return &Publisher{producer: producer, topic: topic, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, event models.ProductEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	carrier := make(producerCarrier, 0)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)

	msg := &sarama.ProducerMessage{
		Topic:   p.topic,
		Key:     sarama.StringEncoder(strconv.Itoa(event.ProductID)),
		Value:   sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader(carrier),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.Info("Event published",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("topic", p.topic),
		zap.String("event_type", event.EventType),
		zap.Int("product_id", event.ProductID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// NoopPublisher drops every event. It is used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, models.ProductEvent) error { return nil }
