package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"catalog-svc/config"
	"catalog-svc/middleware"
	"catalog-svc/models"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const maxHandleAttempts = 3

// Invalidator drops cached state for a product. The Redis product cache
// satisfies it.
type Invalidator interface {
	DeleteProduct(ctx context.Context, id int) error
	InvalidateLists(ctx context.Context) error
}

func InitConsumer(cfg config.KafkaConfig, logger *zap.Logger) (sarama.Consumer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Retry.Backoff = 1 * time.Second

	consumer, err := sarama.NewConsumer([]string{cfg.Broker}, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	logger.Info("Kafka consumer initialized", zap.String("broker", cfg.Broker))
	return consumer, nil
}

// EventHandler keeps the product cache coherent with writes made by other
// catalog instances that share the topic.
type EventHandler struct {
	cache   Invalidator
	logger  *zap.Logger
	backoff time.Duration
}

func NewEventHandler(cache Invalidator, logger *zap.Logger) *EventHandler {
	return &EventHandler{cache: cache, logger: logger, backoff: time.Second}
}

// StartConsumer reads every partition of the topic until ctx is cancelled.
// Each instance sees the whole stream, so no consumer group is used: events
// keyed by product id land on any partition and every cache must hear them.
func StartConsumer(ctx context.Context, consumer sarama.Consumer, topic string, h *EventHandler) error {
	partitions, err := consumer.Partitions(topic)
	if err != nil {
		return fmt.Errorf("failed to list partitions: %w", err)
	}

	partitionConsumers := make([]sarama.PartitionConsumer, 0, len(partitions))
	defer func() {
		for _, pc := range partitionConsumers {
			pc.Close()
		}
	}()
	for _, partition := range partitions {
		pc, err := consumer.ConsumePartition(topic, partition, sarama.OffsetNewest)
		if err != nil {
			return fmt.Errorf("failed to consume partition %d: %w", partition, err)
		}
		partitionConsumers = append(partitionConsumers, pc)
	}

	h.logger.Info("Kafka consumer started",
		zap.String("topic", topic),
		zap.Int("partitions", len(partitions)),
	)

	var wg sync.WaitGroup
	for _, pc := range partitionConsumers {
		wg.Add(1)
		go func(pc sarama.PartitionConsumer) {
			defer wg.Done()
			h.consume(ctx, pc)
		}(pc)
	}
	wg.Wait()

	h.logger.Info("Kafka consumer stopped", zap.String("topic", topic))
	return nil
}

func (h *EventHandler) consume(ctx context.Context, pc sarama.PartitionConsumer) {
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-pc.Messages():
			if !ok {
				return
			}
			if err := h.HandleWithRetry(ctx, message); err != nil {
				h.logger.Error("Failed to handle message after retries",
					zap.Int32("partition", message.Partition),
					zap.Int64("offset", message.Offset),
					zap.Error(err),
				)
			}
		case err, ok := <-pc.Errors():
			if ok {
				h.logger.Error("Kafka consumer error", zap.Error(err))
			}
		}
	}
}

// HandleWithRetry retries transient failures with a linear backoff. Malformed
// messages are not retried; a cancelled ctx stops waiting between attempts.
func (h *EventHandler) HandleWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	var lastErr error
	for attempt := 1; attempt <= maxHandleAttempts; attempt++ {
		err := h.Handle(message)
		if err == nil {
			return nil
		}
		var decodeErr *decodeError
		if errors.As(err, &decodeErr) {
			return err
		}
		lastErr = err
		if attempt < maxHandleAttempts {
			backoff := time.Duration(attempt) * h.backoff
			h.logger.Warn("Retrying message handling",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry abandoned after %d attempts: %w", attempt, ctx.Err())
			case <-timer.C:
			}
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", maxHandleAttempts, lastErr)
}

// decodeError marks a message that will never succeed on retry.
type decodeError struct{ err error }

func (e *decodeError) Error() string { return "failed to unmarshal event: " + e.err.Error() }

func (e *decodeError) Unwrap() error { return e.err }

func (h *EventHandler) Handle(message *sarama.ConsumerMessage) error {
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), consumerCarrier(message.Headers))

	ctx, span := otel.Tracer("catalog-service").Start(ctx, "ProcessProductEvent")
	defer span.End()

	var event models.ProductEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		span.RecordError(err)
		return &decodeError{err: err}
	}

	span.SetAttributes(
		attribute.String("event.type", event.EventType),
		attribute.Int("product.id", event.ProductID),
	)

	traceID := middleware.GetTraceID(ctx)
	h.logger.Info("Received event",
		zap.String("trace_id", traceID),
		zap.String("event_type", event.EventType),
		zap.Int("product_id", event.ProductID),
	)

	switch event.EventType {
	case models.EventProductUpdated, models.EventProductDeleted:
		if err := h.cache.DeleteProduct(ctx, event.ProductID); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to drop cached product %d: %w", event.ProductID, err)
		}
		fallthrough
	case models.EventProductCreated:
		if err := h.cache.InvalidateLists(ctx); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to invalidate product lists: %w", err)
		}
	default:
		h.logger.Debug("Unknown event type", zap.String("event_type", event.EventType))
	}

	return nil
}
