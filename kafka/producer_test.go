package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"catalog-svc/models"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	m.Run()
}

func producerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	return cfg
}

func spanContext(t *testing.T) context.Context {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	if err != nil {
		t.Fatalf("Failed to parse trace id: %v", err)
	}
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	if err != nil {
		t.Fatalf("Failed to parse span id: %v", err)
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestPublisher_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, producerConfig())
	defer producer.Close()

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "product_events" {
			t.Errorf("Expected topic product_events, got %s", msg.Topic)
		}

		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "42" {
			t.Errorf("Expected key 42, got %s", key)
		}

		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var event models.ProductEvent
		if err := json.Unmarshal(value, &event); err != nil {
			return err
		}
		if event.EventType != models.EventProductUpdated || event.ProductID != 42 {
			t.Errorf("Unexpected event payload: %+v", event)
		}

		carrier := producerCarrier(msg.Headers)
		if got := carrier.Get("traceparent"); got == "" {
			t.Error("Expected traceparent header to be injected")
		}
		return nil
	})

	publisher := NewPublisher(producer, "product_events", zaptest.NewLogger(t))
	err := publisher.Publish(spanContext(t), models.ProductEvent{
		EventType:  models.EventProductUpdated,
		ProductID:  42,
		OccurredAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestPublisher_PublishFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, producerConfig())
	defer producer.Close()

	producer.ExpectSendMessageAndFail(errors.New("broker unavailable"))

	publisher := NewPublisher(producer, "product_events", zaptest.NewLogger(t))
	err := publisher.Publish(context.Background(), models.ProductEvent{EventType: models.EventProductCreated, ProductID: 1})
	if err == nil {
		t.Error("Expected error, got nil")
	}
}

func TestProducerCarrier(t *testing.T) {
	carrier := make(producerCarrier, 0)
	carrier.Set("traceparent", "value")
	carrier.Set("baggage", "k=v")

	if got := carrier.Get("traceparent"); got != "value" {
		t.Errorf("Expected value, got %q", got)
	}
	if got := carrier.Get("missing"); got != "" {
		t.Errorf("Expected empty string, got %q", got)
	}
	if keys := carrier.Keys(); len(keys) != 2 {
		t.Errorf("Expected 2 keys, got %v", keys)
	}
}
