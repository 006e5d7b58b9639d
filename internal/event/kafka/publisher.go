package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/carpentries/pretix/internal/event"
)

// Publisher writes order events to a Kafka topic. Messages are keyed by
// order id so consumers see per-order ordering.
type Publisher struct {
	logger *zap.Logger
	writer *kafka.Writer
	topic  string
}

func NewPublisher(logger *zap.Logger, brokers []string, topic string) *Publisher {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	return &Publisher{
		logger: logger,
		writer: writer,
		topic:  topic,
	}
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func (p *Publisher) PublishOrderConfirmed(ctx context.Context, evt event.OrderConfirmed) error {
	payload := map[string]any{
		"event_id":    uuid.New().String(),
		"event_type":  "order.confirmed",
		"occurred_at": time.Now().UTC().Format(time.RFC3339),
		"order":       evt,
	}

	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal order confirmed event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(evt.OrderID),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("publish order confirmed event",
			zap.Error(err),
			zap.String("topic", p.topic),
			zap.String("order_id", evt.OrderID),
		)
		return err
	}

	p.logger.Info("order confirmed event published",
		zap.String("topic", p.topic),
		zap.String("order_id", evt.OrderID),
	)
	return nil
}
