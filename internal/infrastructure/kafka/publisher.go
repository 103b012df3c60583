package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/wms-platform/shipping-api/internal/events"
	"github.com/wms-platform/shipping-api/pkg/tracing"
)

// Publisher writes lifecycle events to the topic, keyed by message id
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:  kafka.TCP(cfg.Brokers...),
			Topic: cfg.Topic,
			// same key, same partition
			Balancer:     &kafka.Hash{},
			BatchTimeout: cfg.BatchTimeout,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Async:        false,
		},
	}, nil
}

func (p *Publisher) Publish(ctx context.Context, messageID string, msg events.Message) error {
	body, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	headers := []kafka.Header{{Key: "content-type", Value: []byte("application/json")}}
	carrier := tracing.MapCarrier{}
	tracing.InjectTraceContext(ctx, carrier)
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(messageID),
		Value:   body,
		Headers: headers,
		Time:    time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.writer.Topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
