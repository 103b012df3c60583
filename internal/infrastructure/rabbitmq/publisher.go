package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wms-platform/shipping-api/internal/events"
	"github.com/wms-platform/shipping-api/pkg/resilience"
	"github.com/wms-platform/shipping-api/pkg/tracing"
)

// Publisher sends lifecycle events to the shipping queue
type Publisher struct {
	client *client
	config Config
}

// NewPublisher connects to the broker. An existing queue is used as declared;
// a missing one is declared with the topology in cfg.
func NewPublisher(ctx context.Context, cfg Config, retry *resilience.RetryConfig) (*Publisher, error) {
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}

	c, err := dial(ctx, cfg.URL, retry)
	if err != nil {
		return nil, err
	}
	if err := c.ensureQueue(cfg); err != nil {
		_ = c.close()
		return nil, err
	}
	return &Publisher{client: c, config: cfg}, nil
}

// Publish sends msg as a persistent JSON message with the given message id
func (p *Publisher) Publish(ctx context.Context, messageID string, msg events.Message) error {
	body, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return p.PublishRaw(ctx, messageID, body)
}

// PublishRaw sends body unchanged
func (p *Publisher) PublishRaw(ctx context.Context, messageID string, body []byte) error {
	carrier := tracing.MapCarrier{}
	tracing.InjectTraceContext(ctx, carrier)
	headers := make(amqp.Table, len(carrier))
	for k, v := range carrier {
		headers[k] = v
	}

	err := p.client.chn.PublishWithContext(
		ctx,
		"",             // default exchange
		p.config.Queue, // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Headers:      headers,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.config.Queue, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.client.close()
}
