package rabbitmq

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wms-platform/shipping-api/internal/worker"
	"github.com/wms-platform/shipping-api/pkg/logging"
	"github.com/wms-platform/shipping-api/pkg/resilience"
)

// Source consumes the shipping queue with manual acknowledgment
type Source struct {
	client      *client
	config      Config
	logger      *logging.Logger
	consumerTag string

	closeOnce sync.Once
}

var _ worker.Source = (*Source)(nil)

// NewSource connects to the broker and declares the queue topology
func NewSource(ctx context.Context, cfg Config, logger *logging.Logger, retry *resilience.RetryConfig) (*Source, error) {
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}

	c, err := dial(ctx, cfg.URL, retry)
	if err != nil {
		return nil, err
	}
	if err := c.declareTopology(cfg); err != nil {
		_ = c.close()
		return nil, err
	}
	// One unacked message at a time matches the worker's sequential processing
	if err := c.chn.Qos(cfg.Prefetch, 0, false); err != nil {
		_ = c.close()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	return &Source{
		client:      c,
		config:      cfg,
		logger:      logger.WithComponent("rabbitmq-source"),
		consumerTag: "shipping-api-" + uuid.NewString()[:8],
	}, nil
}

func (s *Source) Queue() string {
	return s.config.Queue
}

// Deliveries starts a consumer on the queue. The returned channel closes when
// ctx is done or the broker connection is lost.
func (s *Source) Deliveries(ctx context.Context) (<-chan worker.Delivery, error) {
	msgs, err := s.client.chn.Consume(
		s.config.Queue,
		s.consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume %s: %w", s.config.Queue, err)
	}

	out := make(chan worker.Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				if err := s.client.chn.Cancel(s.consumerTag, false); err != nil && err != amqp.ErrClosed {
					s.logger.Warn("Failed to cancel consumer", "error", err.Error())
				}
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- &delivery{msg: msg}:
				case <-ctx.Done():
					// not handed to the worker; the broker redelivers it once the channel closes
					return
				}
			}
		}
	}()

	return out, nil
}

// Close closes the channel and connection. Unacked messages return to the queue.
func (s *Source) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.client.close() })
	return err
}

type delivery struct {
	msg amqp.Delivery
}

func (d *delivery) Body() []byte {
	return d.msg.Body
}

func (d *delivery) MessageID() string {
	return d.msg.MessageId
}

// Headers returns the string-valued AMQP headers
func (d *delivery) Headers() map[string]string {
	out := make(map[string]string, len(d.msg.Headers))
	for k, v := range d.msg.Headers {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func (d *delivery) Ack(context.Context) error {
	return d.msg.Ack(false)
}

func (d *delivery) Reject(context.Context) error {
	return d.msg.Nack(false, false)
}
