package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/segmentio/kafka-go"
	"github.com/wms-platform/shipping-api/internal/worker"
	"github.com/wms-platform/shipping-api/pkg/logging"
)

// messageReader is the subset of *kafka.Reader the source uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Source reads the topic through a consumer group and commits offsets manually.
// Kafka has no per-message requeue, so a rejected message is committed too and
// skipped, which is the drop policy.
type Source struct {
	reader messageReader
	config Config
	logger *logging.Logger

	closeOnce sync.Once
}

var _ worker.Source = (*Source)(nil)

// NewSource creates a consumer group reader for cfg.Topic
func NewSource(cfg Config, logger *logging.Logger) (*Source, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.ConsumerGroup,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  cfg.MaxWait,
		// commits are synchronous so an acked message is never fetched again
		CommitInterval: 0,
	})
	return newSource(reader, cfg, logger), nil
}

func newSource(reader messageReader, cfg Config, logger *logging.Logger) *Source {
	return &Source{
		reader: reader,
		config: cfg,
		logger: logger.WithComponent("kafka-source"),
	}
}

func (s *Source) Queue() string {
	return s.config.Topic
}

// Deliveries fetches messages until ctx is done or the reader is closed
func (s *Source) Deliveries(ctx context.Context) (<-chan worker.Delivery, error) {
	out := make(chan worker.Delivery)

	go func() {
		defer close(out)
		s.logger.Info("Starting consumer for topic", "topic", s.config.Topic, "group", s.config.ConsumerGroup)

		for {
			msg, err := s.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if errors.Is(err, io.EOF) {
					s.logger.Warn("Reader closed", "topic", s.config.Topic)
					return
				}
				s.logger.Error("Error fetching message", "topic", s.config.Topic, "error", err.Error())
				continue
			}

			select {
			case out <- &delivery{msg: msg, reader: s.reader}:
			case <-ctx.Done():
				// uncommitted, so the group delivers it again
				return
			}
		}
	}()

	return out, nil
}

func (s *Source) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if cerr := s.reader.Close(); cerr != nil {
			err = fmt.Errorf("failed to close reader for topic %s: %w", s.config.Topic, cerr)
		}
	})
	return err
}

type delivery struct {
	msg    kafka.Message
	reader messageReader
}

func (d *delivery) Body() []byte {
	return d.msg.Value
}

// MessageID is the message key
func (d *delivery) MessageID() string {
	return string(d.msg.Key)
}

func (d *delivery) Headers() map[string]string {
	out := make(map[string]string, len(d.msg.Headers))
	for _, h := range d.msg.Headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

func (d *delivery) Ack(ctx context.Context) error {
	return d.reader.CommitMessages(ctx, d.msg)
}

func (d *delivery) Reject(ctx context.Context) error {
	return d.reader.CommitMessages(ctx, d.msg)
}
