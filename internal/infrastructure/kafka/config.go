// Package kafka carries shipping lifecycle messages over a Kafka topic.
package kafka

import "time"

// DefaultTopic mirrors the rabbitmq queue name
const DefaultTopic = "shipping"

// Config holds Kafka configuration
type Config struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string

	// Consumer settings
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration

	// Producer settings
	BatchTimeout time.Duration
	RequiredAcks int // 0: no ack, 1: leader ack, -1: all replicas ack
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Brokers:       []string{"localhost:9092"},
		Topic:         DefaultTopic,
		ConsumerGroup: "shipping-api",

		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  500 * time.Millisecond,

		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: -1,
	}
}
