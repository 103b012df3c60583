// Package config loads shipping-api settings from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServiceName identifies the service in logs, metrics and traces
const ServiceName = "shipping-api"

// Store drivers
const (
	StoreMongoDB = "mongodb"
	StoreMemory  = "memory"
)

// Channel drivers
const (
	ChannelRabbitMQ = "rabbitmq"
	ChannelKafka    = "kafka"
	// ChannelNone runs the HTTP API without a synchronization worker
	ChannelNone = "none"
)

// Reject policies
const (
	RejectDrop       = "drop"
	RejectDeadLetter = "dead-letter"
)

// Config holds application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	MongoDB  MongoDBConfig  `yaml:"mongodb"`
	Channel  ChannelConfig  `yaml:"channel"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Sync     SyncConfig     `yaml:"sync"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
}

type MongoDBConfig struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	Collection     string        `yaml:"collection"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	MaxPoolSize    uint64        `yaml:"maxPoolSize"`
	MinPoolSize    uint64        `yaml:"minPoolSize"`
}

type ChannelConfig struct {
	Driver string `yaml:"driver"`
}

// RabbitMQConfig accepts either a full URL or the individual connection parts
type RabbitMQConfig struct {
	URL                  string `yaml:"url"`
	Host                 string `yaml:"host"`
	Port                 int    `yaml:"port"`
	User                 string `yaml:"user"`
	Password             string `yaml:"password"`
	VHost                string `yaml:"vhost"`
	Queue                string `yaml:"queue"`
	RejectPolicy         string `yaml:"rejectPolicy"`
	DeadLetterExchange   string `yaml:"deadLetterExchange"`
	DeadLetterRoutingKey string `yaml:"deadLetterRoutingKey"`
	Prefetch             int    `yaml:"prefetch"`
}

type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	ConsumerGroup string   `yaml:"consumerGroup"`
}

type SyncConfig struct {
	// DeterministicIDs derives event-created shipment ids from message ids
	DeterministicIDs bool `yaml:"deterministicIds"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	SampleRate   float64 `yaml:"sampleRate"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{Driver: StoreMongoDB},
		MongoDB: MongoDBConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "shipping",
			Collection:     "shippings",
			ConnectTimeout: 10 * time.Second,
			MaxPoolSize:    100,
			MinPoolSize:    10,
		},
		Channel: ChannelConfig{Driver: ChannelRabbitMQ},
		RabbitMQ: RabbitMQConfig{
			Host:         "localhost",
			Port:         5672,
			User:         "guest",
			Password:     "guest",
			VHost:        "/",
			Queue:        "shipping",
			RejectPolicy: RejectDrop,
			Prefetch:     1,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			Topic:         "shipping",
			ConsumerGroup: ServiceName,
		},
		Sync:    SyncConfig{DeterministicIDs: true},
		Logging: LoggingConfig{Level: "info"},
		Tracing: TracingConfig{
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// Load builds the configuration from defaults, the file named by CONFIG_FILE
// and environment overrides, then validates it
func Load() (*Config, error) {
	return load(os.Getenv, os.ReadFile)
}

func load(getenv func(string) string, readFile func(string) ([]byte, error)) (*Config, error) {
	cfg := Default()

	if path := getenv("CONFIG_FILE"); path != "" {
		data, err := readFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	setString("SERVER_ADDR", &c.Server.Addr)
	setString("STORE_DRIVER", &c.Store.Driver)
	setString("MONGODB_URI", &c.MongoDB.URI)
	setString("MONGODB_DATABASE", &c.MongoDB.Database)
	setString("SHIPPING_COLLECTION", &c.MongoDB.Collection)
	setString("CHANNEL_DRIVER", &c.Channel.Driver)
	setString("RABBITMQ_URL", &c.RabbitMQ.URL)
	setString("RABBITMQ_HOST", &c.RabbitMQ.Host)
	setString("RABBITMQ_USER", &c.RabbitMQ.User)
	setString("RABBITMQ_PASSWORD", &c.RabbitMQ.Password)
	setString("RABBITMQ_VHOST", &c.RabbitMQ.VHost)
	setString("RABBITMQ_QUEUE", &c.RabbitMQ.Queue)
	setString("REJECT_POLICY", &c.RabbitMQ.RejectPolicy)
	setString("DEAD_LETTER_EXCHANGE", &c.RabbitMQ.DeadLetterExchange)
	setString("DEAD_LETTER_ROUTING_KEY", &c.RabbitMQ.DeadLetterRoutingKey)
	setString("KAFKA_TOPIC", &c.Kafka.Topic)
	setString("KAFKA_CONSUMER_GROUP", &c.Kafka.ConsumerGroup)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Tracing.OTLPEndpoint)

	if v := getenv("RABBITMQ_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RABBITMQ_PORT %q: %w", v, err)
		}
		c.RabbitMQ.Port = port
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := getenv("TRACING_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid TRACING_ENABLED %q: %w", v, err)
		}
		c.Tracing.Enabled = enabled
	}
	if v := getenv("SYNC_DETERMINISTIC_IDS"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SYNC_DETERMINISTIC_IDS %q: %w", v, err)
		}
		c.Sync.DeterministicIDs = enabled
	}
	return nil
}

// Validate rejects unknown drivers and policies and incomplete settings
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMongoDB:
		if c.MongoDB.URI == "" || c.MongoDB.Database == "" || c.MongoDB.Collection == "" {
			return fmt.Errorf("mongodb store requires uri, database and collection")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Channel.Driver {
	case ChannelRabbitMQ:
		if c.RabbitMQ.Queue == "" {
			return fmt.Errorf("rabbitmq channel requires a queue")
		}
		switch c.RabbitMQ.RejectPolicy {
		case RejectDrop:
		case RejectDeadLetter:
			if c.RabbitMQ.DeadLetterExchange == "" {
				return fmt.Errorf("reject policy %q requires a dead-letter exchange", RejectDeadLetter)
			}
		default:
			return fmt.Errorf("unknown reject policy %q", c.RabbitMQ.RejectPolicy)
		}
	case ChannelKafka:
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			return fmt.Errorf("kafka channel requires brokers and a topic")
		}
		if c.RabbitMQ.RejectPolicy == RejectDeadLetter {
			return fmt.Errorf("reject policy %q is not supported on kafka", RejectDeadLetter)
		}
	case ChannelNone:
	default:
		return fmt.Errorf("unknown channel driver %q", c.Channel.Driver)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	return nil
}

// AMQPURL returns the configured URL, or one assembled from host, port, user, password and vhost
func (r RabbitMQConfig) AMQPURL() string {
	if r.URL != "" {
		return r.URL
	}
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(r.User, r.Password),
		Host:   fmt.Sprintf("%s:%d", r.Host, r.Port),
		Path:   "/" + strings.TrimPrefix(r.VHost, "/"),
	}
	if r.VHost == "/" || r.VHost == "" {
		u.Path = "/"
	}
	return u.String()
}

// DeadLetterEnabled reports whether rejected messages go to a dead-letter queue
func (r RabbitMQConfig) DeadLetterEnabled() bool {
	return r.RejectPolicy == RejectDeadLetter
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
