package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/shipping-api/internal/api"
	"github.com/wms-platform/shipping-api/internal/application"
	"github.com/wms-platform/shipping-api/internal/config"
	"github.com/wms-platform/shipping-api/internal/domain"
	"github.com/wms-platform/shipping-api/internal/events"
	"github.com/wms-platform/shipping-api/internal/infrastructure/kafka"
	"github.com/wms-platform/shipping-api/internal/infrastructure/memory"
	mongoStore "github.com/wms-platform/shipping-api/internal/infrastructure/mongodb"
	"github.com/wms-platform/shipping-api/internal/infrastructure/rabbitmq"
	"github.com/wms-platform/shipping-api/internal/worker"
	"github.com/wms-platform/shipping-api/pkg/logging"
	"github.com/wms-platform/shipping-api/pkg/metrics"
	"github.com/wms-platform/shipping-api/pkg/mongodb"
	"github.com/wms-platform/shipping-api/pkg/resilience"
	"github.com/wms-platform/shipping-api/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.DefaultConfig(config.ServiceName)).WithError(err).Error("Invalid configuration")
		os.Exit(1)
	}

	logConfig := logging.DefaultConfig(config.ServiceName)
	logConfig.Level = logging.LogLevel(cfg.Logging.Level)
	logger := logging.New(logConfig)
	logger.SetDefault()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.WithError(err).Error("shipping-api exited")
		os.Exit(1)
	}
}

// run wires the service and serves until ctx is cancelled. Everything it
// opens is closed before it returns, on the error paths too.
func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	logger.Info("Starting shipping-api",
		"store", cfg.Store.Driver,
		"channel", cfg.Channel.Driver,
	)

	// Initialize OpenTelemetry tracing
	tracingConfig := tracing.DefaultConfig(config.ServiceName)
	tracingConfig.Enabled = cfg.Tracing.Enabled
	tracingConfig.OTLPEndpoint = cfg.Tracing.OTLPEndpoint
	tracingConfig.SampleRate = cfg.Tracing.SampleRate
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		tracingConfig.Environment = env
	}

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		// Continue without tracing - don't exit
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
	}

	m := metrics.New(metrics.DefaultConfig(config.ServiceName))

	store, closeStore, err := newStore(ctx, cfg, m, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize shipment store: %w", err)
	}
	defer closeStore()

	service := application.NewShippingApplicationService(store, logger, application.WithMetrics(m))

	// The worker is started only after the store is known to be reachable
	var w *worker.Worker
	source, err := newSource(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to connect message channel: %w", err)
	}
	if source != nil {
		defer func() {
			if err := source.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close message channel")
			}
		}()

		w = worker.New(source, store, events.MustNewTranslator(), logger,
			worker.Config{DeterministicIDs: cfg.Sync.DeterministicIDs},
			mongodb.GenerateIDString,
			worker.WithMetrics(m),
		)
		// the worker outlives ctx; Stop ends it during shutdown
		if err := w.Start(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("failed to start worker: %w", err)
		}

		go func() {
			<-w.Done()
			if err := w.Err(); err != nil {
				// the API keeps serving; events are no longer applied
				logger.WithError(err).Error("Synchronization worker stopped", "queue", source.Queue())
			}
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := api.NewRouter(api.RouterConfig{
		ServiceName: config.ServiceName,
		Service:     service,
		Logger:      logger,
		Metrics:     m,
		Tracing:     cfg.Tracing.Enabled,
	})
	if err != nil {
		stopWorker(w, logger, cfg.Server.ShutdownTimeout)
		return fmt.Errorf("failed to build router: %w", err)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	logger.Info("Server started", "addr", cfg.Server.Addr)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down...")
	case err := <-serveErr:
		runErr = fmt.Errorf("server error: %w", err)
	}

	stopWorker(w, logger, cfg.Server.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
	return runErr
}

func stopWorker(w *worker.Worker, logger *logging.Logger, timeout time.Duration) {
	if w == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := w.Stop(ctx); err != nil && !errors.Is(err, worker.ErrNotStarted) {
		logger.WithError(err).Warn("Worker did not stop cleanly")
	}
}

func newStore(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *logging.Logger) (domain.ShipmentStore, func(), error) {
	if cfg.Store.Driver == config.StoreMemory {
		logger.Warn("Using in-memory shipment store; data is lost on restart")
		return memory.NewShipmentStore(), func() {}, nil
	}

	client, err := mongodb.NewClient(ctx, &mongodb.Config{
		URI:            cfg.MongoDB.URI,
		Database:       cfg.MongoDB.Database,
		ConnectTimeout: cfg.MongoDB.ConnectTimeout,
		MaxPoolSize:    cfg.MongoDB.MaxPoolSize,
		MinPoolSize:    cfg.MongoDB.MinPoolSize,
	}, resilience.DefaultRetryConfig())
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			logger.WithError(err).Warn("Failed to close MongoDB client")
		}
	}

	store, err := mongoStore.NewShipmentStore(ctx, client, cfg.MongoDB.Collection, m, logger)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	logger.Info("Connected to MongoDB", "database", cfg.MongoDB.Database, "collection", cfg.MongoDB.Collection)
	return store, closeFn, nil
}

// newSource returns nil when no channel is configured
func newSource(ctx context.Context, cfg *config.Config, logger *logging.Logger) (worker.Source, error) {
	switch cfg.Channel.Driver {
	case config.ChannelRabbitMQ:
		rmq := rabbitmq.Config{
			URL:      cfg.RabbitMQ.AMQPURL(),
			Queue:    cfg.RabbitMQ.Queue,
			Prefetch: cfg.RabbitMQ.Prefetch,
		}
		if cfg.RabbitMQ.DeadLetterEnabled() {
			rmq.DeadLetterExchange = cfg.RabbitMQ.DeadLetterExchange
			rmq.DeadLetterRoutingKey = cfg.RabbitMQ.DeadLetterRoutingKey
		}
		source, err := rabbitmq.NewSource(ctx, rmq, logger, resilience.DefaultRetryConfig())
		if err != nil {
			return nil, err
		}
		logger.Info("Connected to RabbitMQ", "queue", rmq.Queue, "rejectPolicy", cfg.RabbitMQ.RejectPolicy)
		return source, nil

	case config.ChannelKafka:
		kcfg := kafka.DefaultConfig()
		kcfg.Brokers = cfg.Kafka.Brokers
		kcfg.Topic = cfg.Kafka.Topic
		kcfg.ConsumerGroup = cfg.Kafka.ConsumerGroup
		source, err := kafka.NewSource(kcfg, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Kafka consumer initialized", "brokers", kcfg.Brokers, "topic", kcfg.Topic)
		return source, nil

	default:
		logger.Warn("No message channel configured; shipments are only written through the API")
		return nil, nil
	}
}
