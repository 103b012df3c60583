package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/wms-platform/shipping-api/pkg/logging"
	"github.com/wms-platform/shipping-api/pkg/metrics"
	"github.com/wms-platform/shipping-api/pkg/resilience"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedCollection wraps a MongoDB collection with a circuit breaker,
// metrics and tracing. Every call goes through the breaker; only errors that
// mean the server is unreachable count against it.
type InstrumentedCollection struct {
	collection *mongo.Collection
	name       string
	database   string
	breaker    *resilience.CircuitBreaker
	metrics    *metrics.Metrics
	logger     *logging.Logger
	tracer     trace.Tracer
}

// NewInstrumentedCollection wraps the named collection of client. m and logger may be nil.
func NewInstrumentedCollection(client *Client, name string, m *metrics.Metrics, logger *logging.Logger) *InstrumentedCollection {
	cbConfig := resilience.DefaultCircuitBreakerConfig("mongodb-" + name)
	cbConfig.IsSuccessful = func(err error) bool { return !IsUnavailable(err) }

	var observer resilience.StateObserver
	if m != nil {
		observer = m
	}
	cbLogger := logger
	if cbLogger == nil {
		cbLogger = logging.NewNop()
	}

	return &InstrumentedCollection{
		collection: client.Collection(name),
		name:       name,
		database:   client.DatabaseName(),
		breaker:    resilience.NewCircuitBreaker(cbConfig, cbLogger.Logger, observer),
		metrics:    m,
		logger:     logger,
		tracer:     otel.Tracer("mongodb"),
	}
}

func (c *InstrumentedCollection) startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "mongodb."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemMongoDB,
			semconv.DBNameKey.String(c.database),
			semconv.DBOperationKey.String(operation),
			attribute.String("db.collection", c.name),
		),
	)
}

func (c *InstrumentedCollection) recordMetrics(ctx context.Context, operation string, success bool, duration time.Duration, rowsAffected int64) {
	if c.metrics != nil {
		c.metrics.RecordMongoDBOperation(c.name, operation, success, duration)
	}
	if c.logger != nil {
		c.logger.DatabaseQuery(ctx, c.name, operation, duration, success, rowsAffected)
	}
}

// run executes fn inside a span and the breaker. rows extracts the affected
// row count from a successful result. expected marks errors that are normal
// outcomes (no documents, duplicate key) so they don't mark the span as failed.
func (c *InstrumentedCollection) run(ctx context.Context, operation string, fn func(ctx context.Context) (any, error), rows func(any) int64, expected func(error) bool) (any, error) {
	start := time.Now()
	ctx, span := c.startSpan(ctx, operation)
	defer span.End()

	result, err := c.breaker.Execute(ctx, fn)
	duration := time.Since(start)

	success := err == nil || (expected != nil && expected(err))
	var rowsAffected int64
	if err == nil && rows != nil {
		rowsAffected = rows(result)
	}
	c.recordMetrics(ctx, operation, success, duration, rowsAffected)

	if success {
		span.SetStatus(codes.Ok, "")
		span.SetAttributes(attribute.Int64("db.rows_affected", rowsAffected))
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return result, err
}

// InsertOne inserts a single document
func (c *InstrumentedCollection) InsertOne(ctx context.Context, document any) error {
	_, err := c.run(ctx, "insertOne",
		func(ctx context.Context) (any, error) { return c.collection.InsertOne(ctx, document) },
		func(any) int64 { return 1 },
		IsDuplicateKey,
	)
	return err
}

// FindOne decodes the first document matching filter into out.
// Returns mongo.ErrNoDocuments when nothing matches.
func (c *InstrumentedCollection) FindOne(ctx context.Context, filter any, out any) error {
	_, err := c.run(ctx, "findOne",
		func(ctx context.Context) (any, error) {
			return nil, c.collection.FindOne(ctx, filter).Decode(out)
		},
		func(any) int64 { return 1 },
		isNoDocuments,
	)
	return err
}

// FindAll decodes every document matching filter into out, which must be a pointer to a slice
func (c *InstrumentedCollection) FindAll(ctx context.Context, filter any, out any, opts ...*options.FindOptions) error {
	_, err := c.run(ctx, "find",
		func(ctx context.Context) (any, error) {
			cursor, err := c.collection.Find(ctx, filter, opts...)
			if err != nil {
				return nil, err
			}
			defer cursor.Close(ctx)
			return nil, cursor.All(ctx, out)
		},
		nil,
		nil,
	)
	return err
}

// ReplaceOne replaces the first document matching filter
func (c *InstrumentedCollection) ReplaceOne(ctx context.Context, filter any, replacement any) (*mongo.UpdateResult, error) {
	result, err := c.run(ctx, "replaceOne",
		func(ctx context.Context) (any, error) { return c.collection.ReplaceOne(ctx, filter, replacement) },
		func(r any) int64 { return r.(*mongo.UpdateResult).ModifiedCount },
		IsDuplicateKey,
	)
	if err != nil {
		return nil, err
	}
	return result.(*mongo.UpdateResult), nil
}

// DeleteOne deletes the first document matching filter
func (c *InstrumentedCollection) DeleteOne(ctx context.Context, filter any) (*mongo.DeleteResult, error) {
	result, err := c.run(ctx, "deleteOne",
		func(ctx context.Context) (any, error) { return c.collection.DeleteOne(ctx, filter) },
		func(r any) int64 { return r.(*mongo.DeleteResult).DeletedCount },
		nil,
	)
	if err != nil {
		return nil, err
	}
	return result.(*mongo.DeleteResult), nil
}

// EnsureIndexes creates the given indexes if they don't exist
func (c *InstrumentedCollection) EnsureIndexes(ctx context.Context, models []mongo.IndexModel) error {
	_, err := c.run(ctx, "createIndexes",
		func(ctx context.Context) (any, error) { return c.collection.Indexes().CreateMany(ctx, models) },
		func(any) int64 { return int64(len(models)) },
		nil,
	)
	return err
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
