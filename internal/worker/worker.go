// Package worker consumes shipping lifecycle messages and applies them to the shipment store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wms-platform/shipping-api/internal/domain"
	"github.com/wms-platform/shipping-api/internal/events"
	"github.com/wms-platform/shipping-api/pkg/logging"
	"github.com/wms-platform/shipping-api/pkg/metrics"
	"github.com/wms-platform/shipping-api/pkg/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrAlreadyStarted = errors.New("worker already started")
	ErrNotStarted     = errors.New("worker not started")
	// ErrChannelClosed means the source stopped delivering while the worker was still running
	ErrChannelClosed = errors.New("delivery channel closed")
)

// messageIDNamespace seeds the UUIDv5 ids derived from message ids
var messageIDNamespace = uuid.MustParse("3b0d6c1e-8f3a-5c55-9e0f-6a2d7f1b4c90")

// MetricsSource labels shipments created or deleted by the worker
const MetricsSource = "event"

// Config controls how the worker builds shipments
type Config struct {
	// DeterministicIDs derives the id of created shipments from the message id,
	// so a redelivered Create collides with the record it already produced.
	DeterministicIDs bool
}

// Worker is the single consumer of a Source. It processes one message at a
// time: translate, apply to the store, then ack or reject.
type Worker struct {
	source     Source
	store      domain.ShipmentStore
	translator *events.Translator
	logger     *logging.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	config     Config

	newID          func() string
	trackingNumber domain.TrackingNumberGenerator
	now            func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	loopErr error
}

// Option customizes a Worker
type Option func(*Worker)

// WithIDGenerator sets the generator for ids of shipments created without a message id
func WithIDGenerator(fn func() string) Option {
	return func(w *Worker) { w.newID = fn }
}

// WithTrackingNumberGenerator sets the tracking number generator
func WithTrackingNumberGenerator(fn domain.TrackingNumberGenerator) Option {
	return func(w *Worker) { w.trackingNumber = fn }
}

// WithClock sets the time source for shippingDate
func WithClock(fn func() time.Time) Option {
	return func(w *Worker) { w.now = fn }
}

// WithMetrics records per-message metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// New creates a stopped worker. Call Start to begin consuming.
func New(source Source, store domain.ShipmentStore, translator *events.Translator, logger *logging.Logger, config Config, newID func() string, opts ...Option) *Worker {
	w := &Worker{
		source:         source,
		store:          store,
		translator:     translator,
		logger:         logger.WithComponent("worker"),
		tracer:         otel.Tracer("shipping-worker"),
		config:         config,
		newID:          newID,
		trackingNumber: domain.DefaultTrackingNumberGenerator,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start subscribes to the source and launches the consume loop. A worker
// whose loop has ended, through Stop or channel loss, can be started again.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running() {
		return ErrAlreadyStarted
	}
	if w.cancel != nil {
		// loop already ended on channel loss
		w.cancel()
	}

	runCtx, cancel := context.WithCancel(ctx)
	deliveries, err := w.source.Deliveries(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start consuming %s: %w", w.source.Queue(), err)
	}

	w.cancel = cancel
	w.done = make(chan struct{})
	w.loopErr = nil

	go w.run(runCtx, deliveries, w.done)

	w.logger.Info("Worker started", "queue", w.source.Queue())
	return nil
}

// Stop ends consumption and waits for the in-flight message to settle or ctx
// to expire. A message abandoned by an expired ctx is redelivered by the broker.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if cancel == nil {
		return ErrNotStarted
	}
	cancel()

	select {
	case <-done:
		w.mu.Lock()
		if w.done == done {
			w.cancel = nil
		}
		w.mu.Unlock()
		w.logger.Info("Worker stopped", "queue", w.source.Queue())
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker did not stop in time: %w", ctx.Err())
	}
}

// running reports whether a consume loop is live. Callers hold w.mu.
func (w *Worker) running() bool {
	if w.done == nil {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Done is closed when the consume loop returns. Nil before Start.
func (w *Worker) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

// Err reports why the consume loop ended: nil after Stop, ErrChannelClosed
// if the source went away.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loopErr
}

func (w *Worker) run(ctx context.Context, deliveries <-chan Delivery, done chan struct{}) {
	defer close(done)

	// Messages are processed outside the loop's cancellation so Stop lets the
	// current one finish instead of failing it halfway.
	processCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() == nil {
					w.logger.Error("Delivery channel closed, worker exiting", "queue", w.source.Queue())
					w.mu.Lock()
					w.loopErr = ErrChannelClosed
					w.mu.Unlock()
				}
				return
			}
			w.Process(processCtx, d)
		}
	}
}

// Process runs one delivery through translate, apply and settle. It never
// panics and never returns an error: every failure becomes a rejection.
func (w *Worker) Process(ctx context.Context, d Delivery) Outcome {
	start := time.Now()
	queue := w.source.Queue()
	messageID := d.MessageID()

	if messageID != "" {
		ctx = logging.ContextWithMessageID(ctx, messageID)
	}
	if hc, ok := d.(HeaderCarrier); ok {
		ctx = tracing.ExtractTraceContext(ctx, tracing.MapCarrier(hc.Headers()))
	}
	ctx, span := w.tracer.Start(ctx, "worker.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(tracing.MessagingSpanAttributes("shipping", queue, "process")...),
		trace.WithAttributes(attribute.String("messaging.message.id", messageID)),
	)
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		ctx = logging.ContextWithTraceID(ctx, traceID)
	}

	w.logger.MessageConsume(ctx, queue, messageID, len(d.Body()))

	outcome, operation, applyErr := w.handle(ctx, d)

	var settleErr error
	if outcome.Acked() {
		settleErr = d.Ack(ctx)
	} else {
		settleErr = d.Reject(ctx)
	}

	duration := time.Since(start)
	span.SetAttributes(
		attribute.String("shipping.operation", operation),
		attribute.String("shipping.outcome", string(outcome)),
	)
	tracing.EndSpan(span, errors.Join(applyErr, settleErr))

	if applyErr != nil {
		w.logger.WithContext(ctx).Warn("Message not applied",
			"queue", queue,
			"operation", operation,
			"outcome", string(outcome),
			"error", applyErr.Error(),
		)
	}
	if settleErr != nil {
		w.logger.WithContext(ctx).Error("Failed to settle message",
			"queue", queue,
			"outcome", string(outcome),
			"error", settleErr.Error(),
		)
	}
	w.logger.MessageOutcome(ctx, queue, messageID, string(outcome), outcome.Acked(), duration)
	if w.metrics != nil {
		w.metrics.RecordMessage(queue, operation, string(outcome), duration)
	}

	return outcome
}

func (w *Worker) handle(ctx context.Context, d Delivery) (outcome Outcome, operation string, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Panic(ctx, r)
			outcome = OutcomeRejectedApply
			err = fmt.Errorf("panic while processing message: %v", r)
		}
	}()

	result := w.translator.Translate(d.Body())
	operation = result.Operation()
	if !result.OK() {
		return OutcomeRejectedTranslation, operation, result.Failure
	}

	switch intent := result.Intent.(type) {
	case events.CreateIntent:
		intent.MessageID = d.MessageID()
		outcome, err = w.applyCreate(ctx, intent)
	case events.DeleteByOrderIntent:
		outcome, err = w.applyDelete(ctx, intent)
	default:
		outcome, err = OutcomeRejectedTranslation, fmt.Errorf("no handler for operation %q", operation)
	}
	return outcome, operation, err
}

func (w *Worker) applyCreate(ctx context.Context, intent events.CreateIntent) (Outcome, error) {
	id := w.shipmentID(intent.MessageID)
	shipment := domain.NewShipment(id, intent.OrderID, intent.UserID, intent.ShippingAddress, w.trackingNumber(), w.now())

	err := w.store.Insert(ctx, shipment)
	switch {
	case err == nil:
		w.logger.Audit(ctx, "create", "shipment", id, MetricsSource, map[string]any{"orderId": intent.OrderID})
		if w.metrics != nil {
			w.metrics.RecordShipmentCreated(MetricsSource)
		}
		return OutcomeCreated, nil
	case errors.Is(err, domain.ErrDuplicateID):
		w.logger.WithContext(ctx).Info("Create already applied", "shipmentId", id, "orderId", intent.OrderID)
		return OutcomeDuplicate, nil
	default:
		return OutcomeRejectedApply, fmt.Errorf("failed to create shipment for order %s: %w", intent.OrderID, err)
	}
}

func (w *Worker) applyDelete(ctx context.Context, intent events.DeleteByOrderIntent) (Outcome, error) {
	deleted, err := w.store.DeleteFirstByOrderID(ctx, intent.OrderID)
	if err != nil {
		return OutcomeRejectedApply, fmt.Errorf("failed to delete shipment for order %s: %w", intent.OrderID, err)
	}
	if !deleted {
		return OutcomeNothingToDelete, nil
	}

	w.logger.Audit(ctx, "delete", "shipment", "", MetricsSource, map[string]any{"orderId": intent.OrderID})
	if w.metrics != nil {
		w.metrics.RecordShipmentDeleted(MetricsSource)
	}
	return OutcomeDeleted, nil
}

func (w *Worker) shipmentID(messageID string) string {
	if w.config.DeterministicIDs && messageID != "" {
		return DeterministicID(w.source.Queue(), messageID)
	}
	return w.newID()
}

// DeterministicID derives a stable shipment id from a queue and message id
func DeterministicID(queue, messageID string) string {
	return uuid.NewSHA1(messageIDNamespace, []byte(queue+"/"+messageID)).String()
}
