package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wms-platform/shipping-api/internal/domain"
	"github.com/wms-platform/shipping-api/internal/events"
	"github.com/wms-platform/shipping-api/internal/infrastructure/memory"
	"github.com/wms-platform/shipping-api/pkg/logging"
	"github.com/wms-platform/shipping-api/pkg/metrics"
	sharedtesting "github.com/wms-platform/shipping-api/pkg/testing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type fakeDelivery struct {
	body      []byte
	messageID string

	mu       sync.Mutex
	acked    int
	rejected int
}

func newDelivery(messageID, body string) *fakeDelivery {
	return &fakeDelivery{body: []byte(body), messageID: messageID}
}

func (d *fakeDelivery) Body() []byte      { return d.body }
func (d *fakeDelivery) MessageID() string { return d.messageID }

func (d *fakeDelivery) Ack(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acked++
	return nil
}

func (d *fakeDelivery) Reject(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rejected++
	return nil
}

func (d *fakeDelivery) settled() (acked, rejected int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acked, d.rejected
}

type fakeSource struct {
	ch     chan Delivery
	closed bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan Delivery, 16)}
}

func (s *fakeSource) Deliveries(context.Context) (<-chan Delivery, error) { return s.ch, nil }
func (s *fakeSource) Queue() string                                       { return "shipping" }
func (s *fakeSource) Close() error {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// failingStore wraps a store and fails or panics on demand
type failingStore struct {
	domain.ShipmentStore
	err      error
	panicMsg string
}

func (f *failingStore) Insert(ctx context.Context, s *domain.Shipment) error {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return f.err
	}
	return f.ShipmentStore.Insert(ctx, s)
}

func (f *failingStore) DeleteFirstByOrderID(ctx context.Context, orderID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.ShipmentStore.DeleteFirstByOrderID(ctx, orderID)
}

func newTestWorker(source Source, store domain.ShipmentStore) *Worker {
	seq := 0
	return New(source, store, events.MustNewTranslator(), logging.NewNop(), Config{DeterministicIDs: true},
		func() string {
			seq++
			return fmt.Sprintf("generated-%d", seq)
		},
		WithTrackingNumberGenerator(func() string { return "TRACK0000000001" }),
		WithClock(func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }),
		WithMetrics(metrics.New(metrics.DefaultConfig("shipping-api-test"))),
	)
}

const createO1 = `{"Operation":"Create","OrderId":"O1","UserId":"U1","ShippingAddress":"123 Main St"}`

func TestProcess_CreateIsIdempotentForRedelivery(t *testing.T) {
	store := memory.NewShipmentStore()
	w := newTestWorker(newFakeSource(), store)
	ctx := context.Background()

	first := newDelivery("msg-1", createO1)
	redelivered := newDelivery("msg-1", createO1)

	assert.Equal(t, OutcomeCreated, w.Process(ctx, first))
	assert.Equal(t, OutcomeDuplicate, w.Process(ctx, redelivered))

	assert.Equal(t, 1, store.Len())
	acked, rejected := first.settled()
	assert.Equal(t, 1, acked)
	assert.Zero(t, rejected)
	acked, rejected = redelivered.settled()
	assert.Equal(t, 1, acked)
	assert.Zero(t, rejected)

	got, err := store.GetByID(ctx, DeterministicID("shipping", "msg-1"))
	require.NoError(t, err)
	assert.Equal(t, "O1", got.OrderID)
	assert.Equal(t, "TRACK0000000001", got.TrackingNumber)
}

func TestProcess_CreateWithoutMessageIDUsesGenerator(t *testing.T) {
	store := memory.NewShipmentStore()
	w := newTestWorker(newFakeSource(), store)
	ctx := context.Background()

	assert.Equal(t, OutcomeCreated, w.Process(ctx, newDelivery("", createO1)))
	assert.Equal(t, OutcomeCreated, w.Process(ctx, newDelivery("", createO1)))

	assert.Equal(t, 2, store.Len())
	_, err := store.GetByID(ctx, "generated-1")
	assert.NoError(t, err)
}

func TestProcess_DeleteOfMissingOrderIsAcked(t *testing.T) {
	store := memory.NewShipmentStore()
	require.NoError(t, store.Insert(context.Background(), &domain.Shipment{ID: "keep", OrderID: "O2"}))
	w := newTestWorker(newFakeSource(), store)

	d := newDelivery("msg-2", `{"Operation":"Delete","OrderId":"O-missing"}`)
	assert.Equal(t, OutcomeNothingToDelete, w.Process(context.Background(), d))

	acked, rejected := d.settled()
	assert.Equal(t, 1, acked)
	assert.Zero(t, rejected)
	assert.Equal(t, 1, store.Len())
}

func TestProcess_UnknownOperationIsRejectedWithoutMutation(t *testing.T) {
	store := memory.NewShipmentStore()
	w := newTestWorker(newFakeSource(), store)
	ctx := context.Background()

	bad := newDelivery("msg-bad", `{"Operation":"Upsert","OrderId":"O1","UserId":"U1","ShippingAddress":"x"}`)
	assert.Equal(t, OutcomeRejectedTranslation, w.Process(ctx, bad))

	acked, rejected := bad.settled()
	assert.Zero(t, acked)
	assert.Equal(t, 1, rejected)
	assert.Zero(t, store.Len())

	good := newDelivery("msg-good", createO1)
	assert.Equal(t, OutcomeCreated, w.Process(ctx, good))
	assert.Equal(t, 1, store.Len())
}

func TestProcess_StoreFailureRejects(t *testing.T) {
	store := &failingStore{ShipmentStore: memory.NewShipmentStore(), err: domain.ErrStorageUnavailable}
	w := newTestWorker(newFakeSource(), store)

	create := newDelivery("m1", createO1)
	assert.Equal(t, OutcomeRejectedApply, w.Process(context.Background(), create))
	_, rejected := create.settled()
	assert.Equal(t, 1, rejected)

	del := newDelivery("m2", `{"Operation":"Delete","OrderId":"O1"}`)
	assert.Equal(t, OutcomeRejectedApply, w.Process(context.Background(), del))
	_, rejected = del.settled()
	assert.Equal(t, 1, rejected)
}

func TestProcess_PanicIsRecoveredAsRejection(t *testing.T) {
	store := &failingStore{ShipmentStore: memory.NewShipmentStore(), panicMsg: "boom"}
	w := newTestWorker(newFakeSource(), store)

	d := newDelivery("m1", createO1)
	assert.NotPanics(t, func() {
		assert.Equal(t, OutcomeRejectedApply, w.Process(context.Background(), d))
	})
	_, rejected := d.settled()
	assert.Equal(t, 1, rejected)
}

func TestWorker_EndToEndCreateThenDelete(t *testing.T) {
	source := newFakeSource()
	store := memory.NewShipmentStore()
	w := newTestWorker(source, store)
	ctx := context.Background()

	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	countO1 := func() int {
		list, err := store.List(ctx)
		require.NoError(t, err)
		n := 0
		for _, s := range list {
			if s.OrderID == "O1" {
				n++
			}
		}
		return n
	}

	create := newDelivery("e2e-1", createO1)
	source.ch <- create
	sharedtesting.AssertEventually(t, func() bool { a, _ := create.settled(); return a == 1 }, 2*time.Second, "create acked")
	assert.Equal(t, 1, countO1())

	del := newDelivery("e2e-2", `{"Operation":"Delete","OrderId":"O1"}`)
	source.ch <- del
	sharedtesting.AssertEventually(t, func() bool { a, _ := del.settled(); return a == 1 }, 2*time.Second, "delete acked")
	assert.Equal(t, 0, countO1())
}

func TestWorker_ContinuesAfterBadMessage(t *testing.T) {
	source := newFakeSource()
	store := memory.NewShipmentStore()
	w := newTestWorker(source, store)

	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	bad := newDelivery("b", `not json`)
	good := newDelivery("g", createO1)
	source.ch <- bad
	source.ch <- good

	sharedtesting.AssertEventually(t, func() bool { a, _ := good.settled(); return a == 1 }, 2*time.Second, "good message acked")
	_, rejected := bad.settled()
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 1, store.Len())
}

func TestWorker_Lifecycle(t *testing.T) {
	source := newFakeSource()
	w := newTestWorker(source, memory.NewShipmentStore())

	assert.ErrorIs(t, w.Stop(context.Background()), ErrNotStarted)

	require.NoError(t, w.Start(context.Background()))
	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, w.Stop(context.Background()))
	<-w.Done()
	assert.NoError(t, w.Err())
	assert.ErrorIs(t, w.Stop(context.Background()), ErrNotStarted)
}

func TestWorker_RestartAfterStop(t *testing.T) {
	source := newFakeSource()
	store := memory.NewShipmentStore()
	w := newTestWorker(source, store)

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop(context.Background()))

	require.NoError(t, w.Start(context.Background()), "a stopped worker starts again")
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	d := newDelivery("restart-1", createO1)
	source.ch <- d
	sharedtesting.AssertEventually(t, func() bool { a, _ := d.settled(); return a == 1 }, 2*time.Second, "message acked after restart")
	assert.Equal(t, 1, store.Len())
}

func TestWorker_ChannelLossEndsLoop(t *testing.T) {
	source := newFakeSource()
	w := newTestWorker(source, memory.NewShipmentStore())

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, source.Close())

	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after channel closed")
	}
	assert.True(t, errors.Is(w.Err(), ErrChannelClosed))
}

func TestOutcome_Acked(t *testing.T) {
	assert.True(t, OutcomeCreated.Acked())
	assert.True(t, OutcomeDuplicate.Acked())
	assert.True(t, OutcomeDeleted.Acked())
	assert.True(t, OutcomeNothingToDelete.Acked())
	assert.False(t, OutcomeRejectedTranslation.Acked())
	assert.False(t, OutcomeRejectedApply.Acked())
}

type headerDelivery struct {
	*fakeDelivery
	headers map[string]string
}

func (d *headerDelivery) Headers() map[string]string { return d.headers }

func TestProcess_ContinuesTraceFromHeaders(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prevProvider, prevPropagator := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
	})

	w := newTestWorker(newFakeSource(), memory.NewShipmentStore())
	d := &headerDelivery{
		fakeDelivery: newDelivery("traced", createO1),
		headers:      map[string]string{"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
	}
	assert.Equal(t, OutcomeCreated, w.Process(context.Background(), d))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "worker.process", spans[0].Name())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext().TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent().SpanID().String())
}
