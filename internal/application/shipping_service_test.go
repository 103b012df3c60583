package application

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wms-platform/shipping-api/internal/domain"
	"github.com/wms-platform/shipping-api/internal/events"
	"github.com/wms-platform/shipping-api/internal/infrastructure/memory"
	"github.com/wms-platform/shipping-api/internal/worker"
	"github.com/wms-platform/shipping-api/pkg/errors"
	"github.com/wms-platform/shipping-api/pkg/logging"
	"github.com/wms-platform/shipping-api/pkg/metrics"
)

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func newTestService(store domain.ShipmentStore) *ShippingApplicationService {
	return NewShippingApplicationService(store, logging.NewNop(),
		WithIDGenerator(func() string { return "65f000000000000000000001" }),
		WithTrackingNumberGenerator(func() string { return "ABCDEF0123456789ABCD" }),
		WithClock(func() time.Time { return fixedNow }),
		WithMetrics(metrics.New(metrics.DefaultConfig("shipping-api-test"))),
	)
}

func assertCode(t *testing.T, err error, code string, status int) {
	t.Helper()
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
	assert.Equal(t, status, appErr.HTTPStatus)
}

func TestCreateShipment_AssignsIDDateAndTrackingNumber(t *testing.T) {
	svc := newTestService(memory.NewShipmentStore())
	ctx := context.Background()

	dto, err := svc.CreateShipment(ctx, CreateShipmentCommand{OrderID: "O1", UserID: "U1", ShippingAddress: "1 Main St"})
	require.NoError(t, err)

	assert.Equal(t, "65f000000000000000000001", dto.ID)
	assert.True(t, fixedNow.Equal(dto.ShippingDate))
	assert.Equal(t, "ABCDEF0123456789ABCD", dto.TrackingNumber)
	assert.Equal(t, domain.CarrierUnknown, dto.Carrier)

	got, err := svc.GetShipment(ctx, GetShipmentQuery{ShipmentID: dto.ID})
	require.NoError(t, err)
	assert.Equal(t, dto, got)
}

func TestCreateShipment_DuplicateIDIsConflict(t *testing.T) {
	store := memory.NewShipmentStore()
	svc := newTestService(store)
	ctx := context.Background()

	cmd := CreateShipmentCommand{ShipmentID: "S1", OrderID: "O1", UserID: "U1", ShippingAddress: "1 Main St"}
	_, err := svc.CreateShipment(ctx, cmd)
	require.NoError(t, err)

	cmd.OrderID = "O2"
	_, err = svc.CreateShipment(ctx, cmd)
	assertCode(t, err, errors.CodeConflict, http.StatusConflict)

	stored, err := store.GetByID(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "O1", stored.OrderID)
}

func TestUpdateShipment_ReplacesFully(t *testing.T) {
	store := memory.NewShipmentStore()
	svc := newTestService(store)
	ctx := context.Background()

	created, err := svc.CreateShipment(ctx, CreateShipmentCommand{ShipmentID: "S1", OrderID: "O1", UserID: "U1", ShippingAddress: "1 Main St"})
	require.NoError(t, err)

	later := fixedNow.Add(48 * time.Hour)
	updated, err := svc.UpdateShipment(ctx, UpdateShipmentCommand{
		ShipmentID:      "S1",
		OrderID:         "O9",
		UserID:          "U9",
		ShippingDate:    later,
		ShippingAddress: "9 Elm St",
	})
	require.NoError(t, err)

	got, err := svc.GetShipment(ctx, GetShipmentQuery{ShipmentID: created.ID})
	require.NoError(t, err)
	assert.Equal(t, updated, got)
	assert.Equal(t, "O9", got.OrderID)
	assert.Equal(t, "U9", got.UserID)
	assert.Equal(t, "9 Elm St", got.ShippingAddress)
	assert.True(t, later.Equal(got.ShippingDate))
	// not merged: the tracking number from the create is gone
	assert.Empty(t, got.TrackingNumber)
}

func TestUpdateShipment_BodyIDMustMatchPath(t *testing.T) {
	store := memory.NewShipmentStore()
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.CreateShipment(ctx, CreateShipmentCommand{ShipmentID: "S1", OrderID: "O1", UserID: "U1", ShippingAddress: "1 Main St"})
	require.NoError(t, err)

	_, err = svc.UpdateShipment(ctx, UpdateShipmentCommand{ShipmentID: "S1", BodyID: "S2", OrderID: "O2", UserID: "U1", ShippingAddress: "x"})
	assertCode(t, err, errors.CodeValidationError, http.StatusBadRequest)

	_, err = svc.UpdateShipment(ctx, UpdateShipmentCommand{ShipmentID: "S1", BodyID: "S1", OrderID: "O2", UserID: "U1", ShippingAddress: "x"})
	require.NoError(t, err)

	_, err = store.GetByID(ctx, "S2")
	assert.ErrorIs(t, err, domain.ErrShipmentNotFound)
}

func TestNotFound_UpdateAndDeleteDoNotMutate(t *testing.T) {
	store := memory.NewShipmentStore()
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.CreateShipment(ctx, CreateShipmentCommand{ShipmentID: "S1", OrderID: "O1", UserID: "U1", ShippingAddress: "1 Main St"})
	require.NoError(t, err)

	_, err = svc.UpdateShipment(ctx, UpdateShipmentCommand{ShipmentID: "missing", OrderID: "O2", UserID: "U2", ShippingAddress: "x"})
	assertCode(t, err, errors.CodeNotFound, http.StatusNotFound)

	deleted, err := svc.DeleteShipment(ctx, DeleteShipmentCommand{ShipmentID: "missing"})
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = svc.GetShipment(ctx, GetShipmentQuery{ShipmentID: "missing"})
	assertCode(t, err, errors.CodeNotFound, http.StatusNotFound)

	assert.Equal(t, 1, store.Len())
	stored, err := store.GetByID(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "O1", stored.OrderID)
}

func TestDeleteShipment(t *testing.T) {
	store := memory.NewShipmentStore()
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.CreateShipment(ctx, CreateShipmentCommand{ShipmentID: "S1", OrderID: "O1", UserID: "U1", ShippingAddress: "1 Main St"})
	require.NoError(t, err)

	deleted, err := svc.DeleteShipment(ctx, DeleteShipmentCommand{ShipmentID: "S1"})
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Zero(t, store.Len())
}

type unavailableStore struct {
	domain.ShipmentStore
}

func (unavailableStore) List(context.Context) ([]*domain.Shipment, error) {
	return nil, domain.ErrStorageUnavailable
}

func (unavailableStore) Insert(context.Context, *domain.Shipment) error {
	return domain.ErrStorageUnavailable
}

func TestStorageUnavailableIsServiceUnavailable(t *testing.T) {
	svc := newTestService(unavailableStore{ShipmentStore: memory.NewShipmentStore()})
	ctx := context.Background()

	_, err := svc.ListShipments(ctx)
	assertCode(t, err, errors.CodeServiceUnavailable, http.StatusServiceUnavailable)

	_, err = svc.CreateShipment(ctx, CreateShipmentCommand{OrderID: "O1", UserID: "U1", ShippingAddress: "x"})
	assertCode(t, err, errors.CodeServiceUnavailable, http.StatusServiceUnavailable)
}

func TestListShipments_EmptyIsNotNil(t *testing.T) {
	svc := newTestService(memory.NewShipmentStore())
	list, err := svc.ListShipments(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestApiAndEventRecordsAreIndistinguishable(t *testing.T) {
	store := memory.NewShipmentStore()
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.CreateShipment(ctx, CreateShipmentCommand{OrderID: "O-api", UserID: "U1", ShippingAddress: "1 Main St"})
	require.NoError(t, err)

	w := worker.New(queueSource{}, store, events.MustNewTranslator(), logging.NewNop(), worker.Config{},
		func() string { return "65f000000000000000000002" },
		worker.WithTrackingNumberGenerator(func() string { return "ABCDEF0123456789ABCD" }),
		worker.WithClock(func() time.Time { return fixedNow }),
	)
	outcome := w.Process(ctx, &eventDelivery{body: `{"Operation":"Create","OrderId":"O-event","UserId":"U1","ShippingAddress":"1 Main St"}`})
	require.Equal(t, worker.OutcomeCreated, outcome)

	list, err := svc.ListShipments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	fromAPI, fromEvent := *list[0], *list[1]
	assert.Equal(t, "O-api", fromAPI.OrderID)
	assert.Equal(t, "O-event", fromEvent.OrderID)

	// apart from identity, the two records carry the same shape and values
	fromAPI.ID, fromAPI.OrderID = "", ""
	fromEvent.ID, fromEvent.OrderID = "", ""
	assert.Equal(t, fromAPI, fromEvent)
}

type eventDelivery struct {
	body string
}

func (d *eventDelivery) Body() []byte                 { return []byte(d.body) }
func (d *eventDelivery) MessageID() string            { return "" }
func (d *eventDelivery) Ack(context.Context) error    { return nil }
func (d *eventDelivery) Reject(context.Context) error { return nil }

// queueSource is only asked for its name; Process is driven directly
type queueSource struct{}

func (queueSource) Deliveries(context.Context) (<-chan worker.Delivery, error) { return nil, nil }
func (queueSource) Queue() string                                              { return "shipping" }
func (queueSource) Close() error                                               { return nil }
