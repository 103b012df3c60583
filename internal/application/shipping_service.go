// Package application implements the shipment CRUD use cases behind the HTTP API.
package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/wms-platform/shipping-api/internal/domain"
	"github.com/wms-platform/shipping-api/pkg/errors"
	"github.com/wms-platform/shipping-api/pkg/logging"
	"github.com/wms-platform/shipping-api/pkg/metrics"
	"github.com/wms-platform/shipping-api/pkg/mongodb"
)

// MetricsSource labels shipments created or deleted through the API
const MetricsSource = "api"

// ShippingApplicationService handles shipping-related use cases
type ShippingApplicationService struct {
	store          domain.ShipmentStore
	logger         *logging.Logger
	metrics        *metrics.Metrics
	newID          func() string
	trackingNumber domain.TrackingNumberGenerator
	now            func() time.Time
}

// Option customizes a ShippingApplicationService
type Option func(*ShippingApplicationService)

// WithIDGenerator replaces the ObjectId generator for new shipments
func WithIDGenerator(fn func() string) Option {
	return func(s *ShippingApplicationService) { s.newID = fn }
}

func WithTrackingNumberGenerator(fn domain.TrackingNumberGenerator) Option {
	return func(s *ShippingApplicationService) { s.trackingNumber = fn }
}

func WithClock(fn func() time.Time) Option {
	return func(s *ShippingApplicationService) { s.now = fn }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ShippingApplicationService) { s.metrics = m }
}

// NewShippingApplicationService creates a new ShippingApplicationService
func NewShippingApplicationService(store domain.ShipmentStore, logger *logging.Logger, opts ...Option) *ShippingApplicationService {
	s := &ShippingApplicationService{
		store:          store,
		logger:         logger.WithComponent("shipping-service"),
		newID:          mongodb.GenerateIDString,
		trackingNumber: domain.DefaultTrackingNumberGenerator,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListShipments returns every stored shipment
func (s *ShippingApplicationService) ListShipments(ctx context.Context) ([]*ShipmentDTO, error) {
	shipments, err := s.store.List(ctx)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list shipments")
		return nil, toAppError(err, "list", "")
	}
	return ToShipmentDTOs(shipments), nil
}

// GetShipment retrieves a shipment by ID
func (s *ShippingApplicationService) GetShipment(ctx context.Context, query GetShipmentQuery) (*ShipmentDTO, error) {
	shipment, err := s.store.GetByID(ctx, query.ShipmentID)
	if err != nil {
		if !stderrors.Is(err, domain.ErrShipmentNotFound) {
			s.logger.WithContext(ctx).WithError(err).Error("Failed to get shipment", "shipmentId", query.ShipmentID)
		}
		return nil, toAppError(err, "get", query.ShipmentID)
	}
	return ToShipmentDTO(shipment), nil
}

// CreateShipment stores a new shipment shipped now with a fresh tracking number
func (s *ShippingApplicationService) CreateShipment(ctx context.Context, cmd CreateShipmentCommand) (*ShipmentDTO, error) {
	id := cmd.ShipmentID
	if id == "" {
		id = s.newID()
	}

	shipment := domain.NewShipment(id, cmd.OrderID, cmd.UserID, cmd.ShippingAddress, s.trackingNumber(), s.now())

	if err := s.store.Insert(ctx, shipment); err != nil {
		if !stderrors.Is(err, domain.ErrDuplicateID) {
			s.logger.WithContext(ctx).WithError(err).Error("Failed to create shipment", "shipmentId", id)
		}
		return nil, toAppError(err, "create", id)
	}

	s.logger.Audit(ctx, "create", "shipment", id, MetricsSource, map[string]any{"orderId": cmd.OrderID})
	if s.metrics != nil {
		s.metrics.RecordShipmentCreated(MetricsSource)
	}
	return ToShipmentDTO(shipment), nil
}

// UpdateShipment overwrites every field of an existing shipment. The path id
// is authoritative; a differing body id is rejected.
func (s *ShippingApplicationService) UpdateShipment(ctx context.Context, cmd UpdateShipmentCommand) (*ShipmentDTO, error) {
	if cmd.BodyID != "" && cmd.BodyID != cmd.ShipmentID {
		return nil, errors.ErrValidationWithFields("shipment id in body does not match path", map[string]string{
			"id": fmt.Sprintf("must be empty or equal to %s", cmd.ShipmentID),
		})
	}

	shipment := &domain.Shipment{
		ID:              cmd.ShipmentID,
		OrderID:         cmd.OrderID,
		UserID:          cmd.UserID,
		ShippingDate:    cmd.ShippingDate.UTC(),
		ShippingAddress: cmd.ShippingAddress,
		TrackingNumber:  cmd.TrackingNumber,
	}

	if err := s.store.ReplaceByID(ctx, cmd.ShipmentID, shipment); err != nil {
		if !stderrors.Is(err, domain.ErrShipmentNotFound) {
			s.logger.WithContext(ctx).WithError(err).Error("Failed to update shipment", "shipmentId", cmd.ShipmentID)
		}
		return nil, toAppError(err, "update", cmd.ShipmentID)
	}

	s.logger.Audit(ctx, "update", "shipment", cmd.ShipmentID, MetricsSource, nil)
	return ToShipmentDTO(shipment), nil
}

// DeleteShipment removes a shipment and reports whether it existed
func (s *ShippingApplicationService) DeleteShipment(ctx context.Context, cmd DeleteShipmentCommand) (bool, error) {
	deleted, err := s.store.DeleteByID(ctx, cmd.ShipmentID)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to delete shipment", "shipmentId", cmd.ShipmentID)
		return false, toAppError(err, "delete", cmd.ShipmentID)
	}
	if !deleted {
		return false, nil
	}

	s.logger.Audit(ctx, "delete", "shipment", cmd.ShipmentID, MetricsSource, nil)
	if s.metrics != nil {
		s.metrics.RecordShipmentDeleted(MetricsSource)
	}
	return true, nil
}

// Ping reports whether the store is reachable
func (s *ShippingApplicationService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// toAppError maps store errors onto the API error taxonomy
func toAppError(err error, operation, id string) error {
	switch {
	case stderrors.Is(err, domain.ErrShipmentNotFound):
		return errors.ErrNotFoundWithID("shipment", id).Wrap(err)
	case stderrors.Is(err, domain.ErrDuplicateID):
		return errors.ErrConflict(fmt.Sprintf("shipment %s already exists", id)).Wrap(err)
	case stderrors.Is(err, domain.ErrStorageUnavailable):
		return errors.ErrServiceUnavailable("shipment storage").Wrap(err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.ErrTimeout(operation + " shipment").Wrap(err)
	default:
		return errors.ErrInternal(fmt.Sprintf("failed to %s shipment", operation)).Wrap(err)
	}
}
