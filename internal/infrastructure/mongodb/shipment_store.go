package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/wms-platform/shipping-api/internal/domain"
	"github.com/wms-platform/shipping-api/pkg/logging"
	"github.com/wms-platform/shipping-api/pkg/metrics"
	sharedMongo "github.com/wms-platform/shipping-api/pkg/mongodb"
	"github.com/wms-platform/shipping-api/pkg/resilience"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// DefaultCollection is the collection shipments live in unless configured otherwise
const DefaultCollection = "shippings"

type ShipmentStore struct {
	client     *sharedMongo.Client
	collection *sharedMongo.InstrumentedCollection
}

var _ domain.ShipmentStore = (*ShipmentStore)(nil)

// NewShipmentStore binds the store to collectionName and ensures its indexes exist
func NewShipmentStore(ctx context.Context, client *sharedMongo.Client, collectionName string, m *metrics.Metrics, logger *logging.Logger) (*ShipmentStore, error) {
	if collectionName == "" {
		collectionName = DefaultCollection
	}

	s := &ShipmentStore{
		client:     client,
		collection: sharedMongo.NewInstrumentedCollection(client, collectionName, m, logger),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ShipmentStore) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "orderId", Value: 1}}},
	}
	if err := s.collection.EnsureIndexes(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create shipment indexes: %w", mapError(err))
	}
	return nil
}

func (s *ShipmentStore) List(ctx context.Context) ([]*domain.Shipment, error) {
	shipments := make([]*domain.Shipment, 0)
	if err := s.collection.FindAll(ctx, bson.M{}, &shipments); err != nil {
		return nil, fmt.Errorf("failed to list shipments: %w", mapError(err))
	}
	return shipments, nil
}

func (s *ShipmentStore) GetByID(ctx context.Context, id string) (*domain.Shipment, error) {
	var shipment domain.Shipment
	err := s.collection.FindOne(ctx, bson.M{"_id": id}, &shipment)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("shipment %s: %w", id, domain.ErrShipmentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shipment %s: %w", id, mapError(err))
	}
	return &shipment, nil
}

func (s *ShipmentStore) Insert(ctx context.Context, shipment *domain.Shipment) error {
	if err := s.collection.InsertOne(ctx, shipment); err != nil {
		return fmt.Errorf("failed to insert shipment %s: %w", shipment.ID, mapError(err))
	}
	return nil
}

// ReplaceByID overwrites the document with _id = id. The written document is
// always keyed by id, whatever shipment.ID holds.
func (s *ShipmentStore) ReplaceByID(ctx context.Context, id string, shipment *domain.Shipment) error {
	replacement := shipment.Clone()
	replacement.ID = id

	result, err := s.collection.ReplaceOne(ctx, bson.M{"_id": id}, replacement)
	if err != nil {
		return fmt.Errorf("failed to replace shipment %s: %w", id, mapError(err))
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("shipment %s: %w", id, domain.ErrShipmentNotFound)
	}
	return nil
}

func (s *ShipmentStore) DeleteByID(ctx context.Context, id string) (bool, error) {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to delete shipment %s: %w", id, mapError(err))
	}
	return result.DeletedCount > 0, nil
}

// DeleteFirstByOrderID removes the first document, in natural order, with the given orderId
func (s *ShipmentStore) DeleteFirstByOrderID(ctx context.Context, orderID string) (bool, error) {
	result, err := s.collection.DeleteOne(ctx, bson.M{"orderId": orderID})
	if err != nil {
		return false, fmt.Errorf("failed to delete shipment for order %s: %w", orderID, mapError(err))
	}
	return result.DeletedCount > 0, nil
}

func (s *ShipmentStore) Ping(ctx context.Context) error {
	if err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mongodb ping: %w", mapError(err))
	}
	return nil
}

// mapError translates driver and breaker errors into domain sentinels.
// The driver error stays in the chain for logging.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case sharedMongo.IsDuplicateKey(err):
		return errors.Join(domain.ErrDuplicateID, err)
	case errors.Is(err, resilience.ErrCircuitOpen), sharedMongo.IsUnavailable(err):
		return errors.Join(domain.ErrStorageUnavailable, err)
	default:
		return err
	}
}
