// Package memory provides an in-process ShipmentStore for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wms-platform/shipping-api/internal/domain"
)

type entry struct {
	shipment *domain.Shipment
	seq      uint64
}

// ShipmentStore keeps shipments in a map guarded by a RWMutex.
// Insertion order is tracked so DeleteFirstByOrderID removes the oldest match.
type ShipmentStore struct {
	mu      sync.RWMutex
	records map[string]entry
	nextSeq uint64
}

// NewShipmentStore returns an empty store
func NewShipmentStore() *ShipmentStore {
	return &ShipmentStore{records: make(map[string]entry)}
}

var _ domain.ShipmentStore = (*ShipmentStore)(nil)

// List returns copies of every shipment in insertion order
func (s *ShipmentStore) List(ctx context.Context) ([]*domain.Shipment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]entry, 0, len(s.records))
	for _, e := range s.records {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]*domain.Shipment, len(entries))
	for i, e := range entries {
		out[i] = e.shipment.Clone()
	}
	return out, nil
}

func (s *ShipmentStore) GetByID(ctx context.Context, id string) (*domain.Shipment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("shipment %s: %w", id, domain.ErrShipmentNotFound)
	}
	return e.shipment.Clone(), nil
}

func (s *ShipmentStore) Insert(ctx context.Context, shipment *domain.Shipment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[shipment.ID]; exists {
		return fmt.Errorf("shipment %s: %w", shipment.ID, domain.ErrDuplicateID)
	}
	s.nextSeq++
	s.records[shipment.ID] = entry{shipment: shipment.Clone(), seq: s.nextSeq}
	return nil
}

// ReplaceByID overwrites the record under id. The record keeps its original
// insertion position and is stored under id regardless of shipment.ID.
func (s *ShipmentStore) ReplaceByID(ctx context.Context, id string, shipment *domain.Shipment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[id]
	if !ok {
		return fmt.Errorf("shipment %s: %w", id, domain.ErrShipmentNotFound)
	}
	replacement := shipment.Clone()
	replacement.ID = id
	s.records[id] = entry{shipment: replacement, seq: e.seq}
	return nil
}

func (s *ShipmentStore) DeleteByID(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return false, nil
	}
	delete(s.records, id)
	return true, nil
}

func (s *ShipmentStore) DeleteFirstByOrderID(ctx context.Context, orderID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		firstID  string
		firstSeq uint64
		found    bool
	)
	for id, e := range s.records {
		if e.shipment.OrderID != orderID {
			continue
		}
		if !found || e.seq < firstSeq {
			firstID, firstSeq, found = id, e.seq, true
		}
	}
	if !found {
		return false, nil
	}
	delete(s.records, firstID)
	return true, nil
}

// Ping always succeeds
func (s *ShipmentStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored shipments
func (s *ShipmentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
