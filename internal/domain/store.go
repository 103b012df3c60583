package domain

import "context"

// ShipmentStore is the durable collection of shipments.
// Every operation is atomic per record; there are no multi-record transactions.
type ShipmentStore interface {
	// List returns every shipment, in no guaranteed order
	List(ctx context.Context) ([]*Shipment, error)

	// GetByID returns the shipment or an error wrapping ErrShipmentNotFound
	GetByID(ctx context.Context, id string) (*Shipment, error)

	// Insert adds a new shipment. An existing id yields ErrDuplicateID and leaves the stored record untouched.
	Insert(ctx context.Context, shipment *Shipment) error

	// ReplaceByID overwrites every field of the record with the given id.
	// A missing record yields ErrShipmentNotFound.
	ReplaceByID(ctx context.Context, id string, shipment *Shipment) error

	// DeleteByID removes the record and reports whether one existed
	DeleteByID(ctx context.Context, id string) (bool, error)

	// DeleteFirstByOrderID removes at most one record with the given orderId
	// and reports whether one existed
	DeleteFirstByOrderID(ctx context.Context, orderID string) (bool, error)

	// Ping reports whether the backing storage is reachable
	Ping(ctx context.Context) error
}
