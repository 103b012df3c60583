package domain

import (
	"errors"
	"time"
)

// Store errors. Implementations wrap these so callers can match with errors.Is.
var (
	ErrDuplicateID        = errors.New("shipment with this id already exists")
	ErrShipmentNotFound   = errors.New("shipment not found")
	ErrStorageUnavailable = errors.New("shipment storage unavailable")
)

// Shipment is the record of one order's shipment
type Shipment struct {
	ID              string    `bson:"_id" json:"id"`
	OrderID         string    `bson:"orderId" json:"orderId"`
	UserID          string    `bson:"userId" json:"userId"`
	ShippingDate    time.Time `bson:"shippingDate" json:"shippingDate"`
	ShippingAddress string    `bson:"shippingAddress" json:"shippingAddress"`
	TrackingNumber  string    `bson:"trackingNumber" json:"trackingNumber"`
}

// NewShipment builds a shipment for an order being shipped now
func NewShipment(id, orderID, userID, address, trackingNumber string, now time.Time) *Shipment {
	return &Shipment{
		ID:              id,
		OrderID:         orderID,
		UserID:          userID,
		ShippingDate:    now.UTC(),
		ShippingAddress: address,
		TrackingNumber:  trackingNumber,
	}
}

// Clone returns a copy that shares no state with s
func (s *Shipment) Clone() *Shipment {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
