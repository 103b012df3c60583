package application

import "time"

// CreateShipmentCommand represents the command to create a new shipment.
// ShippingDate and TrackingNumber are assigned by the service.
type CreateShipmentCommand struct {
	// ShipmentID is optional; one is generated when empty
	ShipmentID      string
	OrderID         string
	UserID          string
	ShippingAddress string
}

// UpdateShipmentCommand represents a full overwrite of an existing shipment
type UpdateShipmentCommand struct {
	// ShipmentID is the id from the request path
	ShipmentID string
	// BodyID is the id carried in the payload, if any. It must match ShipmentID.
	BodyID          string
	OrderID         string
	UserID          string
	ShippingDate    time.Time
	ShippingAddress string
	TrackingNumber  string
}

// GetShipmentQuery represents the query to get a shipment by ID
type GetShipmentQuery struct {
	ShipmentID string
}

// DeleteShipmentCommand represents the command to delete a shipment by ID
type DeleteShipmentCommand struct {
	ShipmentID string
}
