package application

import (
	"time"

	"github.com/wms-platform/shipping-api/internal/domain"
)

// ShipmentDTO represents a shipment in responses
type ShipmentDTO struct {
	ID              string    `json:"id"`
	OrderID         string    `json:"orderId"`
	UserID          string    `json:"userId"`
	ShippingDate    time.Time `json:"shippingDate"`
	ShippingAddress string    `json:"shippingAddress"`
	TrackingNumber  string    `json:"trackingNumber"`
	// Carrier is detected from the tracking number format
	Carrier     string `json:"carrier,omitempty"`
	TrackingURL string `json:"trackingUrl,omitempty"`
}

// ToShipmentDTO converts a domain Shipment to ShipmentDTO
func ToShipmentDTO(shipment *domain.Shipment) *ShipmentDTO {
	if shipment == nil {
		return nil
	}

	dto := &ShipmentDTO{
		ID:              shipment.ID,
		OrderID:         shipment.OrderID,
		UserID:          shipment.UserID,
		ShippingDate:    shipment.ShippingDate,
		ShippingAddress: shipment.ShippingAddress,
		TrackingNumber:  shipment.TrackingNumber,
	}
	if tn, err := domain.NewTrackingNumber(shipment.TrackingNumber); err == nil {
		dto.Carrier = tn.Carrier()
		dto.TrackingURL = tn.TrackingURL()
	}
	return dto
}

// ToShipmentDTOs converts a slice, never returning nil
func ToShipmentDTOs(shipments []*domain.Shipment) []*ShipmentDTO {
	dtos := make([]*ShipmentDTO, 0, len(shipments))
	for _, s := range shipments {
		dtos = append(dtos, ToShipmentDTO(s))
	}
	return dtos
}
