package events

import "encoding/json"

// Message is the wire shape of a shipping lifecycle event, as producers write it
type Message struct {
	Operation       string `json:"Operation"`
	UserID          string `json:"UserId,omitempty"`
	OrderID         string `json:"OrderId"`
	ShippingAddress string `json:"ShippingAddress,omitempty"`
}

// NewCreateMessage builds the Create event for an order
func NewCreateMessage(userID, orderID, address string) Message {
	return Message{Operation: OperationCreate, UserID: userID, OrderID: orderID, ShippingAddress: address}
}

// NewDeleteMessage builds the Delete event for an order
func NewDeleteMessage(orderID string) Message {
	return Message{Operation: OperationDelete, OrderID: orderID}
}

// Encode returns the JSON body of m
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}
