package models

// Event type tags used by the dispatcher registry and the ledger.
const OrderPlacedEventType = "order.placed"

// OrderPlacedEvent is published when an order is successfully placed.
// It is the wire format on the broker as well as the ledger payload, so
// it must stay JSON-stable.
type OrderPlacedEvent struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	OrderID   int64 `json:"order_id"`
}
