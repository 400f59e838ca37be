package models

import "time"

// OrderStatusPlaced is the only status the core flow sets. Later states
// (confirmed, shipped, ...) belong to outer workflows.
const OrderStatusPlaced = "PLACED"

type Order struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Status    string    `json:"status"`
	OrderDate time.Time `json:"order_date"`
}
