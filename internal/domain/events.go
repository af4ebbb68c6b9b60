package domain

import "time"

// OrderCreatedMessage is published to the orders exchange when placement
// commits.
type OrderCreatedMessage struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	TokenNumber int       `json:"token_number"`
	OutletID    string    `json:"outlet_id"`
	TotalAmount float64   `json:"total_amount"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// StatusChangedMessage is published after a successful status transition.
type StatusChangedMessage struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	TokenNumber int       `json:"token_number"`
	OutletID    string    `json:"outlet_id"`
	OldStatus   Status    `json:"old_status"`
	NewStatus   Status    `json:"new_status"`
	ChangedAt   time.Time `json:"changed_at"`
}
