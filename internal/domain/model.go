package domain

import "time"

// Outlet is owned by the surrounding application; the coordinator only
// needs identity and the activity flag.
type Outlet struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Active bool   `json:"active" yaml:"active"`
}

type OrderItem struct {
	ItemID    string  `json:"item_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type Client struct {
	ID       string `json:"id"`
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// Order is created once at placement and mutated only through validated
// status transitions. Client.ID is the partition key in the backing store.
type Order struct {
	ID          string      `json:"id"`
	OrderNumber string      `json:"order_number"`
	TokenNumber int         `json:"token_number"`
	OutletID    string      `json:"outlet_id"`
	Items       []OrderItem `json:"items"`
	TotalAmount float64     `json:"total_amount"`
	Status      Status      `json:"status"`
	EstWaitMins int         `json:"estimated_wait_mins"`
	CreatedAt   time.Time   `json:"created_at"`
	Client      Client      `json:"client"`
}

// Counter holds the last issued token for one outlet. It is mutated only
// through the docstore's atomic conditional write.
type Counter struct {
	OutletID  string `json:"outlet_id"`
	LastToken int    `json:"last_token"`
}
