package domain

// Events emitted through the outbox when a journal entry is appended.

type OrderCommitted struct {
	OrderID   string `json:"order_id"`
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type OrderRejected struct {
	OrderID   string `json:"order_id"`
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	Reason    string `json:"reason"`
}

const (
	EventOrderCommitted = "OrderCommitted"
	EventOrderRejected  = "OrderRejected"
)
