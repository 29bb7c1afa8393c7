package models

import "time"

const (
	EventProductCreated = "product_created"
	EventProductUpdated = "product_updated"
	EventProductDeleted = "product_deleted"
)

// ProductEvent is published after every successful catalog write.
type ProductEvent struct {
	EventType  string    `json:"event_type"`
	ProductID  int       `json:"product_id"`
	Product    *Product  `json:"product,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
