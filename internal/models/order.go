package models

import (
	"github.com/google/uuid"
)

// OrderStatus tracks the order lifecycle. Payment confirmation moves an
// order from pending to paid; workers then take it through in_process to
// completed.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderInProcess OrderStatus = "in_process"
	OrderCompleted OrderStatus = "completed"
	OrderCanceled  OrderStatus = "canceled"
)

// Order is a client's request for a service, optionally assigned to a worker.
// Price is stored in minor units (tiyin).
type Order struct {
	BaseModel
	ClientID    uuid.UUID   `gorm:"type:uuid;index" json:"client_id"`
	Client      *User       `json:"client,omitempty"`
	WorkerID    *uuid.UUID  `gorm:"type:uuid;index" json:"worker_id"`
	Worker      *User       `json:"worker,omitempty"`
	ServiceID   uuid.UUID   `gorm:"type:uuid" json:"service_id"`
	Service     *Service    `json:"service,omitempty"`
	Price       int64       `json:"price"`
	Status      OrderStatus `gorm:"default:pending" json:"status"`
	Description string      `json:"description"`
}
