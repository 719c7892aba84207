package models

import (
	"github.com/google/uuid"
)

// Notification is a persisted message delivered to a user when an order
// changes state. Delivery beyond persistence is fire-and-forget.
type Notification struct {
	BaseModel
	SenderID   *uuid.UUID `gorm:"type:uuid" json:"sender_id"`
	ReceiverID uuid.UUID  `gorm:"type:uuid;index" json:"receiver_id"`
	Message    string     `json:"message"`
	IsRead     bool       `json:"is_read"`
}
