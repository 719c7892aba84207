package models

import (
	"github.com/google/uuid"
)

// PaymentType identifies the gateway a transaction belongs to.
type PaymentType string

const (
	PaymentTypeClick PaymentType = "click"
	PaymentTypePayme PaymentType = "payme"
)

// TransactionStatus is the internal payment attempt state. A transaction
// moves waiting -> processing -> confirmed, or is canceled from any
// non-terminal state. confirmed and canceled are terminal.
type TransactionStatus string

const (
	TransactionWaiting    TransactionStatus = "waiting"
	TransactionProcessing TransactionStatus = "processing"
	TransactionConfirmed  TransactionStatus = "confirmed"
	TransactionCanceled   TransactionStatus = "canceled"
)

// Payme numeric transaction states as reported over the merchant API.
const (
	StatePending         = 1
	StatePaid            = 2
	StatePendingCanceled = -1
	StatePaidCanceled    = -2
)

// Transaction is a payment attempt for a single order. At most one
// non-canceled transaction exists per order; a stale unconfirmed attempt is
// superseded when a new pay link is requested. All timing fields are unix
// milliseconds, zero meaning unset; perform_time and cancel_time are written
// once and never overwritten. Amount is in minor units (tiyin).
type Transaction struct {
	BaseModel
	Name        string            `json:"name"`
	UserID      uuid.UUID         `gorm:"type:uuid;index" json:"user_id"`
	OrderID     uuid.UUID         `gorm:"type:uuid;uniqueIndex" json:"order_id"`
	PaymentType PaymentType       `json:"payment_type"`
	Amount      int64             `json:"amount"`
	Status      TransactionStatus `gorm:"default:waiting" json:"status"`
	CreatedAtMS int64             `gorm:"column:created_at_ms" json:"created_at_ms"`
	PerformTime int64             `json:"perform_time"`
	CancelTime  int64             `json:"cancel_time"`
	State       int               `gorm:"default:1" json:"state"`
	Reason      *int              `json:"reason"`
	PaymeID     string            `gorm:"index" json:"payme_id"`
	PaymentID   string            `json:"payment_id"`
	PrepareID   string            `json:"prepare_id"`
}
