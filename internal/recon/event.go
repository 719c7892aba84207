package recon

import (
	"context"

	"github.com/google/uuid"

	"github.com/example/ustabor/internal/models"
)

// StatusChange reports a transaction status transition explicitly, so the
// caller never needs to diff pre/post-save state.
type StatusChange struct {
	Previous models.TransactionStatus
	New      models.TransactionStatus
}

// Changed reports whether the transition actually moved the status.
func (c StatusChange) Changed() bool {
	return c.Previous != c.New
}

// IntentKind names a side effect the engine wants performed after a
// transition. The engine never executes side effects itself.
type IntentKind string

const (
	IntentOrderPaid     IntentKind = "order_paid"
	IntentOrderCanceled IntentKind = "order_canceled"
)

// Intent is a side-effect request emitted alongside a transition. Delivery
// is fire-and-forget and happens outside the engine's locking scope.
type Intent struct {
	Kind     IntentKind
	OrderID  uuid.UUID
	ClientID uuid.UUID
	Amount   int64
}

// Dispatcher delivers side-effect intents. Implementations must not block
// the webhook path; failures are logged, never surfaced to the gateway.
type Dispatcher interface {
	Dispatch(ctx context.Context, intents ...Intent)
}

// Result is returned by every mutating engine operation.
type Result struct {
	Txn     *models.Transaction
	Change  StatusChange
	Intents []Intent
}
