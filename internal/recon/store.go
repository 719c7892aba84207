package recon

import (
	"context"

	"github.com/google/uuid"

	"github.com/example/ustabor/internal/models"
)

// TransactionStore is the durable record of payment attempts. Lookups that
// match nothing return ErrNotFound. The engine serializes writes per order,
// so implementations only need plain reads and writes.
type TransactionStore interface {
	// TransactionByPaymeID resolves a transaction by the external id Payme
	// assigned in CreateTransaction.
	TransactionByPaymeID(ctx context.Context, paymeID string) (*models.Transaction, error)

	// TransactionByOrderID resolves the current payment attempt for an order.
	TransactionByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Transaction, error)

	// TransactionsInRange returns transactions with created_at_ms inside
	// [from, to], both in unix milliseconds.
	TransactionsInRange(ctx context.Context, from, to int64) ([]models.Transaction, error)

	// SaveTransaction persists transaction mutations.
	SaveTransaction(ctx context.Context, txn *models.Transaction) error

	// OrderByID loads the order a transaction belongs to.
	OrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)

	// SaveOrder persists order mutations.
	SaveOrder(ctx context.Context, order *models.Order) error
}
