package recon

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/ustabor/internal/models"
)

// Engine is the reconciliation state machine. It owns every Transaction
// mutation: gateway adapters normalize webhook payloads and call the
// operations below, and the engine applies the transition under a per-order
// single-writer lock. The lock is held only for the read-modify-write, never
// across notification delivery.
//
// No operation retries internally. Gateways redeliver on timeout, and every
// operation is idempotent for an identical replay: the second call returns
// the same response without a second transition.
type Engine struct {
	store TransactionStore

	mu    sync.Mutex
	locks map[uuid.UUID]*orderLock

	now func() int64
}

// NewEngine builds an engine on top of a TransactionStore.
func NewEngine(store TransactionStore) *Engine {
	return &Engine{
		store: store,
		locks: make(map[uuid.UUID]*orderLock),
		now:   func() int64 { return time.Now().UnixMilli() },
	}
}

// orderLock is reference counted so entries can be evicted once no writer
// holds or waits on them.
type orderLock struct {
	mu   sync.Mutex
	refs int
}

// lockOrder acquires the single-writer token for an order and returns the
// release func. The map entry is freed when the last holder releases.
func (e *Engine) lockOrder(id uuid.UUID) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &orderLock{}
		e.locks[id] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, id)
		}
		e.mu.Unlock()
	}
}

// WithOrderLock runs fn while holding the order's single-writer token. Code
// outside the engine that replaces an order's payment attempt must run under
// this lock so it cannot interleave with a webhook's read-modify-write.
func (e *Engine) WithOrderLock(orderID uuid.UUID, fn func() error) error {
	unlock := e.lockOrder(orderID)
	defer unlock()
	return fn()
}

// Prepare handles Click's prepare action. The amount must equal the order
// price exactly, in minor units. A replay while the transaction is already
// processing is a no-op that reports success again.
func (e *Engine) Prepare(ctx context.Context, orderID uuid.UUID, externalID string, amount int64) (*Result, error) {
	unlock := e.lockOrder(orderID)
	defer unlock()

	txn, err := e.store.TransactionByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if txn.Amount != amount {
		return nil, ErrAmountMismatch
	}

	switch txn.Status {
	case models.TransactionConfirmed:
		return nil, ErrAlreadyPaid
	case models.TransactionCanceled:
		return nil, ErrTransactionCanceled
	case models.TransactionProcessing:
		// Duplicate delivery of the same prepare.
		return &Result{Txn: txn, Change: StatusChange{Previous: txn.Status, New: txn.Status}}, nil
	}

	change := StatusChange{Previous: txn.Status, New: models.TransactionProcessing}
	txn.Status = models.TransactionProcessing
	txn.PrepareID = externalID
	if err := e.store.SaveTransaction(ctx, txn); err != nil {
		return nil, err
	}

	return &Result{Txn: txn, Change: change}, nil
}

// Complete handles Click's complete action. A negative gateway error cancels
// the transaction instead of confirming it; the order is never marked paid
// on that path. On success the order mirrors the confirmation and the
// click_paydoc_id is recorded as the payment id.
func (e *Engine) Complete(ctx context.Context, orderID uuid.UUID, paymentID string, amount int64, gatewayError int) (*Result, error) {
	unlock := e.lockOrder(orderID)
	defer unlock()

	txn, err := e.store.TransactionByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if txn.Amount != amount {
		return nil, ErrAmountMismatch
	}

	if gatewayError < 0 {
		// The cancel result travels with the typed outcome so the adapter
		// can still dispatch the order_canceled intent.
		res, err := e.cancelLocked(ctx, txn, nil)
		if err != nil {
			return nil, err
		}
		return res, ErrTransactionCanceled
	}

	switch txn.Status {
	case models.TransactionCanceled:
		return nil, ErrTransactionCanceled
	case models.TransactionConfirmed:
		if txn.PaymentID == paymentID {
			// Duplicate delivery of the same complete.
			return &Result{Txn: txn, Change: StatusChange{Previous: txn.Status, New: txn.Status}}, nil
		}
		return nil, ErrAlreadyPaid
	}

	change := StatusChange{Previous: txn.Status, New: models.TransactionConfirmed}
	txn.Status = models.TransactionConfirmed
	txn.PaymentID = paymentID
	txn.State = models.StatePaid
	if err := e.store.SaveTransaction(ctx, txn); err != nil {
		return nil, err
	}

	intents, err := e.mirrorOrder(ctx, txn, models.OrderPaid)
	if err != nil {
		return nil, err
	}

	return &Result{Txn: txn, Change: change, Intents: intents}, nil
}

// Create handles Payme's CreateTransaction. The external id and create_time
// are assigned exactly once; an identical replay returns the stored
// create_time, while a different external id for the same order fails with
// ErrTooManyRequests.
func (e *Engine) Create(ctx context.Context, orderID uuid.UUID, externalID string, amount int64) (*Result, error) {
	unlock := e.lockOrder(orderID)
	defer unlock()

	txn, err := e.store.TransactionByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}

	if txn.Amount != amount {
		return nil, ErrAmountMismatch
	}

	if txn.PaymeID != "" {
		if txn.PaymeID != externalID {
			return nil, ErrTooManyRequests
		}
		return &Result{Txn: txn, Change: StatusChange{Previous: txn.Status, New: txn.Status}}, nil
	}

	switch txn.Status {
	case models.TransactionConfirmed:
		return nil, ErrAlreadyPaid
	case models.TransactionCanceled:
		return nil, ErrTransactionCanceled
	}

	txn.PaymeID = externalID
	txn.CreatedAtMS = e.now()
	txn.State = models.StatePending
	if err := e.store.SaveTransaction(ctx, txn); err != nil {
		return nil, err
	}

	return &Result{Txn: txn, Change: StatusChange{Previous: txn.Status, New: txn.Status}}, nil
}

// Perform handles Payme's PerformTransaction. perform_time is written once;
// a replay returns the stored value instead of a new timestamp.
func (e *Engine) Perform(ctx context.Context, externalID string) (*Result, error) {
	txn, err := e.resolvePayme(ctx, externalID)
	if err != nil {
		return nil, err
	}

	unlock := e.lockOrder(txn.OrderID)
	defer unlock()

	// Re-read under the lock; a concurrent webhook may have advanced it.
	txn, err = e.resolvePayme(ctx, externalID)
	if err != nil {
		return nil, err
	}

	if txn.Status == models.TransactionCanceled {
		return nil, ErrTransactionCanceled
	}

	if txn.PerformTime != 0 {
		return &Result{Txn: txn, Change: StatusChange{Previous: txn.Status, New: txn.Status}}, nil
	}

	change := StatusChange{Previous: txn.Status, New: models.TransactionConfirmed}
	txn.PerformTime = e.now()
	txn.State = models.StatePaid
	txn.Status = models.TransactionConfirmed
	if err := e.store.SaveTransaction(ctx, txn); err != nil {
		return nil, err
	}

	intents, err := e.mirrorOrder(ctx, txn, models.OrderPaid)
	if err != nil {
		return nil, err
	}

	return &Result{Txn: txn, Change: change, Intents: intents}, nil
}

// Cancel handles Payme's CancelTransaction. Reachable from any state;
// cancel_time is written once, and the numeric state records whether the
// transaction had been performed (-2) or not (-1).
func (e *Engine) Cancel(ctx context.Context, externalID string, reason int) (*Result, error) {
	txn, err := e.resolvePayme(ctx, externalID)
	if err != nil {
		return nil, err
	}

	unlock := e.lockOrder(txn.OrderID)
	defer unlock()

	txn, err = e.resolvePayme(ctx, externalID)
	if err != nil {
		return nil, err
	}

	return e.cancelLocked(ctx, txn, &reason)
}

// CancelOrder cancels the order's payment attempt by order id, for gateways
// that report a failure before any external transaction id exists.
func (e *Engine) CancelOrder(ctx context.Context, orderID uuid.UUID) (*Result, error) {
	unlock := e.lockOrder(orderID)
	defer unlock()

	txn, err := e.store.TransactionByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	return e.cancelLocked(ctx, txn, nil)
}

// CheckPerform reports whether a payment for the order would be allowed.
// Read-only: no transition happens.
func (e *Engine) CheckPerform(ctx context.Context, orderID uuid.UUID, amount int64) error {
	txn, err := e.store.TransactionByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrTransactionNotFound
		}
		return err
	}
	if txn.Amount != amount {
		return ErrAmountMismatch
	}
	return nil
}

// Check returns the transaction identified by the Payme external id.
// Read-only projection.
func (e *Engine) Check(ctx context.Context, externalID string) (*models.Transaction, error) {
	return e.resolvePayme(ctx, externalID)
}

// Statement returns all transactions created inside [from, to] in unix
// milliseconds. Persistence failures degrade to an empty statement rather
// than a fault, matching gateway expectations.
func (e *Engine) Statement(ctx context.Context, from, to int64) []models.Transaction {
	txns, err := e.store.TransactionsInRange(ctx, from, to)
	if err != nil {
		log.Printf("[recon] statement query failed: %v", err)
		return []models.Transaction{}
	}
	return txns
}

func (e *Engine) resolvePayme(ctx context.Context, externalID string) (*models.Transaction, error) {
	txn, err := e.store.TransactionByPaymeID(ctx, externalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return txn, nil
}

// cancelLocked applies the cancel transition. Caller holds the order lock.
func (e *Engine) cancelLocked(ctx context.Context, txn *models.Transaction, reason *int) (*Result, error) {
	if txn.Status == models.TransactionCanceled {
		return &Result{Txn: txn, Change: StatusChange{Previous: txn.Status, New: txn.Status}}, nil
	}

	change := StatusChange{Previous: txn.Status, New: models.TransactionCanceled}
	if txn.CancelTime == 0 {
		txn.CancelTime = e.now()
	}
	if txn.PerformTime == 0 {
		txn.State = models.StatePendingCanceled
	} else {
		txn.State = models.StatePaidCanceled
	}
	if reason != nil {
		txn.Reason = reason
	}
	txn.Status = models.TransactionCanceled
	if err := e.store.SaveTransaction(ctx, txn); err != nil {
		return nil, err
	}

	intents, err := e.mirrorOrder(ctx, txn, models.OrderCanceled)
	if err != nil {
		return nil, err
	}

	return &Result{Txn: txn, Change: change, Intents: intents}, nil
}

// mirrorOrder propagates a confirmation or cancellation one level up to the
// owning order and emits the matching intent.
func (e *Engine) mirrorOrder(ctx context.Context, txn *models.Transaction, status models.OrderStatus) ([]Intent, error) {
	order, err := e.store.OrderByID(ctx, txn.OrderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if order.Status == status {
		return nil, nil
	}

	order.Status = status
	if err := e.store.SaveOrder(ctx, order); err != nil {
		return nil, err
	}

	kind := IntentOrderPaid
	if status == models.OrderCanceled {
		kind = IntentOrderCanceled
	}

	return []Intent{{
		Kind:     kind,
		OrderID:  order.ID,
		ClientID: order.ClientID,
		Amount:   txn.Amount,
	}}, nil
}
