package services

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/example/ustabor/internal/models"
	"github.com/example/ustabor/internal/recon"
)

// fakeStore is an in-memory recon.TransactionStore for adapter tests.
type fakeStore struct {
	mu     sync.Mutex
	txns   map[uuid.UUID]models.Transaction
	orders map[uuid.UUID]models.Order
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		txns:   make(map[uuid.UUID]models.Transaction),
		orders: make(map[uuid.UUID]models.Order),
	}
}

func (s *fakeStore) TransactionByPaymeID(_ context.Context, paymeID string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if paymeID == "" {
		return nil, recon.ErrNotFound
	}
	for _, txn := range s.txns {
		if txn.PaymeID == paymeID {
			copied := txn
			return &copied, nil
		}
	}
	return nil, recon.ErrNotFound
}

func (s *fakeStore) TransactionByOrderID(_ context.Context, orderID uuid.UUID) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.txns[orderID]
	if !ok {
		return nil, recon.ErrNotFound
	}
	copied := txn
	return &copied, nil
}

func (s *fakeStore) TransactionsInRange(_ context.Context, from, to int64) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, txn := range s.txns {
		if txn.CreatedAtMS >= from && txn.CreatedAtMS <= to {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (s *fakeStore) SaveTransaction(_ context.Context, txn *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txns[txn.OrderID] = *txn
	return nil
}

func (s *fakeStore) OrderByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, recon.ErrNotFound
	}
	copied := order
	return &copied, nil
}

func (s *fakeStore) SaveOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = *order
	return nil
}

// seedPayable inserts an order with a waiting transaction and returns the
// order id.
func (s *fakeStore) seedPayable(price int64, paymentType models.PaymentType) uuid.UUID {
	orderID := uuid.New()
	clientID := uuid.New()
	s.orders[orderID] = models.Order{
		BaseModel: models.BaseModel{ID: orderID},
		ClientID:  clientID,
		Price:     price,
		Status:    models.OrderPending,
	}
	s.txns[orderID] = models.Transaction{
		BaseModel:   models.BaseModel{ID: uuid.New()},
		UserID:      clientID,
		OrderID:     orderID,
		Amount:      price,
		Status:      models.TransactionWaiting,
		State:       models.StatePending,
		PaymentType: paymentType,
	}
	return orderID
}

// recordingDispatcher captures dispatched intents.
type recordingDispatcher struct {
	mu      sync.Mutex
	intents []recon.Intent
}

func (d *recordingDispatcher) Dispatch(_ context.Context, intents ...recon.Intent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.intents = append(d.intents, intents...)
}

func (d *recordingDispatcher) kinds() []recon.IntentKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	kinds := make([]recon.IntentKind, 0, len(d.intents))
	for _, intent := range d.intents {
		kinds = append(kinds, intent.Kind)
	}
	return kinds
}
