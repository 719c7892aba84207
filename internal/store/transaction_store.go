package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/ustabor/internal/models"
	"github.com/example/ustabor/internal/recon"
)

// TransactionStore is the GORM-backed recon.TransactionStore.
type TransactionStore struct {
	db *gorm.DB
}

func NewTransactionStore(db *gorm.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

func (s *TransactionStore) TransactionByPaymeID(ctx context.Context, paymeID string) (*models.Transaction, error) {
	if paymeID == "" {
		return nil, recon.ErrNotFound
	}

	var txn models.Transaction
	if err := s.db.WithContext(ctx).
		Where("payme_id = ?", paymeID).
		First(&txn).Error; err != nil {
		return nil, translate(err)
	}
	return &txn, nil
}

func (s *TransactionStore) TransactionByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	if err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&txn).Error; err != nil {
		return nil, translate(err)
	}
	return &txn, nil
}

func (s *TransactionStore) TransactionsInRange(ctx context.Context, from, to int64) ([]models.Transaction, error) {
	var txns []models.Transaction
	if err := s.db.WithContext(ctx).
		Where("created_at_ms >= ? AND created_at_ms <= ?", from, to).
		Order("created_at_ms asc").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (s *TransactionStore) SaveTransaction(ctx context.Context, txn *models.Transaction) error {
	return s.db.WithContext(ctx).Save(txn).Error
}

func (s *TransactionStore) OrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (s *TransactionStore) SaveOrder(ctx context.Context, order *models.Order) error {
	return s.db.WithContext(ctx).Save(order).Error
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return recon.ErrNotFound
	}
	return err
}
