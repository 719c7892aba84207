package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/ustabor/internal/middleware"
	"github.com/example/ustabor/internal/models"
	"github.com/example/ustabor/internal/recon"
	"github.com/example/ustabor/internal/services"
	"github.com/example/ustabor/internal/utils"
)

// PaymentHandler exposes pay-link creation and transaction queries. Webhook
// traffic is handled by the dedicated Click/Payme handlers.
type PaymentHandler struct {
	db     *gorm.DB
	engine *recon.Engine
	click  *services.ClickService
	payme  *services.PaymeService
}

func NewPaymentHandler(db *gorm.DB, engine *recon.Engine, click *services.ClickService, payme *services.PaymeService) *PaymentHandler {
	return &PaymentHandler{db: db, engine: engine, click: click, payme: payme}
}

type createLinkRequest struct {
	OrderID   string `json:"order_id"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	ReturnURL string `json:"return_url"`
}

// CreateLink registers a payment attempt for an order and returns the
// gateway checkout URL. A stale unconfirmed attempt for the same order is
// superseded; a confirmed one blocks with 409.
func (h *PaymentHandler) CreateLink(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}

	var req createLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	paymentType := models.PaymentType(req.Type)
	if paymentType != models.PaymentTypeClick && paymentType != models.PaymentTypePayme {
		return fiber.NewError(fiber.StatusBadRequest, "unknown payment type")
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order_id")
	}

	var order models.Order
	if err := h.db.First(&order, "id = ?", orderID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		return err
	}
	if order.ClientID != userID {
		return fiber.NewError(fiber.StatusForbidden, "not your order")
	}

	// The pay link always carries the order price; a client-supplied amount
	// is ignored rather than trusted.
	amount := order.Price

	// The supersede runs under the engine's order lock so it cannot
	// interleave with a webhook's read-modify-write on the same order.
	var txn models.Transaction
	err = h.engine.WithOrderLock(orderID, func() error {
		var existing models.Transaction
		err := h.db.Where("order_id = ?", orderID).First(&existing).Error
		switch {
		case err == nil:
			if existing.Status == models.TransactionConfirmed {
				return fiber.NewError(fiber.StatusConflict, "order already paid")
			}
			// Supersede the stale unconfirmed attempt.
			if err := h.db.Delete(&existing).Error; err != nil {
				return err
			}
		case err != gorm.ErrRecordNotFound:
			return err
		}

		txn = models.Transaction{
			Name:        strings.TrimSpace(req.Name),
			UserID:      userID,
			OrderID:     orderID,
			PaymentType: paymentType,
			Amount:      amount,
			Status:      models.TransactionWaiting,
			State:       models.StatePending,
		}
		return h.db.Create(&txn).Error
	})
	if err != nil {
		return err
	}

	var url string
	switch paymentType {
	case models.PaymentTypeClick:
		url = h.click.PayLink(orderID, amount, req.ReturnURL)
	case models.PaymentTypePayme:
		url = h.payme.PayLink(orderID, amount, req.ReturnURL)
	}

	return c.JSON(fiber.Map{
		"payment_link":   url,
		"transaction_id": txn.ID,
	})
}

// ListTransactions returns the caller's confirmed transactions, newest first.
func (h *PaymentHandler) ListTransactions(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}

	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Transaction{}).
		Where("user_id = ? AND status = ?", userID, models.TransactionConfirmed)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var txns []models.Transaction
	if err := query.
		Order("created_at desc").
		Limit(pg.Limit).
		Offset(pg.Offset).
		Find(&txns).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    txns,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// GetTransaction returns the caller's transaction for a given order.
func (h *PaymentHandler) GetTransaction(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}

	orderID, err := uuid.Parse(c.Params("order_id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order_id")
	}

	var txn models.Transaction
	if err := h.db.
		Where("order_id = ? AND user_id = ?", orderID, userID).
		First(&txn).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "transaction not found")
		}
		return err
	}

	return c.JSON(txn)
}

// Receipt returns the OFD fiscal receipt QR URL for a confirmed Click
// payment.
func (h *PaymentHandler) Receipt(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}

	txnID, err := uuid.Parse(c.Params("transaction_id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid transaction_id")
	}

	var txn models.Transaction
	if err := h.db.
		Where("id = ? AND user_id = ? AND status = ?", txnID, userID, models.TransactionConfirmed).
		First(&txn).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "transaction not found")
		}
		return err
	}

	if txn.PaymentID == "" {
		return fiber.NewError(fiber.StatusConflict, "payment has no receipt reference")
	}

	qrURL, err := h.click.ReceiptQR(c.UserContext(), txn.PaymentID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "failed to fetch receipt")
	}
	if qrURL == "" {
		return fiber.NewError(fiber.StatusNotFound, "receipt QR not available")
	}

	return c.JSON(fiber.Map{"qr_url": qrURL})
}
