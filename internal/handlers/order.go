package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/ustabor/internal/middleware"
	"github.com/example/ustabor/internal/models"
	"github.com/example/ustabor/internal/notify"
	"github.com/example/ustabor/internal/utils"
)

// OrderHandler manages the order lifecycle around the payment flow.
type OrderHandler struct {
	db         *gorm.DB
	dispatcher *notify.Dispatcher
}

func NewOrderHandler(db *gorm.DB, dispatcher *notify.Dispatcher) *OrderHandler {
	return &OrderHandler{db: db, dispatcher: dispatcher}
}

// allowedOrderTransitions maps each status to the statuses a PATCH may move
// it to. Payment-driven transitions (pending -> paid, -> canceled) belong to
// the reconciliation engine and are deliberately absent.
var allowedOrderTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderPaid:      {models.OrderInProcess, models.OrderCanceled},
	models.OrderInProcess: {models.OrderCompleted, models.OrderCanceled},
	models.OrderPending:   {models.OrderCanceled},
}

type createOrderRequest struct {
	ServiceID   string `json:"service_id"`
	Description string `json:"description"`
}

// CreateOrder places a new order for the authenticated client.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}

	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	serviceID, err := uuid.Parse(req.ServiceID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid service_id")
	}

	var service models.Service
	if err := h.db.First(&service, "id = ?", serviceID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "service not found")
		}
		return err
	}

	order := models.Order{
		ClientID:    userID,
		ServiceID:   service.ID,
		Price:       service.BasePrice,
		Status:      models.OrderPending,
		Description: req.Description,
	}

	if err := h.db.Create(&order).Error; err != nil {
		return err
	}

	h.dispatcher.OrderCreated(c.UserContext(), &order)

	return c.Status(fiber.StatusCreated).JSON(order)
}

// ListOrders returns orders visible to the caller: clients see their own,
// workers see assigned plus unassigned paid ones, admins see everything.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Order{}).Preload("Service")

	switch user.Role {
	case models.RoleWorker:
		query = query.Where("worker_id = ? OR (worker_id IS NULL AND status = ?)", user.ID, models.OrderPaid)
	case models.RoleAdmin:
	default:
		query = query.Where("client_id = ?", user.ID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var orders []models.Order
	if err := query.
		Order("created_at desc").
		Limit(pg.Limit).
		Offset(pg.Offset).
		Find(&orders).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    orders,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// GetOrder returns one order if the caller participates in it.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order id")
	}

	var order models.Order
	if err := h.db.Preload("Service").First(&order, "id = ?", orderID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		return err
	}

	if !h.canSee(user, &order) {
		return fiber.NewError(fiber.StatusForbidden, "not your order")
	}

	return c.JSON(order)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus moves an order through the fulfillment lifecycle. The
// response reports the transition explicitly as previous/new status.
func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order id")
	}

	var req updateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	target := models.OrderStatus(req.Status)

	var order models.Order
	if err := h.db.First(&order, "id = ?", orderID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		return err
	}

	if !transitionAllowed(order.Status, target) {
		return fiber.NewError(fiber.StatusConflict, "transition not allowed")
	}
	if err := h.authorizeTransition(user, &order, target); err != nil {
		return err
	}

	previous := order.Status
	order.Status = target
	if target == models.OrderInProcess && order.WorkerID == nil {
		order.WorkerID = &user.ID
	}

	if err := h.db.Save(&order).Error; err != nil {
		return err
	}

	h.dispatcher.OrderStatusChanged(c.UserContext(), &order, previous)

	return c.JSON(fiber.Map{
		"success":         true,
		"order_id":        order.ID,
		"previous_status": previous,
		"new_status":      order.Status,
	})
}

func (h *OrderHandler) authorizeTransition(user *models.User, order *models.Order, target models.OrderStatus) error {
	if user.IsAdmin() {
		return nil
	}

	switch target {
	case models.OrderInProcess:
		if user.Role != models.RoleWorker {
			return fiber.NewError(fiber.StatusForbidden, "only workers can accept orders")
		}
	case models.OrderCompleted:
		if order.WorkerID == nil || *order.WorkerID != user.ID {
			return fiber.NewError(fiber.StatusForbidden, "only the assigned worker can complete the order")
		}
	case models.OrderCanceled:
		assigned := order.WorkerID != nil && *order.WorkerID == user.ID
		if order.ClientID != user.ID && !assigned {
			return fiber.NewError(fiber.StatusForbidden, "not your order")
		}
	default:
		return fiber.NewError(fiber.StatusForbidden, "transition not allowed")
	}

	return nil
}

func (h *OrderHandler) canSee(user *models.User, order *models.Order) bool {
	if user.IsAdmin() || order.ClientID == user.ID {
		return true
	}
	if user.Role == models.RoleWorker {
		return order.WorkerID == nil || *order.WorkerID == user.ID
	}
	return false
}

func (h *OrderHandler) currentUser(c *fiber.Ctx) (*models.User, error) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}
	return user, nil
}

func transitionAllowed(from, to models.OrderStatus) bool {
	for _, allowed := range allowedOrderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
