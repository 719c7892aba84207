package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/ustabor/internal/middleware"
	"github.com/example/ustabor/internal/models"
)

// ServiceHandler manages the service catalog.
type ServiceHandler struct {
	db *gorm.DB
}

func NewServiceHandler(db *gorm.DB) *ServiceHandler {
	return &ServiceHandler{db: db}
}

// ListServices returns the catalog.
func (h *ServiceHandler) ListServices(c *fiber.Ctx) error {
	var services []models.Service
	if err := h.db.Order("name asc").Find(&services).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": services})
}

type createServiceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	BasePrice   int64  `json:"base_price"`
}

// CreateService adds a catalog entry. Admin only.
func (h *ServiceHandler) CreateService(c *fiber.Ctx) error {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}
	if !user.IsAdmin() {
		return fiber.NewError(fiber.StatusForbidden, "admin only")
	}

	var req createServiceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" || req.BasePrice <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "name and base_price are required")
	}

	service := models.Service{
		Name:        req.Name,
		Description: req.Description,
		BasePrice:   req.BasePrice,
	}
	if err := h.db.Create(&service).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(service)
}
