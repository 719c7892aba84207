package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/ustabor/internal/services"
)

// ClickHandler receives Click webhook callbacks.
type ClickHandler struct {
	click *services.ClickService
}

func NewClickHandler(click *services.ClickService) *ClickHandler {
	return &ClickHandler{click: click}
}

// Webhook handles Click prepare/complete callbacks. The response is always
// HTTP 200 with the outcome embedded in the error code, as Click requires.
func (h *ClickHandler) Webhook(c *fiber.Ctx) error {
	var req services.ClickRequest
	if err := c.BodyParser(&req); err != nil {
		return c.JSON(services.ClickResponse{
			Error:     services.ClickErrAction,
			ErrorNote: "Invalid request",
		})
	}

	return c.JSON(h.click.HandleWebhook(c.UserContext(), req))
}
