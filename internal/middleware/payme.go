package middleware

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/example/ustabor/internal/services"
)

type paymeRequestID struct {
	ID any `json:"id"`
}

// PaymeAuthMiddleware validates the Payme Authorization header. Rejections
// are delivered as the Payme error envelope with HTTP 200, the way the
// gateway expects.
func PaymeAuthMiddleware(payme *services.PaymeService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var reqID paymeRequestID
		_ = json.Unmarshal(c.Body(), &reqID)

		if !payme.VerifyAuthorization(c.Get("Authorization")) {
			return writePaymeAuthError(c, reqID.ID)
		}

		return c.Next()
	}
}

func writePaymeAuthError(c *fiber.Ctx, id any) error {
	info := services.PaymeErrorInvalidAuthorization
	return c.JSON(fiber.Map{
		"error": fiber.Map{
			"code": info.Code,
			"message": fiber.Map{
				"uz": info.Message["uz"],
				"ru": info.Message["ru"],
				"en": info.Message["en"],
			},
			"data": nil,
		},
		"id": id,
	})
}
