package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/ustabor/internal/config"
	"github.com/example/ustabor/internal/models"
	"github.com/example/ustabor/internal/utils"
)

const userContextKey = "currentUser"

// AuthMiddleware validates the Bearer token and loads the account once per
// request, so handlers downstream never repeat the lookup.
func AuthMiddleware(db *gorm.DB, cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		userID, err := utils.ParseToken(cfg.JWTSecret, token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		var user models.User
		if err := db.First(&user, "id = ?", userID).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "user not found")
		}

		c.Locals(userContextKey, &user)
		return c.Next()
	}
}

// GetCurrentUser returns the account loaded by AuthMiddleware.
func GetCurrentUser(c *fiber.Ctx) (*models.User, bool) {
	user, ok := c.Locals(userContextKey).(*models.User)
	return user, ok
}

// GetCurrentUserID returns the authenticated user's id.
func GetCurrentUserID(c *fiber.Ctx) (uuid.UUID, bool) {
	user, ok := GetCurrentUser(c)
	if !ok {
		return uuid.Nil, false
	}
	return user.ID, true
}
