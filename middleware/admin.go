package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AdminAuthMiddleware validates the Bearer token on administrative routes.
func AdminAuthMiddleware(expectedToken string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			zap.L().Debug("[ADMIN_AUTH] Missing Authorization header",
				zap.String("path", c.Path()),
				zap.String("request_id", RequestID(c)),
			)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":      "admin authentication token missing",
				"request_id": RequestID(c),
			})
		}

		// "Bearer <token>", or the raw token
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

		if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			zap.L().Warn("[ADMIN_AUTH] Invalid token",
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
				zap.String("request_id", RequestID(c)),
			)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":      "invalid admin authentication token",
				"request_id": RequestID(c),
			})
		}

		return c.Next()
	}
}
