package handlers

import (
	"bithrah-early-access/middleware"
	"bithrah-early-access/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SetupAdminRoutes registers operator endpoints behind the admin token.
func SetupAdminRoutes(app *fiber.App, adminToken string, ledger *services.LedgerService, exporter *services.ExportService) {
	admin := app.Group("/admin/early-access", middleware.AdminAuthMiddleware(adminToken))

	admin.Delete("/users/:id", func(c *fiber.Ctx) error {
		id, ok := parseUserID(c)
		if !ok {
			return respondError(c, fiber.NewError(fiber.StatusBadRequest, "invalid user id"))
		}
		if err := ledger.Purge(c.UserContext(), id); err != nil {
			return respondError(c, err)
		}

		zap.L().Info("Admin purged early access user",
			zap.Uint64("user_id", id),
			zap.String("request_id", middleware.RequestID(c)),
		)
		return c.SendStatus(fiber.StatusNoContent)
	})

	admin.Post("/reconcile", func(c *fiber.Ctx) error {
		report, err := ledger.Reconcile(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(report)
	})

	admin.Post("/export", func(c *fiber.Ctx) error {
		res, err := exporter.Export(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	})
}
