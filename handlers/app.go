package handlers

import (
	"strings"

	"bithrah-early-access/middleware"
	"bithrah-early-access/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"gorm.io/gorm"
)

type Deps struct {
	DB             *gorm.DB
	Ledger         *services.LedgerService
	Ideas          *services.IdeaService
	Exporter       *services.ExportService
	AdminToken     string
	AllowedOrigins string
}

// NewApp builds the fiber app with the middleware stack and every route.
func NewApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "bithrah-early-access",
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: ErrorHandler,
	})

	origins := strings.Split(d.AllowedOrigins, ",")
	for i, origin := range origins {
		origins[i] = strings.TrimSpace(origin)
	}

	app.Use(requestid.New())
	app.Use(middleware.RequestLogger())
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Join(origins, ","),
		AllowMethods:  "GET,POST,DELETE,OPTIONS",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		ExposeHeaders: "Content-Length, Content-Type, X-Request-ID",
		MaxAge:        86400,
	}))

	SetupHealthRoutes(app, d.DB)
	SetupEarlyAccessRoutes(app, d.Ledger)
	SetupIdeaRoutes(app, d.Ideas)
	SetupAdminRoutes(app, d.AdminToken, d.Ledger, d.Exporter)

	return app
}
