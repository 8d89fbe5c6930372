package handlers

import (
	"bithrah-early-access/services"

	"github.com/gofiber/fiber/v2"
)

type createIdeaRequest struct {
	OwnerEmail  string   `json:"owner_email" validate:"required,email,max=255"`
	Title       string   `json:"title" validate:"required,min=3,max=200"`
	Description string   `json:"description" validate:"required,min=20,max=10000"`
	Category    string   `json:"category" validate:"omitempty,max=64"`
	FundingGoal *float64 `json:"funding_goal" validate:"omitempty,gt=0"`
}

func SetupIdeaRoutes(app *fiber.App, ideas *services.IdeaService) {
	group := app.Group("/ideas")

	group.Post("/", func(c *fiber.Ctx) error {
		var req createIdeaRequest
		if handled, err := validateBody(c, &req); handled {
			return err
		}

		idea, err := ideas.Create(c.UserContext(), services.NewIdea{
			OwnerEmail:  req.OwnerEmail,
			Title:       req.Title,
			Description: req.Description,
			Category:    req.Category,
			FundingGoal: req.FundingGoal,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(idea)
	})

	group.Get("/:slug", func(c *fiber.Ctx) error {
		idea, err := ideas.GetBySlug(c.UserContext(), c.Params("slug"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(idea)
	})

	group.Post("/:id/evaluate", func(c *fiber.Ctx) error {
		idea, err := ideas.Evaluate(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(idea)
	})
}
