package handlers

import (
	"strconv"
	"time"

	"bithrah-early-access/models"
	"bithrah-early-access/services"

	"github.com/gofiber/fiber/v2"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Username string `json:"username" validate:"required,min=3,max=50,username"`
	FullName string `json:"full_name" validate:"required,max=255"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
	Source   string `json:"source" validate:"omitempty,max=32"`
	Ref      string `json:"ref" validate:"omitempty,max=64"`
}

type userResponse struct {
	ID            uint64    `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	FullName      string    `json:"full_name"`
	ReferralCode  string    `json:"referral_code"`
	ReferralLink  string    `json:"referral_link"`
	ReferralCount int       `json:"referral_count"`
	BonusYears    int       `json:"bonus_years"`
	Batch         int       `json:"batch"`
	CreatedAt     time.Time `json:"created_at"`
}

// publicUser is what anyone holding a code or viewing the leaderboard sees.
type publicUser struct {
	Username      string `json:"username"`
	ReferralCount int    `json:"referral_count"`
	BonusYears    int    `json:"bonus_years"`
	Batch         int    `json:"batch"`
}

func toPublicUser(u models.EarlyAccessUser) publicUser {
	return publicUser{
		Username:      u.Username,
		ReferralCount: u.ReferralCount,
		BonusYears:    u.BonusYears,
		Batch:         u.Batch,
	}
}

func SetupEarlyAccessRoutes(app *fiber.App, ledger *services.LedgerService) {
	group := app.Group("/early-access")

	group.Post("/register", func(c *fiber.Ctx) error {
		var req registerRequest
		if handled, err := parseBody(c, &req); handled {
			return err
		}
		// Validate the username as it will be stored.
		req.Username = services.NormalizeUsername(req.Username)
		if handled, err := validateStruct(c, &req); handled {
			return err
		}

		ref := req.Ref
		if ref == "" {
			ref = c.Query("ref")
		}

		res, err := ledger.RegisterWithReferral(c.UserContext(), services.Registration{
			Email:    req.Email,
			Username: req.Username,
			FullName: req.FullName,
			Phone:    req.Phone,
			Source:   req.Source,
		}, ref)
		if err != nil {
			return respondError(c, err)
		}

		body := fiber.Map{
			"user": userResponse{
				ID:            res.User.ID,
				Email:         res.User.Email,
				Username:      res.User.Username,
				FullName:      res.User.FullName,
				ReferralCode:  res.User.ReferralCode,
				ReferralLink:  ledger.ReferralLink(res.User.ReferralCode),
				ReferralCount: res.User.ReferralCount,
				BonusYears:    res.User.BonusYears,
				Batch:         res.User.Batch,
				CreatedAt:     res.User.CreatedAt,
			},
			"referral_status": res.ReferralStatus,
		}
		if res.Referrer != nil {
			body["referrer"] = toPublicUser(*res.Referrer)
		}
		return c.Status(fiber.StatusCreated).JSON(body)
	})

	group.Get("/users/:id/stats", func(c *fiber.Ctx) error {
		id, ok := parseUserID(c)
		if !ok {
			return respondError(c, fiber.NewError(fiber.StatusBadRequest, "invalid user id"))
		}
		stats, err := ledger.Stats(c.UserContext(), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(stats)
	})

	group.Get("/users/:id/referrals", func(c *fiber.Ctx) error {
		id, ok := parseUserID(c)
		if !ok {
			return respondError(c, fiber.NewError(fiber.StatusBadRequest, "invalid user id"))
		}
		users, err := ledger.ListReferred(c.UserContext(), id)
		if err != nil {
			return respondError(c, err)
		}

		out := make([]publicUser, 0, len(users))
		for _, u := range users {
			out = append(out, toPublicUser(u))
		}
		return c.JSON(fiber.Map{"referrals": out, "total": len(out)})
	})

	group.Get("/codes/:code", func(c *fiber.Ctx) error {
		user, err := ledger.GetByReferralCode(c.UserContext(), c.Params("code"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"referral_code": user.ReferralCode,
			"referrer":      toPublicUser(*user),
		})
	})

	group.Get("/leaderboard", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 10)
		if limit < 1 || limit > 100 {
			return respondError(c, fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and 100"))
		}

		users, err := ledger.Leaderboard(c.UserContext(), limit)
		if err != nil {
			return respondError(c, err)
		}

		out := make([]fiber.Map, 0, len(users))
		for i, u := range users {
			out = append(out, fiber.Map{"rank": i + 1, "user": toPublicUser(u)})
		}
		return c.JSON(fiber.Map{"leaderboard": out})
	})

	group.Get("/bonus", func(c *fiber.Ctx) error {
		count, err := strconv.Atoi(c.Query("count"))
		if err != nil || count < 0 {
			return respondError(c, fiber.NewError(fiber.StatusBadRequest, "count must be a non-negative integer"))
		}
		return c.JSON(fiber.Map{
			"referral_count":         count,
			"bonus_years":            services.ComputeBonusYears(count),
			"referrals_to_next_year": services.ReferralsUntilNextBonus(count),
		})
	})
}

func parseUserID(c *fiber.Ctx) (uint64, bool) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	return id, err == nil && id > 0
}
