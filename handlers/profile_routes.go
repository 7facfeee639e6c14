// handlers/profile_routes.go
package handlers

import (
	"errors"
	"strconv"

	"reward-progression-system/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// SetupProfileRoutes wires the read-only query surface the admin UI uses:
// profile lookup, badge list, ledger history and leaderboard.
func SetupProfileRoutes(app *fiber.App, ledger *services.LedgerStore, badges *services.BadgeRuleEngine) {
	app.Get("/users/:id/profile", func(c *fiber.Ctx) error {
		userID, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user id"})
		}

		prof, err := ledger.GetProfile(userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "profile not found"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error", "cause": err.Error()})
		}
		return c.JSON(prof)
	})

	app.Get("/users/:id/badges", func(c *fiber.Ctx) error {
		userID, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user id"})
		}

		list, err := badges.UserBadges(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to get badges", "cause": err.Error()})
		}
		return c.JSON(list)
	})

	app.Get("/users/:id/ledger", func(c *fiber.Ctx) error {
		userID, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user id"})
		}
		page, _ := strconv.Atoi(c.Query("page", "1"))
		size, _ := strconv.Atoi(c.Query("size", "20"))

		history, err := ledger.LedgerHistory(userID, page, size)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to get history", "cause": err.Error()})
		}
		return c.JSON(history)
	})

	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		sortBy := c.Query("sort", "level")
		limit, _ := strconv.Atoi(c.Query("limit", "20"))
		excludeInactive := c.Query("active_only", "true") != "false"

		profiles, err := ledger.Leaderboard(sortBy, limit, excludeInactive)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "leaderboard query failed", "cause": err.Error()})
		}

		type entry struct {
			Rank              int    `json:"rank"`
			UserID            int64  `json:"user_id"`
			DisplayName       string `json:"display_name"`
			Level             int    `json:"level"`
			TotalExp          int64  `json:"total_exp"`
			TotalPointsEarned int64  `json:"total_points_earned"`
		}
		out := make([]entry, len(profiles))
		for i, p := range profiles {
			out[i] = entry{
				Rank:              i + 1,
				UserID:            p.UserID,
				DisplayName:       p.DisplayName,
				Level:             p.Level,
				TotalExp:          p.TotalExp,
				TotalPointsEarned: p.TotalPointsEarned,
			}
		}
		return c.JSON(fiber.Map{"sort": sortBy, "entries": out})
	})
}
