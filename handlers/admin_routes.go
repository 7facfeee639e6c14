// handlers/admin_routes.go
package handlers

import (
	"errors"
	"log"
	"strconv"

	"reward-progression-system/middleware"
	"reward-progression-system/models"
	"reward-progression-system/services"
	"reward-progression-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// SetupAdminRoutes wires the admin surface: group config edits, badge and
// milestone management, balance overrides and the user cascade delete.
func SetupAdminRoutes(app *fiber.App, cfg *services.ConfigProvider, ledger *services.LedgerStore, badges *services.BadgeRuleEngine) {
	admin := app.Group("/admin", middleware.AdminContextMiddleware())

	admin.Get("/groups/:groupID/config", func(c *fiber.Ctx) error {
		groupID, err := strconv.ParseInt(c.Params("groupID"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid group id"})
		}
		return c.JSON(cfg.Get(groupID))
	})

	admin.Put("/groups/:groupID/config", func(c *fiber.Ctx) error {
		groupID, err := strconv.ParseInt(c.Params("groupID"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid group id"})
		}

		var upd services.GroupConfigUpdate
		if err := c.BodyParser(&upd); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}

		updated, err := cfg.Apply(groupID, upd)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "config update rejected", "cause": err.Error()})
		}
		log.Printf("⚙️ [ADMIN] config updated for group %d by %v", groupID, c.Locals("admin_id"))
		return c.JSON(updated)
	})

	admin.Get("/groups/:groupID/milestones", func(c *fiber.Ctx) error {
		groupID, err := strconv.ParseInt(c.Params("groupID"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid group id"})
		}
		list, err := cfg.Milestones(groupID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error", "cause": err.Error()})
		}
		return c.JSON(list)
	})

	admin.Put("/groups/:groupID/milestones", func(c *fiber.Ctx) error {
		groupID, err := strconv.ParseInt(c.Params("groupID"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid group id"})
		}

		var list []models.Milestone
		if err := c.BodyParser(&list); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if err := cfg.ReplaceMilestones(groupID, list); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "milestone update rejected", "cause": err.Error()})
		}
		return c.JSON(fiber.Map{"message": "milestones updated", "count": len(list)})
	})

	admin.Post("/badges", func(c *fiber.Ctx) error {
		var req struct {
			Name        string                 `json:"name"`
			GroupID     int64                  `json:"group_id"`
			Description string                 `json:"description"`
			Rarity      string                 `json:"rarity"`
			Condition   models.UnlockCondition `json:"unlock_condition"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if req.Name == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required"})
		}
		if req.Rarity == "" {
			req.Rarity = "common"
		}

		def := models.BadgeDefinition{
			Code:        slug.Make(req.Name),
			GroupID:     req.GroupID,
			Name:        req.Name,
			Description: req.Description,
			Rarity:      req.Rarity,
			Condition:   req.Condition,
		}
		if err := cfg.CreateBadge(&def); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "badge rejected", "cause": err.Error()})
		}
		return c.Status(fiber.StatusCreated).JSON(def)
	})

	admin.Post("/badges/:id/icon", func(c *fiber.Ctx) error {
		id := c.Params("id")
		var def models.BadgeDefinition
		if err := cfg.DB.Where("id = ?", id).First(&def).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "badge not found"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}

		fileHeader, err := c.FormFile("icon")
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "icon file is required"})
		}
		url, err := utils.UploadFileToR2(fileHeader, utils.BadgeIconKey(def.Code, fileHeader.Filename))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "upload failed", "cause": err.Error()})
		}

		if err := cfg.DB.Model(&def).Update("icon_url", url).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save icon URL"})
		}
		return c.JSON(fiber.Map{"icon_url": url})
	})

	admin.Delete("/badges/:id", func(c *fiber.Ctx) error {
		if err := cfg.RetireBadge(c.Params("id")); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "badge not found"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}
		return c.JSON(fiber.Map{"message": "badge retired"})
	})

	admin.Post("/badges/:id/grant", func(c *fiber.Ctx) error {
		var req struct {
			UserID int64 `json:"user_id"`
		}
		if err := c.BodyParser(&req); err != nil || req.UserID == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id is required"})
		}

		granted, err := badges.GrantAdminBadge(req.UserID, c.Params("id"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "grant failed", "cause": err.Error()})
		}
		return c.JSON(fiber.Map{"granted": granted})
	})

	admin.Post("/adjust", func(c *fiber.Ctx) error {
		var req struct {
			UserID      int64  `json:"user_id"`
			ExpDelta    int64  `json:"exp_delta"`
			PointsDelta int64  `json:"points_delta"`
			Reason      string `json:"reason"`
		}
		if err := c.BodyParser(&req); err != nil || req.UserID == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id is required"})
		}

		prof, err := ledger.AdminAdjust(req.UserID, req.ExpDelta, req.PointsDelta, req.Reason)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "adjustment rejected", "cause": err.Error()})
		}
		log.Printf("⚙️ [ADMIN] balance adjusted for user %d by %v (%s)", req.UserID, c.Locals("admin_id"), req.Reason)
		return c.JSON(prof)
	})

	admin.Put("/users/:id/level", func(c *fiber.Ctx) error {
		userID, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user id"})
		}
		var req struct {
			Level int `json:"level"`
		}
		if err := c.BodyParser(&req); err != nil || req.Level < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "level must be >= 1"})
		}
		if err := ledger.SetLevel(userID, req.Level); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to set level"})
		}
		return c.JSON(fiber.Map{"message": "level updated", "level": req.Level})
	})

	admin.Post("/spend", func(c *fiber.Ctx) error {
		var req struct {
			UserID      int64  `json:"user_id"`
			Points      int64  `json:"points"`
			Description string `json:"description"`
		}
		if err := c.BodyParser(&req); err != nil || req.UserID == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id is required"})
		}

		prof, err := ledger.SpendPoints(req.UserID, req.Points, req.Description)
		if err != nil {
			if errors.Is(err, services.ErrInsufficientPoints) {
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "insufficient points"})
			}
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "spend rejected", "cause": err.Error()})
		}
		return c.JSON(prof)
	})

	admin.Delete("/users/:id", func(c *fiber.Ctx) error {
		userID, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user id"})
		}
		if err := ledger.DeleteUserCascade(userID); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cascade delete failed", "cause": err.Error()})
		}
		log.Printf("🗑️ [ADMIN] user %d removed with ledger, badges and milestones by %v", userID, c.Locals("admin_id"))
		return c.JSON(fiber.Map{"message": "user removed"})
	})

	admin.Get("/reconcile", func(c *fiber.Ctx) error {
		drifts, err := ledger.Reconcile()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reconciliation failed", "cause": err.Error()})
		}
		return c.JSON(fiber.Map{"drift_count": len(drifts), "drifts": drifts})
	})
}
