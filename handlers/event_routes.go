// handlers/event_routes.go
package handlers

import (
	"log"

	"reward-progression-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupEventRoutes wires the reward-event ingest endpoint the booking and
// evaluation subsystems call on business-event completion.
func SetupEventRoutes(app *fiber.App, processor *services.RewardProcessor) {
	app.Post("/events/reward", func(c *fiber.Ctx) error {
		var ev services.RewardEvent
		if err := c.BodyParser(&ev); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if ev.UserID == 0 || ev.ActionType == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id and action_type are required"})
		}

		prof, applied, err := processor.Process(ev)
		if err != nil {
			// Only a failed ledger write lands here; everything downstream
			// degrades without surfacing.
			log.Printf("❌ [EVENTS] reward for user %d failed: %v", ev.UserID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reward processing failed"})
		}
		if prof == nil {
			// Unknown action type for a user with no profile yet: a no-op.
			return c.JSON(fiber.Map{"applied": false})
		}
		return c.JSON(fiber.Map{"applied": applied, "profile": prof})
	})
}
