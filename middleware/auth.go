// middleware/auth.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// AdminContextMiddleware extracts the admin identity and roles forwarded by
// the gateway and rejects non-admin callers. Applied to /admin routes only;
// end-user flows never carry admin context.
func AdminContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		adminID := c.Get("X-Admin-ID")
		rolesStr := c.Get("X-User-Roles")

		if adminID == "" {
			log.Printf("❌ [ADMIN_CTX] X-Admin-ID missing on admin route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-Admin-ID, request must come through gateway with admin context",
			})
		}

		isAdmin := false
		for _, r := range strings.Split(rolesStr, ",") {
			if strings.TrimSpace(r) == "admin" {
				isAdmin = true
				break
			}
		}
		if !isAdmin {
			log.Printf("🚫 [ADMIN_CTX] admin %s lacks admin role on %s", adminID, c.Path())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "admin role required",
			})
		}

		c.Locals("admin_id", adminID)
		return c.Next()
	}
}
