package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/edumark-api/internal/utils"
)

// RequireRole lets the request through only when the role set by
// JWTProtected is one of roles. Requests without a role are answered 401.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if role = strings.ToLower(strings.TrimSpace(role)); role != "" {
			allowed[role] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("user_role").(string)
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}
		if _, ok := allowed[role]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}
