// internal/middleware/sse_auth.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"intake-service/internal/service"
)

// Context keys for staff information (using string keys for Fiber Locals)
const (
	StaffIDContextKey   = "staffID"
	StaffRoleContextKey = "staffRole"
)

// SSEAuthMiddleware validates accessToken from query params via auth-service /validate.
// Expects:
//
//	?token=abc123
//
// EventSource can't set headers, so the dashboard passes its token in the query.
// On success sets context: staffID, staffRole. On failure returns 401.
func SSEAuthMiddleware(authClient *service.AuthServiceClient) fiber.Handler {
	return func(c *fiber.Ctx) error {
		log.Printf("[SSEAuth] Processing auth for path: %s, RemoteAddr: %s", c.Path(), c.IP())

		accessToken := strings.TrimSpace(c.Query("token"))
		if accessToken == "" {
			log.Printf("[SSEAuth] ❌ Missing token query param")
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing token in query",
			})
		}

		resp, err := authClient.ValidateToken(accessToken)
		if err != nil {
			log.Printf("[SSEAuth] ❌ Validation failed for token (prefix: %s...): %v",
				accessToken[:min(10, len(accessToken))], err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized: invalid token",
			})
		}

		if resp.Role != "staff" && resp.Role != "admin" {
			log.Printf("[SSEAuth] ❌ Role %q may not stream sync status", resp.Role)
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Forbidden: staff access required",
			})
		}

		parsedID, err := uuid.Parse(resp.UserID)
		if err != nil {
			log.Printf("[SSEAuth] ❌ Invalid user_id returned from auth service: %s, error: %v", resp.UserID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Internal server error during authentication",
			})
		}

		c.Locals(StaffIDContextKey, parsedID.String())
		c.Locals(StaffRoleContextKey, resp.Role)

		log.Printf("[SSEAuth] ✅ Authenticated staff %s (role %s)", parsedID.String(), resp.Role)

		return c.Next()
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// GetStaffIDFromContext retrieves the authenticated staff id set by SSEAuthMiddleware.
func GetStaffIDFromContext(c *fiber.Ctx) (string, bool) {
	value := c.Locals(StaffIDContextKey)
	staffID, ok := value.(string)
	if !ok {
		log.Printf("[SSEAuth] GetStaffIDFromContext: FAILED to retrieve staffID from context, ok=%t, value=%v", ok, value)
	}
	return staffID, ok
}
