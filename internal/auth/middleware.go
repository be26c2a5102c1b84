package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	userIDKey = "user_id"
	roleKey   = "role"
)

// JWTMiddleware accepts only access tokens and stores the caller in locals.
func JWTMiddleware(secret string) fiber.Handler {
	key := []byte(secret)
	return func(c *fiber.Ctx) error {
		token := bearerFromHeader(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}
		claims, err := parseClaims(key, token, AccessToken)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		c.Locals(userIDKey, claims.UserID)
		c.Locals(roleKey, claims.Role)
		return c.Next()
	}
}

// QueryToken copies ?<param>= into the Authorization header when the request
// carries none. Browsers cannot set headers on a websocket handshake.
func QueryToken(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get(fiber.HeaderAuthorization) == "" {
			if token := c.Query(param); token != "" {
				c.Request().Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
			}
		}
		return c.Next()
	}
}

// UserID returns the authenticated user stored by JWTMiddleware.
func UserID(c *fiber.Ctx) (string, error) {
	id, ok := c.Locals(userIDKey).(string)
	if !ok || id == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, "missing user")
	}
	return id, nil
}

// RequireRole rejects callers whose token carries none of roles.
func RequireRole(roles ...Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals(roleKey).(Role)
		for _, r := range roles {
			if role == r {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "insufficient role")
	}
}

func bearerFromHeader(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
