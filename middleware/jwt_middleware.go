package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"taskflow/models"
	"taskflow/policy"
	"taskflow/utils"
)

const userLocal = "user"

// Protected authenticates the request from a Bearer header, the access_token
// cookie or, for websocket upgrades, a token query parameter.
func Protected(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var token string
		authHeader := c.Get("Authorization")
		switch {
		case authHeader != "":
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid authorization format", nil)
			}
			token = tokenParts[1]
		case c.Cookies("access_token") != "":
			token = c.Cookies("access_token")
		default:
			token = c.Query("token")
		}
		if token == "" {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
		}

		claims, err := utils.ParseJWTToken(token)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid or expired token", nil)
		}

		var user models.User
		if err := db.WithContext(c.UserContext()).First(&user, claims.UserID).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "User not found", nil)
		}

		// Tokens issued before the last password change are rejected
		if claims.TokenVersion != user.TokenVersion {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid token version", nil)
		}

		c.Locals(userLocal, &user)
		c.Locals("userID", user.ID)
		return c.Next()
	}
}

// CurrentUser returns the user stored by Protected, or nil.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(userLocal).(*models.User)
	return user
}

// Principal returns the authenticated caller of the request.
func Principal(c *fiber.Ctx) policy.Principal {
	if user := CurrentUser(c); user != nil {
		return policy.PrincipalOf(user)
	}
	return policy.Principal{}
}

// RequireRoles lets the request through only for the given roles.
func RequireRoles(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if user == nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
		}
		for _, role := range roles {
			if user.Role == role {
				return c.Next()
			}
		}
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You do not have permission for this action", nil)
	}
}
