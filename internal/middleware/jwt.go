package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/minibank/minibank/internal/auth"
	"github.com/minibank/minibank/internal/config"
	"github.com/minibank/minibank/internal/identity"
)

// JWTAuth validates bearer tokens and resolves the authenticated user. The
// user id lands in c.Locals("user_id") for downstream handlers.
func JWTAuth(cfg config.Config, repo identity.Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		claims, err := auth.ParseAndVerifyHS256(tokenStr, []byte(cfg.JWTSecret))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		exp, _ := claims["exp"].(float64)
		if exp == 0 || time.Now().Unix() >= int64(exp) {
			return fiber.NewError(http.StatusUnauthorized, "token expired")
		}

		sub, _ := claims["sub"].(string)
		if _, err := repo.FindByID(c.UserContext(), sub); err != nil {
			return fiber.NewError(http.StatusUnauthorized, "unknown subject")
		}

		c.Locals("user_id", sub)
		return c.Next()
	}
}
