package auth

import (
	"strings"

	"zakaria-backend/internal/access"
	"zakaria-backend/internal/apperr"
	"zakaria-backend/internal/config"

	"github.com/gofiber/fiber/v2"
)

func unauthorized(msg string) error {
	return apperr.New(apperr.CodeUnauthorized, msg)
}

// JWTMiddleware verifies the bearer token and stores the caller as an
// access.Actor in c.Locals.
func JWTMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized("missing Authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return unauthorized("Authorization header must be 'Bearer <token>'")
		}

		claims, err := ParseToken(cfg.JWTSecret, parts[1])
		if err != nil {
			return unauthorized("invalid or expired token")
		}

		c.Locals(access.CtxActorKey, access.Actor{
			UserID: claims.UserID,
			Name:   claims.Name,
			Role:   claims.Role,
		})

		return c.Next()
	}
}
