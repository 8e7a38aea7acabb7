package access

import (
	"zakaria-backend/internal/apperr"

	"github.com/gofiber/fiber/v2"
)

const CtxActorKey = "actor"

// ActorFromCtx returns the actor stored by the auth middleware.
func ActorFromCtx(c *fiber.Ctx) (Actor, bool) {
	actor, ok := c.Locals(CtxActorKey).(Actor)
	return actor, ok
}

// MustActor is ActorFromCtx returning an UNAUTHORIZED error when absent.
func MustActor(c *fiber.Ctx) (Actor, error) {
	actor, ok := ActorFromCtx(c)
	if !ok {
		return Actor{}, apperr.New(apperr.CodeUnauthorized, "authentication required")
	}
	return actor, nil
}

// Require rejects callers whose role can never perform op. Owner-based rules
// pass through; the handler finishes the check once the resource is loaded.
func Require(op Operation) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := MustActor(c)
		if err != nil {
			return err
		}
		if Can(actor.Role, op) {
			return c.Next()
		}
		if rule, ok := policy[op]; ok && rule.Owner {
			return c.Next()
		}
		return apperr.Forbidden("role %q is not allowed to perform %s", actor.Role, op)
	}
}
