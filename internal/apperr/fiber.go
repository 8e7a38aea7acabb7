package apperr

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// FiberErrorHandler renders *Error and *fiber.Error as JSON and hides
// anything else behind a generic 500.
func FiberErrorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var appErr *Error
		if errors.As(err, &appErr) {
			if appErr.Code == CodeInternal {
				log.Error().Err(err).Str("path", c.Path()).Msg("internal error")
			}
			body := fiber.Map{
				"error": appErr.Message,
				"code":  appErr.Code,
			}
			if len(appErr.Metadata) > 0 {
				body["metadata"] = appErr.Metadata
			}
			return c.Status(appErr.Code.HTTPStatus()).JSON(body)
		}

		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{
				"error": fe.Message,
			})
		}

		log.Error().Err(err).Str("path", c.Path()).Msg("unexpected error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unexpected server error",
			"code":  CodeInternal,
		})
	}
}
