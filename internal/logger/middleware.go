package logger

import (
	"errors"
	"time"

	"zakaria-backend/internal/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const RequestIDHeader = "X-Request-ID"

// Middleware logs every request and stores a request-scoped logger in the
// fiber user context.
func Middleware(log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		requestID := c.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDHeader, requestID)

		reqLog := log.With().Str("request_id", requestID).Logger()
		c.SetUserContext(WithContext(c.UserContext(), reqLog))

		err := c.Next()

		status := c.Response().StatusCode()
		var appErr *apperr.Error
		var fe *fiber.Error
		switch {
		case errors.As(err, &appErr):
			status = appErr.Code.HTTPStatus()
		case errors.As(err, &fe):
			status = fe.Code
		case err != nil:
			status = fiber.StatusInternalServerError
		}

		reqLog.Info().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("remote_addr", c.IP()).
			Msg("HTTP request")

		return err
	}
}
