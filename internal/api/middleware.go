package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/lexiqai/pronunciation-gateway/internal/observability"
)

const (
	// RequestIDHeader carries the correlation ID in and out of the service
	RequestIDHeader = "X-Request-ID"

	loggerKey = "logger"
)

// RequestLogger tags each request with a correlation ID and logs its outcome
func RequestLogger(base zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		requestID := c.Get(RequestIDHeader)
		if requestID == "" {
			requestID = observability.NewCorrelationID()
		}
		logger := observability.WithCorrelationID(base, requestID)
		c.Locals(loggerKey, logger)
		c.Set(RequestIDHeader, requestID)

		err := c.Next()

		statusCode := c.Response().StatusCode()
		if err != nil {
			// The error handler has not run yet; report what it will send
			statusCode = fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				statusCode = fe.Code
			}
		}

		var event *zerolog.Event
		switch {
		case statusCode >= 500:
			event = logger.Error()
		case statusCode >= 400:
			event = logger.Warn()
		default:
			event = logger.Info()
		}
		if err != nil {
			event = event.Err(err)
		}
		event.
			Str("http_method", c.Method()).
			Str("uri", c.OriginalURL()).
			Int("status_code", statusCode).
			Int64("latency_ms", time.Since(start).Milliseconds()).
			Str("client_ip", c.IP()).
			Msg("Request completed")

		return err
	}
}

// requestLogger returns the per-request logger installed by RequestLogger
func requestLogger(c *fiber.Ctx) zerolog.Logger {
	if logger, ok := c.Locals(loggerKey).(zerolog.Logger); ok {
		return logger
	}
	return observability.GetLogger()
}
