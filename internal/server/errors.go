package server

import (
	"errors"

	"github.com/celemqhele/cvtailorpro/internal/ai"
	"github.com/celemqhele/cvtailorpro/internal/analytics"
	"github.com/celemqhele/cvtailorpro/internal/fallback"
	"github.com/celemqhele/cvtailorpro/internal/logger"
	"github.com/celemqhele/cvtailorpro/internal/ocr"
	"github.com/celemqhele/cvtailorpro/internal/payments"
	"github.com/celemqhele/cvtailorpro/internal/pdf"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	msgExhausted = "all providers are currently unavailable, please try again later"
	msgUpstream  = "upstream service request failed"
)

var (
	invalidRequest = []error{
		ai.ErrInvalidRequest,
		pdf.ErrInvalidRequest,
		ocr.ErrInvalidRequest,
		payments.ErrInvalidRequest,
		payments.ErrInvalidSignature,
		analytics.ErrInvalidRequest,
	}
	notConfigured = []error{
		fallback.ErrNotConfigured,
		pdf.ErrRendererDisabled,
		ocr.ErrNotConfigured,
		payments.ErrNotConfigured,
		analytics.ErrNotConfigured,
	}
)

// statusFor maps an error returned by a handler to the response status.
// Anything unrecognised is treated as an upstream failure.
func statusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}

	if isAny(err, notConfigured) {
		return fiber.StatusInternalServerError
	}
	if isAny(err, invalidRequest) {
		return fiber.StatusBadRequest
	}
	if errors.Is(err, fallback.ErrExhausted) {
		return fiber.StatusServiceUnavailable
	}

	return fiber.StatusBadGateway
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// message returns the client-facing text for err. Upstream details stay in
// the logs.
func message(status int, err error) string {
	switch status {
	case fiber.StatusServiceUnavailable:
		return msgExhausted
	case fiber.StatusBadGateway:
		return msgUpstream
	default:
		return err.Error()
	}
}

func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := statusFor(err)

		fields := []zap.Field{
			zap.String(logger.FieldRequestID, requestID(c)),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Error(err),
		}
		if status >= fiber.StatusInternalServerError {
			log.Error("request failed", fields...)
		} else {
			log.Debug("request rejected", fields...)
		}

		return c.Status(status).JSON(fiber.Map{"error": message(status, err)})
	}
}
