package server

import (
	"errors"
	"strings"

	"github.com/celemqhele/cvtailorpro/internal/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const localUserID = "user_id"

var errMissingToken = errors.New("missing bearer token")

// Auth verifies HS256 access tokens signed with the Supabase JWT secret and
// stores the subject in the request locals. skip exempts routes that carry
// their own verification.
func Auth(secret string, log *zap.Logger, skip func(c *fiber.Ctx) bool) fiber.Handler {
	key := []byte(secret)

	return func(c *fiber.Ctx) error {
		if skip != nil && skip(c) {
			return c.Next()
		}

		token, err := bearer(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}

		claims := jwt.MapClaims{}
		_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil {
			log.Debug("token rejected", zap.String(logger.FieldRequestID, requestID(c)), zap.Error(err))
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		sub, _ := claims.GetSubject()
		c.Locals(localUserID, sub)
		return c.Next()
	}
}

func bearer(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", errMissingToken
	}
	return strings.TrimSpace(token), nil
}
