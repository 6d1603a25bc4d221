package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/cedar-wallet/cedar_wallet/internal/helper"
)

// JWTAuth validates HS256 access tokens issued by the identity service and
// stores the subject as the current user. Browsers cannot set headers on a
// websocket handshake, so a token query parameter is accepted as well.
func JWTAuth(secret []byte) fiber.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	return func(c *fiber.Ctx) error {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		if len(secret) == 0 {
			return fiber.NewError(http.StatusUnauthorized, "authentication is not configured")
		}

		var claims jwt.RegisteredClaims
		if _, err := parser.ParseWithClaims(tokenStr, &claims, keyFunc); err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return fiber.NewError(http.StatusUnauthorized, "token expired")
			}
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		if claims.Subject == "" {
			return fiber.NewError(http.StatusUnauthorized, "token has no subject")
		}

		c.Locals(helper.UserIDKey, claims.Subject)
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	authz := c.Get(fiber.HeaderAuthorization)
	if len(authz) > len("bearer ") && strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return c.Query("token")
}
