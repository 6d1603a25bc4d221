package middleware

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

const internalTokenHeader = "X-Internal-Token"

// InternalToken guards service-to-service routes. The presented token is
// checked against a bcrypt hash so the plaintext never lives in config.
// An empty hash rejects every request.
func InternalToken(hash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Get(internalTokenHeader)
		if token == "" || hash == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing service token")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid service token")
		}
		return c.Next()
	}
}
