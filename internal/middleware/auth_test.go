package middleware

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cedar-wallet/cedar_wallet/internal/helper"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func whoamiApp() *fiber.App {
	app := fiber.New()
	app.Get("/me", JWTAuth(testSecret), func(c *fiber.Ctx) error {
		return c.SendString(helper.CurrentUser(c))
	})
	return app
}

func TestJWTAuth(t *testing.T) {
	app := whoamiApp()
	valid := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+valid)
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "user-1", string(body))

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/me?token="+valid, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "query token for websocket handshakes")

	cases := map[string]string{
		"missing": "",
		"expired": signToken(t, jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{
			Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}),
		"no expiry":  signToken(t, jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{Subject: "user-1"}),
		"wrong key":  signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}),
		"no subject": signToken(t, jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}),
		"garbage":    "not.a.jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
			if token != "" {
				req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestInternalToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("service-token"), bcrypt.MinCost)
	require.NoError(t, err)

	app := fiber.New()
	app.Post("/internal", InternalToken(string(hash)), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	app.Post("/closed", InternalToken(""), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	for _, tc := range []struct {
		path, token string
		want        int
	}{
		{"/internal", "service-token", fiber.StatusNoContent},
		{"/internal", "wrong", fiber.StatusUnauthorized},
		{"/internal", "", fiber.StatusUnauthorized},
		{"/closed", "service-token", fiber.StatusUnauthorized},
	} {
		req := httptest.NewRequest(fiber.MethodPost, tc.path, nil)
		if tc.token != "" {
			req.Header.Set(internalTokenHeader, tc.token)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, tc.want, resp.StatusCode, "%s with %q", tc.path, tc.token)
	}
}
