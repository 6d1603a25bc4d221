package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/cedar-wallet/cedar_wallet/internal/balance"
	"github.com/cedar-wallet/cedar_wallet/internal/funding"
	"github.com/cedar-wallet/cedar_wallet/internal/ledger"
	"github.com/cedar-wallet/cedar_wallet/internal/wallet"
)

func TestErrorHandlerMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"wrapped insufficient", fmt.Errorf("lock: %w", ledger.ErrInsufficientAvailableBalance), http.StatusUnprocessableEntity, "INSUFFICIENT_AVAILABLE_BALANCE"},
		{"conflict", errors.Join(balance.ErrConcurrencyConflict, errors.New("version mismatch")), http.StatusServiceUnavailable, "CONCURRENCY_CONFLICT"},
		{"system liquidity", fmt.Errorf("exchange payout: reserve funds on wal-system: %w", ledger.ErrSystemLiquidity), http.StatusServiceUnavailable, "SYSTEM_LIQUIDITY_UNAVAILABLE"},
		{"not owner", wallet.ErrNotOwner, http.StatusForbidden, "FORBIDDEN"},
		{"backend", fmt.Errorf("%w: timeout", funding.ErrSubmissionFailed), http.StatusBadGateway, "SETTLEMENT_BACKEND_UNAVAILABLE"},
		{"fiber error", fiber.NewError(http.StatusTooManyRequests, "slow down"), http.StatusTooManyRequests, "RATE_LIMITED"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
			app.Get("/", func(*fiber.Ctx) error { return tc.err })

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, resp.StatusCode)
			}
			var body struct {
				Error struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, body.Error.Code)
			}
			if tc.status == http.StatusServiceUnavailable && resp.Header.Get("Retry-After") != "1" {
				t.Fatalf("expected Retry-After 1, got %q", resp.Header.Get("Retry-After"))
			}
			if strings.Contains(body.Error.Message, "wal-system") {
				t.Fatalf("system wallet id leaked: %q", body.Error.Message)
			}
			if tc.status == http.StatusInternalServerError && body.Error.Message == "boom" {
				t.Fatalf("internal error details leaked")
			}
		})
	}
}
