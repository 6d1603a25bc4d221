package routes

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/cedar-wallet/cedar_wallet/internal/balance"
	"github.com/cedar-wallet/cedar_wallet/internal/currency"
	"github.com/cedar-wallet/cedar_wallet/internal/exchange"
	"github.com/cedar-wallet/cedar_wallet/internal/funding"
	"github.com/cedar-wallet/cedar_wallet/internal/helper"
	"github.com/cedar-wallet/cedar_wallet/internal/ledger"
	"github.com/cedar-wallet/cedar_wallet/internal/settlement"
	"github.com/cedar-wallet/cedar_wallet/internal/wallet"
)

type errorMapping struct {
	target error
	status int
	code   string
	// message replaces err.Error() when the error text must not reach clients.
	message string
}

// errorMappings is checked in order with errors.Is.
var errorMappings = []errorMapping{
	{balance.ErrConcurrencyConflict, http.StatusServiceUnavailable, "CONCURRENCY_CONFLICT", ""},
	{ledger.ErrSystemLiquidity, http.StatusServiceUnavailable, "SYSTEM_LIQUIDITY_UNAVAILABLE", "payout temporarily unavailable"},
	{balance.ErrInsufficientAvailableBalance, http.StatusUnprocessableEntity, "INSUFFICIENT_AVAILABLE_BALANCE", ""},
	{balance.ErrInvalidAmount, http.StatusUnprocessableEntity, "INVALID_AMOUNT", ""},
	{currency.ErrTooPrecise, http.StatusUnprocessableEntity, "INVALID_AMOUNT", ""},
	{currency.ErrUnsupported, http.StatusUnprocessableEntity, "UNSUPPORTED_CURRENCY", ""},
	{ledger.ErrWalletInactive, http.StatusUnprocessableEntity, "WALLET_INACTIVE", ""},
	{ledger.ErrInvalidReference, http.StatusUnprocessableEntity, "INVALID_REFERENCE", ""},
	{exchange.ErrInvalidConversion, http.StatusUnprocessableEntity, "INVALID_CONVERSION", ""},
	{funding.ErrInvalidDestination, http.StatusUnprocessableEntity, "INVALID_DESTINATION", ""},
	{settlement.ErrInvalidSignal, http.StatusUnprocessableEntity, "INVALID_SIGNAL", ""},
	{wallet.ErrInvalidWallet, http.StatusUnprocessableEntity, "VALIDATION_FAILED", ""},
	{wallet.ErrWalletNotFound, http.StatusNotFound, "WALLET_NOT_FOUND", ""},
	{balance.ErrBalanceNotFound, http.StatusNotFound, "BALANCE_NOT_FOUND", ""},
	{ledger.ErrTransactionNotFound, http.StatusNotFound, "TRANSACTION_NOT_FOUND", ""},
	{exchange.ErrRateNotFound, http.StatusNotFound, "RATE_NOT_FOUND", ""},
	{wallet.ErrDuplicateAddress, http.StatusConflict, "DUPLICATE_ADDRESS", ""},
	{ledger.ErrInvalidStateTransition, http.StatusConflict, "INVALID_STATE_TRANSITION", ""},
	{ledger.ErrSettlementReferenceConflict, http.StatusConflict, "SETTLEMENT_REFERENCE_CONFLICT", ""},
	{ledger.ErrDuplicateTransaction, http.StatusConflict, "DUPLICATE_TRANSACTION", ""},
	{wallet.ErrNotOwner, http.StatusForbidden, "FORBIDDEN", ""},
	{funding.ErrSubmissionFailed, http.StatusBadGateway, "SETTLEMENT_BACKEND_UNAVAILABLE", ""},
}

// ErrorHandler renders every handler error as {"error": {"code", "message"}}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return helper.WriteError(c, fe.Code, codeForStatus(fe.Code), fe.Message)
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return helper.WriteError(c, http.StatusUnprocessableEntity, "VALIDATION_FAILED", ve.Error())
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			if m.status == http.StatusServiceUnavailable {
				c.Set(fiber.HeaderRetryAfter, "1")
			}
			msg := m.message
			if msg == "" {
				msg = err.Error()
			}
			return helper.WriteError(c, m.status, m.code, msg)
		}
	}
	return helper.WriteError(c, http.StatusInternalServerError, "INTERNAL", "internal server error")
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusUpgradeRequired:
		return "UPGRADE_REQUIRED"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusServiceUnavailable:
		return "UNAVAILABLE"
	}
	if status >= http.StatusInternalServerError {
		return "INTERNAL"
	}
	return "REQUEST_FAILED"
}
