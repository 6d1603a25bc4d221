package funding

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/cedar-wallet/cedar_wallet/internal/currency"
	"github.com/cedar-wallet/cedar_wallet/internal/helper"
	"github.com/cedar-wallet/cedar_wallet/internal/ledger"
)

// Handler exposes HTTP endpoints for deposits and withdrawals.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Withdraw moves funds from one of the caller's wallets to an external address.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req WithdrawalRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := helper.ValidateInput(req); err != nil {
		return err
	}
	code, err := currency.Parse(req.Currency)
	if err != nil {
		return err
	}

	result, err := h.service.Withdraw(c.UserContext(), WithdrawInput{
		WalletID:           c.Params("walletId"),
		OwnerID:            helper.CurrentUser(c),
		Currency:           code,
		Amount:             req.Amount,
		DestinationAddress: req.DestinationAddress,
		Description:        req.Description,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(toResponse(result))
}

// Deposit records a deposit notice from the settlement backend. Internal route.
// A repeated notice answers 200 with the original transaction.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req DepositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := helper.ValidateInput(req); err != nil {
		return err
	}
	code, err := currency.Parse(req.Currency)
	if err != nil {
		return err
	}

	result, err := h.service.Deposit(c.UserContext(), DepositInput{
		WalletID:      req.WalletID,
		WalletAddress: req.WalletAddress,
		Currency:      code,
		Amount:        req.Amount,
		Reference:     req.Reference,
	})
	if errors.Is(err, ledger.ErrDuplicateTransaction) {
		return c.Status(http.StatusOK).JSON(toResponse(result))
	}
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toResponse(result))
}

func toResponse(result FundingResult) FundingResponse {
	t := result.Transaction
	return FundingResponse{
		TransactionID: t.ID,
		Status:        string(t.Status),
		Currency:      string(t.Currency),
		Amount:        t.Amount,
		Fee:           t.Fee,
		Reference:     t.SettlementReference,
		WalletBalance: result.Balance.Amount,
		Available:     result.Balance.Available(),
	}
}
