package payments

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/cedar-wallet/cedar_wallet/internal/currency"
	"github.com/cedar-wallet/cedar_wallet/internal/helper"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	FromWalletID string          `json:"from_wallet_id" validate:"required"`
	ToWalletID   string          `json:"to_wallet_id" validate:"required_without=ToAddress"`
	ToAddress    string          `json:"to_address"`
	Currency     string          `json:"currency" validate:"required"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description" validate:"max=255"`
}

// P2P processes a wallet-to-wallet transfer.
func (h *Handler) P2P(c *fiber.Ctx) error {
	var req transferRequest
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

	res, err := h.service.Transfer(c.UserContext(), TransferInput{
		FromWalletID:    req.FromWalletID,
		ToWalletID:      req.ToWalletID,
		ToAddress:       req.ToAddress,
		Currency:        code,
		Amount:          req.Amount,
		Description:     req.Description,
		RequestorUserID: helper.CurrentUser(c),
	})
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction_id": res.Transaction.ID,
		"status":         res.Transaction.Status,
		"currency":       res.Transaction.Currency,
		"amount":         res.Transaction.Amount,
		"fee":            res.Transaction.Fee,
		"from_balance":   res.FromBalance,
		"completed_at":   res.CompletedAt,
	})
}
