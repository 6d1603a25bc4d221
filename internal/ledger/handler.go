package ledger

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/cedar-wallet/cedar_wallet/internal/currency"
	"github.com/cedar-wallet/cedar_wallet/internal/helper"
	"github.com/cedar-wallet/cedar_wallet/internal/wallet"
)

// OwnedWallets checks wallet ownership for the request layer.
type OwnedWallets interface {
	GetOwned(ctx context.Context, id, ownerID string) (wallet.Wallet, error)
}

// Handler exposes transaction endpoints.
type Handler struct {
	service *Service
	wallets OwnedWallets
}

// NewHandler constructs a transaction handler.
func NewHandler(service *Service, wallets OwnedWallets) *Handler {
	return &Handler{service: service, wallets: wallets}
}

type createRequest struct {
	FromWalletID string          `json:"from_wallet_id" validate:"required"`
	ToWalletID   string          `json:"to_wallet_id" validate:"required"`
	Currency     string          `json:"currency" validate:"required"`
	Amount       decimal.Decimal `json:"amount"`
	Fee          decimal.Decimal `json:"fee"`
	Description  string          `json:"description" validate:"max=255"`
}

type failRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

type referenceRequest struct {
	Reference string `json:"reference" validate:"required,max=128"`
}

// Create reserves funds on one of the caller's wallets and records a PENDING transfer.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
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
	ctx := c.UserContext()
	if _, err := h.wallets.GetOwned(ctx, req.FromWalletID, helper.CurrentUser(c)); err != nil {
		return err
	}

	t, err := h.service.CreateTransaction(ctx, CreateInput{
		FromWalletID: req.FromWalletID,
		ToWalletID:   req.ToWalletID,
		Currency:     code,
		Amount:       req.Amount,
		Fee:          req.Fee,
		Kind:         KindTransfer,
		Description:  req.Description,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(t)
}

// Get returns a transaction the caller is a party to.
func (h *Handler) Get(c *fiber.Ctx) error {
	ctx := c.UserContext()
	t, err := h.service.Get(ctx, c.Params("transactionId"))
	if err != nil {
		return err
	}
	uid := helper.CurrentUser(c)
	_, fromErr := h.wallets.GetOwned(ctx, t.FromWalletID, uid)
	_, toErr := h.wallets.GetOwned(ctx, t.ToWalletID, uid)
	if fromErr != nil && toErr != nil {
		// Do not reveal transactions of other users.
		return ErrTransactionNotFound
	}
	return c.JSON(t)
}

// ListByWallet returns the wallet's transactions, newest first.
func (h *Handler) ListByWallet(c *fiber.Ctx) error {
	ctx := c.UserContext()
	walletID := c.Params("walletId")
	if _, err := h.wallets.GetOwned(ctx, walletID, helper.CurrentUser(c)); err != nil {
		return err
	}

	page := helper.GetPagination[Transaction](c)
	status := Status(c.Query("status"))
	switch status {
	case "", StatusPending, StatusConfirmed, StatusFailed:
	default:
		return fiber.NewError(http.StatusBadRequest, "unknown status filter")
	}

	items, err := h.service.ListByWallet(ctx, walletID, ListFilter{Status: status, Limit: page.Size, Offset: page.Offset()})
	if err != nil {
		return err
	}
	if items != nil {
		page.Items = items
	}
	return c.JSON(page)
}

// Confirm settles a PENDING transaction. Internal route.
func (h *Handler) Confirm(c *fiber.Ctx) error {
	t, err := h.service.ConfirmTransaction(c.UserContext(), c.Params("transactionId"))
	if err != nil {
		return err
	}
	return c.JSON(t)
}

// Fail releases a PENDING transaction. Internal route.
func (h *Handler) Fail(c *fiber.Ctx) error {
	var req failRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	if err := helper.ValidateInput(req); err != nil {
		return err
	}
	t, err := h.service.FailTransaction(c.UserContext(), c.Params("transactionId"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(t)
}

// IncrementConfirmations records an external confirmation. Internal route.
func (h *Handler) IncrementConfirmations(c *fiber.Ctx) error {
	t, err := h.service.IncrementConfirmations(c.UserContext(), c.Params("transactionId"))
	if err != nil {
		return err
	}
	return c.JSON(t)
}

// SetReference attaches the settlement reference. Internal route.
func (h *Handler) SetReference(c *fiber.Ctx) error {
	var req referenceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := helper.ValidateInput(req); err != nil {
		return err
	}
	t, err := h.service.SetSettlementReference(c.UserContext(), c.Params("transactionId"), req.Reference)
	if err != nil {
		return err
	}
	return c.JSON(t)
}

// GetByReference looks a transaction up by settlement reference. Internal route.
func (h *Handler) GetByReference(c *fiber.Ctx) error {
	t, err := h.service.GetByReference(c.UserContext(), c.Params("reference"))
	if err != nil {
		return err
	}
	return c.JSON(t)
}
