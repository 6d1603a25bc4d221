package wallet

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/cedar-wallet/cedar_wallet/internal/balance"
	"github.com/cedar-wallet/cedar_wallet/internal/currency"
	"github.com/cedar-wallet/cedar_wallet/internal/helper"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Address             string `json:"address" validate:"required,max=128"`
	WalletType          string `json:"wallet_type" validate:"required,oneof=LBP_DIGITAL USDT HYBRID"`
	PublicKey           string `json:"public_key" validate:"required"`
	EncryptedPrivateKey string `json:"encrypted_private_key"`
}

type activeRequest struct {
	Active *bool `json:"is_active" validate:"required"`
}

// Create provisions a wallet for the authenticated owner.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := helper.ValidateInput(req); err != nil {
		return err
	}
	wallet, err := h.service.Create(c.UserContext(), CreateInput{
		OwnerID:             helper.CurrentUser(c),
		Address:             req.Address,
		Kind:                Kind(req.WalletType),
		PublicKey:           req.PublicKey,
		EncryptedPrivateKey: req.EncryptedPrivateKey,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(wallet)
}

// List returns the caller's wallets.
func (h *Handler) List(c *fiber.Ctx) error {
	wallets, err := h.service.List(c.UserContext(), helper.CurrentUser(c))
	if err != nil {
		return err
	}
	if wallets == nil {
		wallets = []Wallet{}
	}
	return c.JSON(fiber.Map{"items": wallets})
}

// Get returns one of the caller's wallets.
func (h *Handler) Get(c *fiber.Ctx) error {
	wallet, err := h.service.GetOwned(c.UserContext(), c.Params("walletId"), helper.CurrentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(wallet)
}

// GetByAddress resolves any wallet by address so it can be used as a
// transfer destination.
func (h *Handler) GetByAddress(c *fiber.Ctx) error {
	wallet, err := h.service.GetByAddress(c.UserContext(), c.Params("address"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"id":          wallet.ID,
		"address":     wallet.Address,
		"wallet_type": wallet.Kind,
		"is_active":   wallet.Active,
	})
}

// SetActive toggles the active flag of one of the caller's wallets.
func (h *Handler) SetActive(c *fiber.Ctx) error {
	var req activeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := helper.ValidateInput(req); err != nil {
		return err
	}
	ctx := c.UserContext()
	if _, err := h.service.GetOwned(ctx, c.Params("walletId"), helper.CurrentUser(c)); err != nil {
		return err
	}
	wallet, err := h.service.SetActive(ctx, c.Params("walletId"), *req.Active)
	if err != nil {
		return err
	}
	return c.JSON(wallet)
}

// Balances returns every balance of the wallet.
func (h *Handler) Balances(c *fiber.Ctx) error {
	ctx := c.UserContext()
	walletID := c.Params("walletId")
	if _, err := h.service.GetOwned(ctx, walletID, helper.CurrentUser(c)); err != nil {
		return err
	}
	balances, err := h.service.Balances(ctx, walletID)
	if err != nil {
		return err
	}
	items := make([]fiber.Map, 0, len(balances))
	for _, b := range balances {
		items = append(items, balanceView(b))
	}
	return c.JSON(fiber.Map{"wallet_id": walletID, "items": items})
}

// Balance returns one balance of the wallet.
func (h *Handler) Balance(c *fiber.Ctx) error {
	ctx := c.UserContext()
	walletID := c.Params("walletId")
	code, err := currency.Parse(c.Params("currency"))
	if err != nil {
		return err
	}
	if _, err := h.service.GetOwned(ctx, walletID, helper.CurrentUser(c)); err != nil {
		return err
	}
	b, err := h.service.Balance(ctx, walletID, code)
	if err != nil {
		return err
	}
	return c.JSON(balanceView(b))
}

func balanceView(b balance.Balance) fiber.Map {
	return fiber.Map{
		"wallet_id":     b.WalletID,
		"currency":      b.Currency,
		"balance":       b.Amount.String(),
		"locked_amount": b.LockedAmount.String(),
		"available":     b.Available().String(),
		"updated_at":    b.UpdatedAt,
	}
}
