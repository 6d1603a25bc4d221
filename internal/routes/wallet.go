package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cedar-wallet/cedar_wallet/internal/ledger"
	"github.com/cedar-wallet/cedar_wallet/internal/wallet"
)

// RegisterWalletRoutes wires wallet, balance and wallet history endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, tx *ledger.Handler) {
	r.Post("/wallets", h.Create)
	r.Get("/wallets", h.List)
	r.Get("/wallets/by-address/:address", h.GetByAddress)
	r.Get("/wallets/:walletId", h.Get)
	r.Patch("/wallets/:walletId/active", h.SetActive)
	r.Get("/wallets/:walletId/balances", h.Balances)
	r.Get("/wallets/:walletId/balances/:currency", h.Balance)
	r.Get("/wallets/:walletId/transactions", tx.ListByWallet)
}
