package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cedar-wallet/cedar_wallet/internal/ledger"
	"github.com/cedar-wallet/cedar_wallet/internal/payments"
)

// RegisterPaymentRoutes wires transaction and payment endpoints. limit guards
// every route that moves funds.
func RegisterPaymentRoutes(r fiber.Router, tx *ledger.Handler, p *payments.Handler, limit fiber.Handler) {
	r.Post("/transactions", limit, tx.Create)
	r.Get("/transactions/:transactionId", tx.Get)
	r.Post("/payments/p2p", limit, p.P2P)
}
