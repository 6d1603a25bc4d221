package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cedar-wallet/cedar_wallet/internal/exchange"
	"github.com/cedar-wallet/cedar_wallet/internal/funding"
	"github.com/cedar-wallet/cedar_wallet/internal/ledger"
	"github.com/cedar-wallet/cedar_wallet/internal/settlement"
)

// RegisterInternalRoutes wires the service-token routes used by the
// settlement backend, the rate source and operators.
func RegisterInternalRoutes(r fiber.Router, tx *ledger.Handler, s *settlement.Handler, f *funding.Handler, x *exchange.Handler) {
	r.Post("/transactions/:transactionId/confirm", tx.Confirm)
	r.Post("/transactions/:transactionId/fail", tx.Fail)
	r.Post("/transactions/:transactionId/confirmations", tx.IncrementConfirmations)
	r.Post("/transactions/:transactionId/reference", tx.SetReference)
	r.Get("/transactions/by-reference/:reference", tx.GetByReference)
	r.Post("/settlement/signals", s.Signal)
	r.Post("/deposits", f.Deposit)
	r.Post("/exchange/rates", x.Record)
}
