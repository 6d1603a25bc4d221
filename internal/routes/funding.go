package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cedar-wallet/cedar_wallet/internal/exchange"
	"github.com/cedar-wallet/cedar_wallet/internal/funding"
)

// RegisterFundingRoutes wires withdrawal and exchange endpoints.
func RegisterFundingRoutes(r fiber.Router, f *funding.Handler, x *exchange.Handler, limit fiber.Handler) {
	r.Post("/wallets/:walletId/withdrawals", limit, f.Withdraw)
	r.Get("/exchange/quote", x.Quote)
	r.Post("/exchange", limit, x.Execute)
	r.Get("/exchange/rates/latest", x.Latest)
	r.Get("/exchange/rates/history", x.History)
}
