package exchange

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/cedar-wallet/cedar_wallet/internal/currency"
	"github.com/cedar-wallet/cedar_wallet/internal/helper"
)

// Handler exposes quote, execution and rate endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type executeRequest struct {
	WalletID     string          `json:"wallet_id" validate:"required"`
	FromCurrency string          `json:"from_currency" validate:"required"`
	ToCurrency   string          `json:"to_currency" validate:"required"`
	Amount       decimal.Decimal `json:"amount"`
}

type rateRequest struct {
	FromCurrency string          `json:"from_currency" validate:"required"`
	ToCurrency   string          `json:"to_currency" validate:"required"`
	Rate         decimal.Decimal `json:"rate"`
	Source       string          `json:"source" validate:"max=64"`
	Timestamp    time.Time       `json:"timestamp"`
}

func pairFromQuery(c *fiber.Ctx) (Pair, error) {
	from, err := currency.Parse(c.Query("from"))
	if err != nil {
		return Pair{}, err
	}
	to, err := currency.Parse(c.Query("to"))
	if err != nil {
		return Pair{}, err
	}
	return Pair{From: from, To: to}, nil
}

// Quote prices ?amount= of ?from= in ?to=.
func (h *Handler) Quote(c *fiber.Ctx) error {
	pair, err := pairFromQuery(c)
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "amount must be a decimal")
	}
	q, err := h.service.Quote(c.UserContext(), pair.From, pair.To, amount)
	if err != nil {
		return err
	}
	return c.JSON(q)
}

// Execute converts funds held in one of the caller's wallets.
func (h *Handler) Execute(c *fiber.Ctx) error {
	var req executeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := helper.ValidateInput(req); err != nil {
		return err
	}
	from, err := currency.Parse(req.FromCurrency)
	if err != nil {
		return err
	}
	to, err := currency.Parse(req.ToCurrency)
	if err != nil {
		return err
	}

	exec, err := h.service.Execute(c.UserContext(), ExecuteInput{
		WalletID: req.WalletID,
		OwnerID:  helper.CurrentUser(c),
		From:     from,
		To:       to,
		Amount:   req.Amount,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(exec)
}

// Latest returns the newest snapshot for ?from=&to=.
func (h *Handler) Latest(c *fiber.Ctx) error {
	pair, err := pairFromQuery(c)
	if err != nil {
		return err
	}
	snap, err := h.service.Latest(c.UserContext(), pair)
	if err != nil {
		return err
	}
	return c.JSON(snap)
}

// History lists snapshots for ?from=&to=, newest first.
func (h *Handler) History(c *fiber.Ctx) error {
	pair, err := pairFromQuery(c)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	items, err := h.service.History(c.UserContext(), pair, limit)
	if err != nil {
		return err
	}
	if items == nil {
		items = []RateSnapshot{}
	}
	return c.JSON(fiber.Map{"items": items})
}

// Record accepts a snapshot pushed by a rate source. Internal route.
func (h *Handler) Record(c *fiber.Ctx) error {
	var req rateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := helper.ValidateInput(req); err != nil {
		return err
	}
	from, err := currency.Parse(req.FromCurrency)
	if err != nil {
		return err
	}
	to, err := currency.Parse(req.ToCurrency)
	if err != nil {
		return err
	}
	snap, err := h.service.Record(c.UserContext(), RateSnapshot{
		From:      from,
		To:        to,
		Rate:      req.Rate,
		Source:    req.Source,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(snap)
}
