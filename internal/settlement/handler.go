package settlement

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/cedar-wallet/cedar_wallet/internal/helper"
)

// Handler receives signals pushed by the settlement backend.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Signal applies one backend report. Internal route.
func (h *Handler) Signal(c *fiber.Ctx) error {
	var sig Signal
	if err := c.BodyParser(&sig); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := helper.ValidateInput(sig); err != nil {
		return err
	}
	t, err := h.service.Apply(c.UserContext(), sig)
	if err != nil {
		return err
	}
	return c.JSON(t)
}
