package account

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/minibank/minibank/internal/ledger"
	"github.com/minibank/minibank/internal/money"
)

// Handler exposes account provisioning endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create opens an account owned by the authenticated user.
func (h *Handler) Create(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}

	acct, err := h.service.Create(c.UserContext(), userID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "user not found")
		}
		if errors.Is(err, ledger.ErrStorageUnavailable) {
			return fiber.NewError(http.StatusServiceUnavailable, "storage unavailable")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"success":    true,
		"account_id": acct.ID,
		"balance":    money.Amount(acct.Balance),
		"created_at": acct.CreatedAt,
	})
}
