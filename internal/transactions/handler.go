package transactions

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/minibank/minibank/internal/account"
	"github.com/minibank/minibank/internal/ledger"
	"github.com/minibank/minibank/internal/money"
)

const idempotencyKeyHeader = "Idempotency-Key"

// Handler exposes deposit/withdraw/balance/history endpoints.
type Handler struct {
	service  *Service
	accounts *account.Service
}

// NewHandler builds a transactions HTTP handler.
func NewHandler(service *Service, accounts *account.Service) *Handler {
	return &Handler{service: service, accounts: accounts}
}

type mutationRequest struct {
	AccountID      string       `json:"account_id"`
	Amount         money.Amount `json:"amount"`
	IdempotencyKey string       `json:"idempotency_key"`
}

type transactionResponse struct {
	Success       bool         `json:"success"`
	TransactionID int64        `json:"transaction_id"`
	AccountID     string       `json:"account_id"`
	Kind          string       `json:"kind"`
	Amount        money.Amount `json:"amount"`
	Balance       money.Amount `json:"balance"`
}

// Deposit credits the caller's account.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	return h.mutate(c, ledger.KindDeposit)
}

// Withdraw debits the caller's account.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	return h.mutate(c, ledger.KindWithdraw)
}

func (h *Handler) mutate(c *fiber.Ctx, kind ledger.Kind) error {
	var req mutationRequest
	if err := c.BodyParser(&req); err != nil {
		if errors.Is(err, money.ErrMalformed) {
			return fiber.NewError(http.StatusBadRequest, "invalid amount")
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.AccountID == "" {
		return fiber.NewError(http.StatusBadRequest, "account_id is required")
	}

	userID, _ := c.Locals("user_id").(string)
	if err := h.accounts.Authorize(c.UserContext(), req.AccountID, userID); err != nil {
		return mapDomainError(err)
	}

	key := req.IdempotencyKey
	if header := c.Get(idempotencyKeyHeader); header != "" {
		key = header
	}

	tx, err := h.service.Process(c.UserContext(), ProcessInput{
		AccountID:      req.AccountID,
		Amount:         int64(req.Amount),
		Kind:           kind,
		IdempotencyKey: key,
	})
	if err != nil {
		return mapDomainError(err)
	}

	balance, err := h.service.Balance(c.UserContext(), req.AccountID)
	if err != nil {
		return mapDomainError(err)
	}

	amount := tx.SignedAmount
	if amount < 0 {
		amount = -amount
	}
	return c.Status(http.StatusOK).JSON(transactionResponse{
		Success:       true,
		TransactionID: tx.ID,
		AccountID:     req.AccountID,
		Kind:          string(tx.Kind),
		Amount:        money.Amount(amount),
		Balance:       money.Amount(balance),
	})
}

// Balance returns the current balance of the caller's account.
func (h *Handler) Balance(c *fiber.Ctx) error {
	accountID := c.Params("accountId")
	userID, _ := c.Locals("user_id").(string)

	if err := h.accounts.Authorize(c.UserContext(), accountID, userID); err != nil {
		return mapDomainError(err)
	}

	balance, err := h.service.Balance(c.UserContext(), accountID)
	if err != nil {
		return mapDomainError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success":    true,
		"account_id": accountID,
		"balance":    money.Amount(balance),
	})
}

// History lists the committed transactions of the caller's account.
func (h *Handler) History(c *fiber.Ctx) error {
	accountID := c.Params("accountId")
	userID, _ := c.Locals("user_id").(string)

	if err := h.accounts.Authorize(c.UserContext(), accountID, userID); err != nil {
		return mapDomainError(err)
	}

	txs, err := h.service.History(c.UserContext(), accountID)
	if err != nil {
		return mapDomainError(err)
	}

	out := make([]fiber.Map, 0, len(txs))
	for _, tx := range txs {
		out = append(out, fiber.Map{
			"id":            tx.ID,
			"kind":          string(tx.Kind),
			"signed_amount": money.Format(tx.SignedAmount),
			"created_at":    tx.CreatedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"success":      true,
		"account_id":   accountID,
		"transactions": out,
	})
}

func mapDomainError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "account not found")
	case errors.Is(err, ledger.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, "amount must be positive")
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusBadRequest, "insufficient funds")
	case errors.Is(err, account.ErrNotOwner):
		return fiber.NewError(http.StatusForbidden, "not owner of account")
	case errors.Is(err, ledger.ErrConflict):
		return fiber.NewError(http.StatusConflict, "idempotency key conflict")
	case errors.Is(err, ledger.ErrStorageUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, "storage unavailable")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
