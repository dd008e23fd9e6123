package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/minibank/minibank/internal/account"
	"github.com/minibank/minibank/internal/transactions"
)

// RegisterAccountRoutes wires the authenticated ledger endpoints.
func RegisterAccountRoutes(r fiber.Router, accounts *account.Handler, txs *transactions.Handler) {
	r.Post("/accounts", accounts.Create)
	r.Post("/deposit", txs.Deposit)
	r.Post("/withdraw", txs.Withdraw)
	r.Get("/balance/:accountId", txs.Balance)
	r.Get("/transactions/:accountId", txs.History)
}
