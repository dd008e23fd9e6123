package routes_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/minibank/minibank/internal/config"
	"github.com/minibank/minibank/internal/logging"
	"github.com/minibank/minibank/internal/server"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	cfg := config.Config{
		AppName:        "minibank-test",
		AppEnv:         "development",
		Port:           "0",
		JWTSecret:      "test-secret",
		AccessTokenTTL: time.Hour,
		IdempotencyTTL: time.Minute,
		ShutdownPeriod: time.Second,
	}

	srv, err := server.New(cfg, nil, nil, logging.Discard())
	if err != nil {
		t.Fatalf("build server: %v", err)
	}
	return srv.App()
}

func doJSON(t *testing.T, app *fiber.App, method, path, token, body string, extra map[string]string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var decoded map[string]any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &decoded); err != nil {
			t.Fatalf("decode %s %s response %q: %v", method, path, payload, err)
		}
	}
	return resp.StatusCode, decoded
}

func registerAndLogin(t *testing.T, app *fiber.App, username, email string) (userID, token string) {
	t.Helper()

	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/register", "",
		fmt.Sprintf(`{"username":%q,"email":%q,"password":"correct horse"}`, username, email), nil)
	if status != http.StatusCreated {
		t.Fatalf("register: status %d body %v", status, body)
	}
	userID, _ = body["user_id"].(string)

	status, body = doJSON(t, app, fiber.MethodPost, "/api/v1/login", "",
		fmt.Sprintf(`{"email":%q,"password":"correct horse"}`, email), nil)
	if status != http.StatusOK {
		t.Fatalf("login: status %d body %v", status, body)
	}
	token, _ = body["token"].(string)
	if token == "" {
		t.Fatalf("login returned no token: %v", body)
	}
	return userID, token
}

func createAccount(t *testing.T, app *fiber.App, token string) string {
	t.Helper()
	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/accounts", token, "", nil)
	if status != http.StatusCreated {
		t.Fatalf("create account: status %d body %v", status, body)
	}
	accountID, _ := body["account_id"].(string)
	if accountID == "" {
		t.Fatalf("no account id in %v", body)
	}
	return accountID
}

func TestDepositWithdrawBalanceFlow(t *testing.T) {
	app := newTestApp(t)
	_, token := registerAndLogin(t, app, "alice", "alice@example.com")
	accountID := createAccount(t, app, token)

	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/deposit", token,
		fmt.Sprintf(`{"account_id":%q,"amount":"100.00"}`, accountID), nil)
	if status != http.StatusOK {
		t.Fatalf("deposit: status %d body %v", status, body)
	}
	if body["success"] != true || body["balance"] != "100.00" {
		t.Fatalf("unexpected deposit response: %v", body)
	}

	// Overdraw is rejected and the balance stays put.
	status, body = doJSON(t, app, fiber.MethodPost, "/api/v1/withdraw", token,
		fmt.Sprintf(`{"account_id":%q,"amount":"150.00"}`, accountID), nil)
	if status != http.StatusBadRequest {
		t.Fatalf("overdraw: status %d body %v", status, body)
	}
	if body["success"] != false || body["error"] != "insufficient funds" {
		t.Fatalf("unexpected overdraw envelope: %v", body)
	}

	status, body = doJSON(t, app, fiber.MethodGet, "/api/v1/balance/"+accountID, token, "", nil)
	if status != http.StatusOK {
		t.Fatalf("balance: status %d body %v", status, body)
	}
	if body["balance"] != "100.00" {
		t.Fatalf("balance = %v, want 100.00", body["balance"])
	}

	status, body = doJSON(t, app, fiber.MethodPost, "/api/v1/withdraw", token,
		fmt.Sprintf(`{"account_id":%q,"amount":"100.00"}`, accountID), nil)
	if status != http.StatusOK {
		t.Fatalf("withdraw: status %d body %v", status, body)
	}
	if body["balance"] != "0.00" {
		t.Fatalf("balance after full withdrawal = %v, want 0.00", body["balance"])
	}
}

func TestDepositIdempotencyKey(t *testing.T) {
	app := newTestApp(t)
	_, token := registerAndLogin(t, app, "alice", "alice@example.com")
	accountID := createAccount(t, app, token)

	payload := fmt.Sprintf(`{"account_id":%q,"amount":"50.00"}`, accountID)
	headers := map[string]string{"Idempotency-Key": "k1"}

	status, first := doJSON(t, app, fiber.MethodPost, "/api/v1/deposit", token, payload, headers)
	if status != http.StatusOK {
		t.Fatalf("deposit: status %d body %v", status, first)
	}
	status, second := doJSON(t, app, fiber.MethodPost, "/api/v1/deposit", token, payload, headers)
	if status != http.StatusOK {
		t.Fatalf("retried deposit: status %d body %v", status, second)
	}
	if first["transaction_id"] != second["transaction_id"] {
		t.Fatalf("retry produced a new transaction: %v then %v", first["transaction_id"], second["transaction_id"])
	}

	_, body := doJSON(t, app, fiber.MethodGet, "/api/v1/balance/"+accountID, token, "", nil)
	if body["balance"] != "50.00" {
		t.Fatalf("balance = %v, want 50.00 (applied once)", body["balance"])
	}

	_, body = doJSON(t, app, fiber.MethodGet, "/api/v1/transactions/"+accountID, token, "", nil)
	txs, _ := body["transactions"].([]any)
	if len(txs) != 1 {
		t.Fatalf("expected one committed transaction, got %v", body["transactions"])
	}
}

func TestOwnershipEnforced(t *testing.T) {
	app := newTestApp(t)
	_, aliceToken := registerAndLogin(t, app, "alice", "alice@example.com")
	_, bobToken := registerAndLogin(t, app, "bob", "bob@example.com")
	accountID := createAccount(t, app, aliceToken)

	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/deposit", bobToken,
		fmt.Sprintf(`{"account_id":%q,"amount":"10.00"}`, accountID), nil)
	if status != http.StatusForbidden {
		t.Fatalf("cross-user deposit: status %d body %v", status, body)
	}
	status, _ = doJSON(t, app, fiber.MethodGet, "/api/v1/balance/"+accountID, bobToken, "", nil)
	if status != http.StatusForbidden {
		t.Fatalf("cross-user balance: status %d", status)
	}
}

func TestAuthRequired(t *testing.T) {
	app := newTestApp(t)

	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/accounts", "", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("unauthenticated create account: status %d", status)
	}
	if body["success"] != false {
		t.Fatalf("error envelope missing success=false: %v", body)
	}

	status, _ = doJSON(t, app, fiber.MethodPost, "/api/v1/login", "",
		`{"email":"nobody@example.com","password":"whatever"}`, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("login with unknown user: status %d", status)
	}
}

func TestInvalidAmountRejected(t *testing.T) {
	app := newTestApp(t)
	_, token := registerAndLogin(t, app, "alice", "alice@example.com")
	accountID := createAccount(t, app, token)

	for _, amount := range []string{`"-10.00"`, `"0"`, `"1.005"`, `"abc"`} {
		status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/deposit", token,
			fmt.Sprintf(`{"account_id":%q,"amount":%s}`, accountID, amount), nil)
		if status != http.StatusBadRequest {
			t.Fatalf("amount %s: status %d body %v", amount, status, body)
		}
		if body["success"] != false {
			t.Fatalf("amount %s: envelope %v", amount, body)
		}
	}
}
