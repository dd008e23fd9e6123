package routes

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/minibank/minibank/internal/account"
	"github.com/minibank/minibank/internal/auth"
	"github.com/minibank/minibank/internal/config"
	"github.com/minibank/minibank/internal/idempotency"
	"github.com/minibank/minibank/internal/identity"
	"github.com/minibank/minibank/internal/ledger"
	"github.com/minibank/minibank/internal/middleware"
	"github.com/minibank/minibank/internal/notification"
	"github.com/minibank/minibank/internal/transactions"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes. Without a
// database or Redis (development only) the ledger, user store and
// idempotency guard fall back to in-memory implementations.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	var store ledger.Store
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
	} else {
		store = ledger.NewInMemory()
	}

	var userRepo identity.Repository
	if d.DB != nil {
		userRepo = identity.NewPostgresRepository(d.DB)
	} else {
		userRepo = identity.NewMemoryRepository()
	}

	var guard idempotency.Guard
	if d.Cache != nil {
		guard = idempotency.NewRedisGuard(d.Cache, d.Cfg.IdempotencyTTL)
	} else {
		guard = idempotency.NewMemory(d.Cfg.IdempotencyTTL)
	}

	identitySvc := identity.NewService(userRepo)
	authSvc := auth.NewService(d.Cfg)
	accountSvc := account.NewService(store, userRepo)
	notifier := notification.NewLoggerNotifier(d.Logger)
	processor := transactions.NewService(store, guard, notifier, d.Logger)

	authHandler := auth.NewHandler(identitySvc, authSvc)
	accountHandler := account.NewHandler(accountSvc)
	txHandler := transactions.NewHandler(processor, accountSvc)

	api := app.Group("/api/v1")

	rateLimiter := middleware.LoginRateLimit(d.Cache, 5)
	RegisterAuthRoutes(api, authHandler, rateLimiter)

	jwtmw := middleware.JWTAuth(d.Cfg, userRepo)
	protected := api.Group("", jwtmw)
	RegisterAccountRoutes(protected, accountHandler, txHandler)

	return nil
}
