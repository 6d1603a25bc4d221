package routes

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/cedar-wallet/cedar_wallet/internal/balance"
	"github.com/cedar-wallet/cedar_wallet/internal/config"
	"github.com/cedar-wallet/cedar_wallet/internal/exchange"
	"github.com/cedar-wallet/cedar_wallet/internal/funding"
	"github.com/cedar-wallet/cedar_wallet/internal/infra"
	"github.com/cedar-wallet/cedar_wallet/internal/ledger"
	"github.com/cedar-wallet/cedar_wallet/internal/metrics"
	"github.com/cedar-wallet/cedar_wallet/internal/middleware"
	"github.com/cedar-wallet/cedar_wallet/internal/notification"
	"github.com/cedar-wallet/cedar_wallet/internal/payments"
	"github.com/cedar-wallet/cedar_wallet/internal/settlement"
	"github.com/cedar-wallet/cedar_wallet/internal/storage"
	"github.com/cedar-wallet/cedar_wallet/internal/wallet"
)

const startupTimeout = 10 * time.Second

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Worker is a background loop started next to the HTTP listener. Run blocks
// until ctx is cancelled.
type Worker struct {
	Name string
	Run  func(ctx context.Context) error
}

type backends struct {
	tx       storage.Transactor
	balances balance.Store
	wallets  wallet.Repository
	ledger   ledger.Repository
	rates    exchange.Repository
}

func newBackends(d Deps) backends {
	retry := balance.DefaultRetryPolicy()
	if d.Cfg.BalanceRetryAttempts > 0 {
		retry.Attempts = d.Cfg.BalanceRetryAttempts
	}
	if d.Cfg.BalanceRetryBaseDelay > 0 {
		retry.BaseDelay = d.Cfg.BalanceRetryBaseDelay
	}
	retry.OnRetry = func(attempt int, err error) {
		metrics.BalanceRetry()
		d.Logger.Debug("balance conflict, retrying", slog.Int("attempt", attempt), slog.Any("error", err))
	}

	if d.DB == nil {
		mem := storage.NewMemory()
		return backends{
			tx:       retry.Units(mem),
			balances: balance.NewMemoryStore(mem),
			wallets:  wallet.NewMemoryRepository(mem),
			ledger:   ledger.NewMemoryRepository(mem),
			rates:    exchange.NewMemoryRepository(),
		}
	}

	pg := storage.NewPostgres(d.DB)
	return backends{
		// Services open units through the retrying transactor; repositories
		// and the balance store join them through the context.
		tx:       retry.Units(pg),
		balances: balance.NewPostgresStore(pg, retry),
		wallets:  wallet.NewPostgresRepository(pg),
		ledger:   ledger.NewPostgresRepository(pg),
		rates:    exchange.NewPostgresRepository(pg),
	}
}

// Setup configures middlewares and all application routes, and returns the
// background workers the server has to run.
func Setup(app *fiber.App, d Deps) ([]Worker, error) {
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Cfg.LogFormat == "text" {
		// Plain text access log: [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	b := newBackends(d)
	walletSvc := wallet.NewService(b.tx, b.wallets, b.balances, d.Logger)
	system, err := walletSvc.EnsureSystemWallet(ctx, d.Cfg.SystemWalletAddress, d.Cfg.SystemFloat)
	if err != nil {
		return nil, fmt.Errorf("ensure system wallet: %w", err)
	}

	var (
		workers []Worker
		sinks   []io.Closer
	)

	hub := notification.NewHub(d.Logger)
	dispatcher := notification.NewDispatcher(d.Cfg.EventQueueSize, d.Logger)
	dispatcher.Register("log", notification.NewLoggerNotifier(d.Logger))
	dispatcher.Register("websocket", hub)
	if d.Cache != nil {
		dispatcher.Register("redis", notification.NewRedisNotifier(d.Cache))
	}
	if d.Cfg.KafkaEnabled() && d.Cfg.KafkaEventsTopic != "" {
		writer, err := infra.NewKafkaWriter(d.Cfg.KafkaBrokers, d.Cfg.KafkaEventsTopic)
		if err != nil {
			return nil, err
		}
		dispatcher.Register("kafka", notification.NewKafkaNotifier(writer))
		sinks = append(sinks, writer)
	}
	// Sinks close only after the dispatcher has drained its queue.
	workers = append(workers, Worker{Name: "event-dispatcher", Run: func(ctx context.Context) error {
		err := dispatcher.Run(ctx)
		for _, sink := range sinks {
			if cerr := sink.Close(); cerr != nil {
				d.Logger.Warn("close event sink", slog.Any("error", cerr))
			}
		}
		return err
	}})

	ledgerSvc := ledger.NewService(b.tx, b.ledger, b.balances, walletSvc, dispatcher, d.Logger)

	rateCache := exchange.NewRateCache(d.Cache, 2*d.Cfg.RatePollInterval)
	exchangeSvc := exchange.NewService(b.rates, rateCache, exchange.FallbackSource(), ledgerSvc, walletSvc,
		exchange.Config{SystemWalletID: system.ID, FeePercent: d.Cfg.ExchangeFeePercent}, d.Logger)
	poller := exchange.NewPoller(exchangeSvc, exchange.FallbackSource(), d.Cfg.RatePollInterval, d.Logger)
	workers = append(workers, Worker{Name: "rate-poller", Run: poller.Run})

	settlementSvc := settlement.NewService(ledgerSvc, d.Logger)
	if d.Cfg.KafkaEnabled() && d.Cfg.KafkaSettlementTopic != "" {
		reader, err := infra.NewKafkaReader(d.Cfg.KafkaBrokers, d.Cfg.KafkaSettlementTopic, d.Cfg.KafkaGroupID)
		if err != nil {
			return nil, err
		}
		consumer := settlement.NewConsumer(reader, settlementSvc, d.Logger)
		workers = append(workers, Worker{Name: "settlement-consumer", Run: consumer.Run})
	}

	fundingSvc, err := funding.NewService(ledgerSvc, walletSvc, funding.StaticBackend{},
		funding.Config{SystemWalletID: system.ID, WithdrawalFeePercent: d.Cfg.WithdrawalFeePercent}, d.Logger)
	if err != nil {
		return nil, err
	}
	paymentSvc := payments.NewService(ledgerSvc, walletSvc, d.Cfg.TransferFeePercent, d.Logger)

	walletHandler := wallet.NewHandler(walletSvc)
	ledgerHandler := ledger.NewHandler(ledgerSvc, walletSvc)
	paymentHandler := payments.NewHandler(paymentSvc)
	fundingHandler := funding.NewHandler(fundingSvc)
	exchangeHandler := exchange.NewHandler(exchangeSvc)
	settlementHandler := settlement.NewHandler(settlementSvc)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Registered before the bearer group: fiber runs handlers in registration
	// order and the internal handlers end the chain.
	internal := api.Group("/internal", middleware.InternalToken(d.Cfg.InternalTokenHash))
	RegisterInternalRoutes(internal, ledgerHandler, settlementHandler, fundingHandler, exchangeHandler)

	protected := api.Group("", middleware.JWTAuth([]byte(d.Cfg.JWTSecret)))
	RegisterWebsocketRoute(protected, hub)
	protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	limit := middleware.RateLimit(d.Cache, "transactions", d.Cfg.TransactionsPerMinute)
	RegisterWalletRoutes(protected, walletHandler, ledgerHandler)
	RegisterPaymentRoutes(protected, ledgerHandler, paymentHandler, limit)
	RegisterFundingRoutes(protected, fundingHandler, exchangeHandler, limit)

	d.Logger.Info("routes ready",
		slog.String("system_wallet_id", system.ID),
		slog.Bool("postgres", d.DB != nil),
		slog.Bool("redis", d.Cache != nil),
		slog.Int("workers", len(workers)))
	return workers, nil
}
