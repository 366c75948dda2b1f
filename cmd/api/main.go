package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"surplus-ledger/config"
	httpHandler "surplus-ledger/internal/adapter/http/handler"
	"surplus-ledger/internal/adapter/http/middleware"
	"surplus-ledger/internal/adapter/notify"
	memStorage "surplus-ledger/internal/adapter/storage/memory"
	pgStorage "surplus-ledger/internal/adapter/storage/postgres"
	redisStorage "surplus-ledger/internal/adapter/storage/redis"
	"surplus-ledger/internal/core/ports"
	"surplus-ledger/internal/service"
	"surplus-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// healthTimeout bounds each dependency check behind GET /health.
const healthTimeout = 2 * time.Second

// storage groups the repositories of one backend.
type storage struct {
	wallets       ports.WalletRepository
	transactions  ports.WalletTransactionRepository
	withdrawals   ports.WithdrawalRepository
	bankAccounts  ports.BankAccountRepository
	lots          ports.LotRepository
	reservations  ports.ReservationRepository
	baskets       ports.SuspendedBasketRepository
	notifications ports.NotificationRepository
	idempotency   ports.IdempotencyRepository
	audit         ports.AuditRepository
	transactor    ports.DBTransactor
	health        ports.HealthChecker
	close         func()
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Str("storage", cfg.Storage.Driver).
		Int("port", cfg.Server.Port).
		Msg("Starting Surplus Ledger")

	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret is required")
	}

	ctx := context.Background()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.close()

	healthCheckers := []ports.HealthChecker{store.health}

	// Redis is optional: without it idempotency falls back to Postgres only
	// and rate limiting to the in-process limiter.
	var (
		idempCache ports.IdempotencyCache
		guard      ports.InFlightGuard
		counter    middleware.CounterStore
	)
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		log.Info().Msg("Redis connected")

		idempCache = redisStorage.NewIdempotencyCache(rdb)
		guard = redisStorage.NewInFlightGuard(rdb)
		counter = redisStorage.NewRateLimitStore(rdb)
		healthCheckers = append(healthCheckers, redisStorage.NewWriteCheck(rdb, healthTimeout))
	}

	var push ports.PushSender
	if cfg.Push.Enabled {
		sender, err := notify.NewFCMSender(ctx, cfg.Push, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Firebase messaging")
		}
		push = sender
		log.Info().Msg("Firebase Cloud Messaging ready")
	}

	rate, err := cfg.Ledger.Rate()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid commission rate")
	}
	minWithdrawal, err := cfg.Ledger.MinWithdrawal()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid minimum withdrawal amount")
	}

	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer, cfg.JWT.RoleClaim)
	notificationSvc := service.NewNotificationService(store.notifications, push, log)
	auditSvc := service.NewAuditService(store.audit, log)

	walletSvc := service.NewWalletService(
		store.wallets,
		store.transactions,
		store.reservations,
		store.idempotency,
		idempCache,
		guard,
		notificationSvc,
		store.transactor,
		cfg.Ledger.IdempotencyTTL,
		log,
	)
	withdrawalSvc := service.NewWithdrawalService(
		store.wallets,
		store.transactions,
		store.withdrawals,
		store.bankAccounts,
		notificationSvc,
		store.transactor,
		rate,
		minWithdrawal,
		log,
	)
	bankSvc := service.NewBankAccountService(store.bankAccounts, store.transactor, log)
	basketSvc := service.NewSuspendedBasketService(
		store.wallets,
		store.transactions,
		store.baskets,
		store.lots,
		store.reservations,
		notificationSvc,
		store.transactor,
		log,
	)
	reportingSvc := service.NewReportingService(store.wallets, store.transactions, store.withdrawals)

	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetOpenAPISpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded at /docs")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, /docs will be unavailable")
	}

	gin.SetMode(cfg.Server.Mode)
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		WalletSvc:       walletSvc,
		WithdrawalSvc:   withdrawalSvc,
		BankAccountSvc:  bankSvc,
		BasketSvc:       basketSvc,
		ReportingSvc:    reportingSvc,
		NotificationSvc: notificationSvc,
		AuditSvc:        auditSvc,
		TokenSvc:        tokenSvc,
		RateLimitStore:  counter,
		LocalLimiter:    middleware.NewLocalLimiter(cfg.RateLimit.LocalRPS, cfg.RateLimit.LocalBurst),
		HealthCheckers:  healthCheckers,
		Currency:        cfg.Ledger.Currency,
		CommissionRate:  rate,
		MinWithdrawal:   minWithdrawal,
		Logger:          log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	if cfg.Storage.Driver == "memory" {
		log.Warn().Msg("Using in-memory storage, data is lost on restart")
		s := memStorage.NewStore()
		return &storage{
			wallets:       memStorage.NewWalletRepo(s),
			transactions:  memStorage.NewTransactionRepo(s),
			withdrawals:   memStorage.NewWithdrawalRepo(s),
			bankAccounts:  memStorage.NewBankAccountRepo(s),
			lots:          memStorage.NewLotRepo(s),
			reservations:  memStorage.NewReservationRepo(s),
			baskets:       memStorage.NewBasketRepo(s),
			notifications: memStorage.NewNotificationRepo(s),
			idempotency:   memStorage.NewIdempotencyRepo(s),
			audit:         memStorage.NewAuditRepo(s),
			transactor:    s,
			health:        s,
			close:         func() {},
		}, nil
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("PostgreSQL connected")

	return &storage{
		wallets:       pgStorage.NewWalletRepo(pool),
		transactions:  pgStorage.NewTransactionRepo(pool),
		withdrawals:   pgStorage.NewWithdrawalRepo(pool),
		bankAccounts:  pgStorage.NewBankAccountRepo(pool),
		lots:          pgStorage.NewLotRepo(pool),
		reservations:  pgStorage.NewReservationRepo(pool),
		baskets:       pgStorage.NewBasketRepo(pool),
		notifications: pgStorage.NewNotificationRepo(pool),
		idempotency:   pgStorage.NewIdempotencyRepo(pool),
		audit:         pgStorage.NewAuditRepo(pool),
		transactor:    pgStorage.NewTransactor(pool, cfg.Database.LockTimeout),
		health:        pgStorage.NewSchemaCheck(pool, healthTimeout),
		close:         pool.Close,
	}, nil
}
