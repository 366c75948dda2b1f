package handler

import (
	"surplus-ledger/internal/adapter/http/middleware"
	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	WalletSvc       ports.WalletService
	WithdrawalSvc   ports.WithdrawalService
	BankAccountSvc  ports.BankAccountService
	BasketSvc       ports.SuspendedBasketService
	ReportingSvc    ports.ReportingService
	NotificationSvc ports.NotificationService
	AuditSvc        ports.AuditService // nil = audit logging disabled
	TokenSvc        ports.TokenService

	RateLimitStore middleware.CounterStore // nil = local limiter only
	LocalLimiter   *middleware.LocalLimiter
	HealthCheckers []ports.HealthChecker

	Currency       string
	CommissionRate decimal.Decimal
	MinWithdrawal  decimal.Decimal
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20))

	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	r.GET("/docs", DocsUI)
	r.GET("/docs/openapi.yaml", OpenAPISpec)

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		return middleware.RateLimiter(deps.RateLimitStore, deps.LocalLimiter, group, rules[group], deps.Logger)
	}

	walletHandler := NewWalletHandler(deps.WalletSvc, deps.Currency)
	basketHandler := NewBasketHandler(deps.BasketSvc)
	merchantHandler := NewMerchantHandler(deps.WithdrawalSvc, deps.BankAccountSvc, deps.ReportingSvc,
		deps.CommissionRate, deps.MinWithdrawal)
	adminHandler := NewAdminHandler(deps.WithdrawalSvc, deps.WalletSvc)
	notificationHandler := NewNotificationHandler(deps.NotificationSvc)

	v1 := r.Group("/api/v1", middleware.JWTAuth(deps.TokenSvc, deps.Logger))

	wallet := v1.Group("/wallet")
	{
		wallet.GET("", rl("wallet_read"), walletHandler.GetWallet)
		wallet.GET("/balance", rl("wallet_read"), walletHandler.GetBalance)
		wallet.GET("/transactions", rl("wallet_read"), walletHandler.ListTransactions)
		wallet.POST("/recharge",
			middleware.RequireRole(domain.RoleCustomer, domain.RoleAssociation),
			rl("wallet_write"), walletHandler.Recharge)
		wallet.POST("/pay", rl("wallet_write"), walletHandler.Pay)
	}

	v1.POST("/reservations/:id/confirm-receipt",
		middleware.RequireRole(domain.RoleCustomer, domain.RoleBeneficiary),
		rl("wallet_write"), walletHandler.ConfirmReceipt)

	v1.GET("/notifications", rl("wallet_read"), notificationHandler.List)

	baskets := v1.Group("/suspended-baskets", rl("baskets"))
	{
		baskets.GET("", basketHandler.List)
		baskets.GET("/:id", basketHandler.Get)
		baskets.POST("", middleware.RequireRole(domain.RoleCustomer, domain.RoleAssociation), basketHandler.Create)

		beneficiary := middleware.RequireRole(domain.RoleBeneficiary)
		baskets.POST("/:id/reserve", beneficiary, basketHandler.Reserve)
		baskets.POST("/:id/claim", beneficiary, basketHandler.Claim)
	}

	merchant := v1.Group("/merchant", middleware.RequireRole(domain.RoleMerchant), rl("merchant"))
	{
		merchant.GET("/wallet/summary", merchantHandler.Summary)
		merchant.GET("/withdrawals/preview", merchantHandler.PreviewWithdrawal)
		merchant.POST("/withdrawals", rl("withdrawals"), merchantHandler.CreateWithdrawal)
		merchant.GET("/withdrawals", merchantHandler.ListWithdrawals)
		merchant.POST("/withdrawals/:id/cancel", merchantHandler.CancelWithdrawal)
		merchant.POST("/bank-accounts", merchantHandler.AddBankAccount)
		merchant.GET("/bank-accounts", merchantHandler.ListBankAccounts)
		merchant.PUT("/bank-accounts/:id/default", merchantHandler.SetDefaultBankAccount)
		merchant.DELETE("/bank-accounts/:id", merchantHandler.DeleteBankAccount)
	}

	admin := v1.Group("/admin", middleware.RequireRole(domain.RoleAdmin), rl("admin"))
	{
		admin.GET("/withdrawals", adminHandler.ListWithdrawals)
		admin.POST("/withdrawals/:id/approve", adminHandler.ApproveWithdrawal)
		admin.POST("/withdrawals/:id/processing", adminHandler.MarkWithdrawalProcessing)
		admin.POST("/withdrawals/:id/complete", adminHandler.CompleteWithdrawal)
		admin.POST("/withdrawals/:id/reject", adminHandler.RejectWithdrawal)
		admin.POST("/refunds", adminHandler.Refund)
		admin.GET("/wallets/:userId/reconcile", adminHandler.Reconcile)
		admin.POST("/suspended-baskets/:id/expire", basketHandler.Expire)
	}

	return r
}
