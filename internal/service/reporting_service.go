package service

import (
	"context"
	"fmt"
	"time"

	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"
	"surplus-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// inFlightWithdrawals are the requests not yet paid out or closed.
var inFlightWithdrawals = []domain.WithdrawalStatus{
	domain.WithdrawalStatusPending,
	domain.WithdrawalStatusApproved,
	domain.WithdrawalStatusProcessing,
}

// reportingService implements ports.ReportingService.
type reportingService struct {
	walletRepo     ports.WalletRepository
	txRepo         ports.WalletTransactionRepository
	withdrawalRepo ports.WithdrawalRepository
}

// NewReportingService creates a new reporting service.
func NewReportingService(
	walletRepo ports.WalletRepository,
	txRepo ports.WalletTransactionRepository,
	withdrawalRepo ports.WithdrawalRepository,
) ports.ReportingService {
	return &reportingService{
		walletRepo:     walletRepo,
		txRepo:         txRepo,
		withdrawalRepo: withdrawalRepo,
	}
}

// GetMerchantSummary returns the merchant wallet header for the given period.
func (s *reportingService) GetMerchantSummary(ctx context.Context, merchantID uuid.UUID, period string) (*ports.MerchantWalletSummary, error) {
	since, err := periodStart(period, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if period == "" {
		period = "all"
	}

	balance := decimal.Zero
	wallet, err := s.walletRepo.GetByUserID(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet != nil {
		balance = wallet.Balance
	}

	pending, err := s.withdrawalRepo.SumRequested(ctx, merchantID, inFlightWithdrawals)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("sum withdrawals: %w", err))
	}

	stats, err := s.txRepo.GetStats(ctx, merchantID, since)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get stats: %w", err))
	}

	return &ports.MerchantWalletSummary{
		Balance:            balance,
		PendingWithdrawals: pending,
		Period:             period,
		TransactionCount:   stats.TransactionCount,
		TotalEarned:        stats.MerchantPayments,
		TotalWithdrawn:     stats.Withdrawn,
		TotalCredits:       stats.TotalCredits,
		TotalDebits:        stats.TotalDebits,
	}, nil
}

func periodStart(period string, now time.Time) (*time.Time, error) {
	var t time.Time
	switch period {
	case "day":
		t = now.AddDate(0, 0, -1)
	case "week":
		t = now.AddDate(0, 0, -7)
	case "month":
		t = now.AddDate(0, -1, 0)
	case "all", "":
		return nil, nil
	default:
		return nil, apperror.Validation("Période invalide : day, week, month ou all")
	}
	return &t, nil
}
