package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"
	"surplus-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BankAccountServiceImpl implements ports.BankAccountService.
// Each merchant has at most one default account at any time.
type BankAccountServiceImpl struct {
	repo       ports.BankAccountRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewBankAccountService creates a new BankAccountServiceImpl.
func NewBankAccountService(repo ports.BankAccountRepository, transactor ports.DBTransactor, log zerolog.Logger) *BankAccountServiceImpl {
	return &BankAccountServiceImpl{repo: repo, transactor: transactor, log: log}
}

// AddBankAccount saves a payout destination. The first account of a merchant
// becomes the default; an explicit default unsets the previous one.
func (s *BankAccountServiceImpl) AddBankAccount(ctx context.Context, req ports.BankAccountCreateRequest) (*domain.MerchantBankAccount, error) {
	name := strings.TrimSpace(req.AccountName)
	if name == "" {
		return nil, apperror.Validation("Le titulaire du compte est obligatoire")
	}
	iban := domain.NormalizeIBAN(req.IBAN)
	if !domain.ValidIBANLength(iban) {
		return nil, apperror.ErrInvalidIBAN()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	count, err := s.repo.CountByMerchant(ctx, dbTx, req.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("count bank accounts: %w", err))
	}

	isDefault := req.IsDefault || count == 0
	if isDefault && count > 0 {
		if err := s.repo.ClearDefault(ctx, dbTx, req.MerchantID); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("clear default: %w", err))
		}
	}

	now := time.Now().UTC()
	acct := &domain.MerchantBankAccount{
		ID:          uuid.New(),
		MerchantID:  req.MerchantID,
		AccountName: name,
		IBAN:        iban,
		BIC:         normalizeBIC(req.BIC),
		IsDefault:   isDefault,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, dbTx, acct); err != nil {
		if errors.Is(err, ports.ErrDuplicateKey) {
			return nil, errDefaultAccountRace()
		}
		return nil, apperror.InternalError(fmt.Errorf("create bank account: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("merchant_id", req.MerchantID.String()).
		Str("account_id", acct.ID.String()).
		Bool("default", acct.IsDefault).
		Msg("bank account added")
	return acct, nil
}

func (s *BankAccountServiceImpl) ListBankAccounts(ctx context.Context, merchantID uuid.UUID) ([]domain.MerchantBankAccount, error) {
	accounts, err := s.repo.ListByMerchant(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list bank accounts: %w", err))
	}
	return accounts, nil
}

func (s *BankAccountServiceImpl) SetDefaultBankAccount(ctx context.Context, merchantID, accountID uuid.UUID) (*domain.MerchantBankAccount, error) {
	acct, err := s.owned(ctx, merchantID, accountID)
	if err != nil {
		return nil, err
	}
	if acct.IsDefault {
		return acct, nil
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.repo.ClearDefault(ctx, dbTx, merchantID); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("clear default: %w", err))
	}
	if err := s.repo.SetDefault(ctx, dbTx, accountID); err != nil {
		if errors.Is(err, ports.ErrDuplicateKey) {
			return nil, errDefaultAccountRace()
		}
		return nil, apperror.InternalError(fmt.Errorf("set default: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	acct.IsDefault = true
	return acct, nil
}

// DeleteBankAccount removes an account. Past withdrawals keep their copied fields.
// Deleting the default promotes the newest remaining account.
func (s *BankAccountServiceImpl) DeleteBankAccount(ctx context.Context, merchantID, accountID uuid.UUID) error {
	acct, err := s.owned(ctx, merchantID, accountID)
	if err != nil {
		return err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.repo.Delete(ctx, dbTx, accountID); err != nil {
		return apperror.InternalError(fmt.Errorf("delete bank account: %w", err))
	}
	if acct.IsDefault {
		if err := s.repo.PromoteLatest(ctx, dbTx, merchantID); err != nil {
			return apperror.InternalError(fmt.Errorf("promote default: %w", err))
		}
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().Str("merchant_id", merchantID.String()).Str("account_id", accountID.String()).Msg("bank account deleted")
	return nil
}

func (s *BankAccountServiceImpl) owned(ctx context.Context, merchantID, accountID uuid.UUID) (*domain.MerchantBankAccount, error) {
	acct, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get bank account: %w", err))
	}
	if acct == nil || acct.MerchantID != merchantID {
		return nil, apperror.ErrNotFound("Compte bancaire")
	}
	return acct, nil
}

// errDefaultAccountRace reports a concurrent change of the merchant's default account.
func errDefaultAccountRace() *apperror.AppError {
	return apperror.Conflict("Le compte bancaire par défaut vient d'être modifié, veuillez réessayer")
}
