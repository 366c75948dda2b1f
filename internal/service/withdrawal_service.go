package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"
	"surplus-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// WithdrawalServiceImpl implements ports.WithdrawalService.
//
// Transition table:
//
//	pending    -> approved   debit requested_amount once, balance re-checked under lock
//	approved   -> processing status only
//	processing -> completed  stamps processed_at, never debits
//	pending    -> rejected   refunds only if a debit was recorded
//	pending    -> cancelled  merchant only, no balance change
type WithdrawalServiceImpl struct {
	ledger
	withdrawalRepo ports.WithdrawalRepository
	bankRepo       ports.BankAccountRepository
	notifier       ports.Notifier
	transactor     ports.DBTransactor
	rate           decimal.Decimal
	minAmount      decimal.Decimal
	log            zerolog.Logger
}

// NewWithdrawalService creates a new WithdrawalServiceImpl.
func NewWithdrawalService(
	walletRepo ports.WalletRepository,
	txRepo ports.WalletTransactionRepository,
	withdrawalRepo ports.WithdrawalRepository,
	bankRepo ports.BankAccountRepository,
	notifier ports.Notifier,
	transactor ports.DBTransactor,
	rate decimal.Decimal,
	minAmount decimal.Decimal,
	log zerolog.Logger,
) *WithdrawalServiceImpl {
	return &WithdrawalServiceImpl{
		ledger:         ledger{walletRepo: walletRepo, txRepo: txRepo},
		withdrawalRepo: withdrawalRepo,
		bankRepo:       bankRepo,
		notifier:       notifier,
		transactor:     transactor,
		rate:           rate,
		minAmount:      minAmount,
		log:            log,
	}
}

// PreviewWithdrawal returns the commission split without touching any state.
func (s *WithdrawalServiceImpl) PreviewWithdrawal(amount decimal.Decimal) (*domain.WithdrawalAmounts, error) {
	if err := s.validateRequested(amount); err != nil {
		return nil, err
	}
	amounts := domain.CalculateWithdrawalAmounts(amount, s.rate)
	return &amounts, nil
}

// CreateWithdrawal files a pending request. The balance check is advisory here;
// nothing is debited until approval.
func (s *WithdrawalServiceImpl) CreateWithdrawal(ctx context.Context, req ports.WithdrawalCreateRequest) (*domain.WithdrawalRequest, error) {
	if err := s.validateRequested(req.Amount); err != nil {
		return nil, err
	}

	name, iban, bic, err := s.resolveBankDetails(ctx, req)
	if err != nil {
		return nil, err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetOrCreateForUpdate(ctx, dbTx, req.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("Portefeuille")
	}
	if !wallet.CanDebit(req.Amount) {
		return nil, apperror.ErrInsufficientBalance(domain.FormatMoney(wallet.Balance), domain.FormatMoney(req.Amount))
	}

	amounts := domain.CalculateWithdrawalAmounts(req.Amount, s.rate)
	now := time.Now().UTC()
	w := &domain.WithdrawalRequest{
		ID:               uuid.New(),
		MerchantID:       req.MerchantID,
		WalletID:         wallet.ID,
		RequestedAmount:  amounts.Requested,
		CommissionAmount: amounts.Commission,
		NetAmount:        amounts.Net,
		Status:           domain.WithdrawalStatusPending,
		BankAccountName:  name,
		BankAccountIBAN:  iban,
		BankAccountBIC:   bic,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.withdrawalRepo.Create(ctx, dbTx, w); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create withdrawal: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("withdrawal_id", w.ID.String()).
		Str("merchant_id", w.MerchantID.String()).
		Str("amount", w.RequestedAmount.String()).
		Msg("withdrawal requested")

	s.notifier.Notify(ctx, w.MerchantID, "Demande de retrait envoyée",
		fmt.Sprintf("Votre demande de retrait de %s (net : %s) est en attente de validation.",
			euros(w.RequestedAmount), euros(w.NetAmount)), domain.SeverityInfo)

	return w, nil
}

// CancelWithdrawal lets the merchant withdraw a pending request.
func (s *WithdrawalServiceImpl) CancelWithdrawal(ctx context.Context, withdrawalID, merchantID uuid.UUID) (*domain.WithdrawalRequest, error) {
	owned := func(w *domain.WithdrawalRequest) error {
		if w.MerchantID != merchantID {
			return apperror.ErrNotFound("Demande de retrait")
		}
		return nil
	}
	w, err := s.transition(ctx, withdrawalID, domain.WithdrawalStatusCancelled, owned, nil)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("withdrawal_id", w.ID.String()).Msg("withdrawal cancelled")
	return w, nil
}

// ApproveWithdrawal debits the merchant wallet by the requested amount. This is
// the only place a withdrawal moves money out of the wallet.
func (s *WithdrawalServiceImpl) ApproveWithdrawal(ctx context.Context, withdrawalID, adminID uuid.UUID) (*domain.WithdrawalRequest, error) {
	w, err := s.transition(ctx, withdrawalID, domain.WithdrawalStatusApproved, nil,
		func(dbTx pgx.Tx, w *domain.WithdrawalRequest) error {
			if w.IsDebited() {
				return apperror.InvalidState("Ce retrait a déjà été débité")
			}
			txn, err := s.appendTransaction(ctx, dbTx, ledgerEntry{
				UserID:        w.MerchantID,
				Type:          domain.TransactionTypeWithdrawal,
				Amount:        w.RequestedAmount.Neg(),
				Description:   fmt.Sprintf("Retrait vers %s", maskIBAN(w.BankAccountIBAN)),
				ReferenceID:   &w.ID,
				ReferenceType: refType(domain.ReferenceTypeWithdrawalRequest),
				Metadata: map[string]any{
					"commission_amount": domain.FormatMoney(w.CommissionAmount),
					"net_amount":        domain.FormatMoney(w.NetAmount),
				},
				RequireFunds: true,
			})
			if err != nil {
				return err
			}
			w.DebitTransactionID = &txn.ID
			w.ProcessedBy = &adminID
			return nil
		})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("withdrawal_id", w.ID.String()).
		Str("debit_tx_id", w.DebitTransactionID.String()).
		Str("amount", w.RequestedAmount.String()).
		Msg("withdrawal approved")

	s.notifier.Notify(ctx, w.MerchantID, "Retrait approuvé",
		fmt.Sprintf("Votre retrait de %s a été approuvé. Montant net versé : %s.",
			euros(w.RequestedAmount), euros(w.NetAmount)), domain.SeveritySuccess)
	return w, nil
}

// MarkWithdrawalProcessing records the hand-off to the bank.
func (s *WithdrawalServiceImpl) MarkWithdrawalProcessing(ctx context.Context, withdrawalID, adminID uuid.UUID) (*domain.WithdrawalRequest, error) {
	w, err := s.transition(ctx, withdrawalID, domain.WithdrawalStatusProcessing, nil,
		func(_ pgx.Tx, w *domain.WithdrawalRequest) error {
			w.ProcessedBy = &adminID
			return nil
		})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("withdrawal_id", w.ID.String()).Msg("withdrawal processing")
	s.notifier.Notify(ctx, w.MerchantID, "Retrait en cours",
		"Votre virement a été transmis à la banque.", domain.SeverityInfo)
	return w, nil
}

// CompleteWithdrawal closes the request. The wallet was already debited at approval.
func (s *WithdrawalServiceImpl) CompleteWithdrawal(ctx context.Context, withdrawalID, adminID uuid.UUID) (*domain.WithdrawalRequest, error) {
	w, err := s.transition(ctx, withdrawalID, domain.WithdrawalStatusCompleted, nil,
		func(_ pgx.Tx, w *domain.WithdrawalRequest) error {
			if !w.IsDebited() {
				return apperror.InvalidState("Ce retrait n'a pas été débité et ne peut pas être finalisé")
			}
			now := time.Now().UTC()
			w.ProcessedAt = &now
			w.ProcessedBy = &adminID
			return nil
		})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("withdrawal_id", w.ID.String()).
		Str("net_amount", w.NetAmount.String()).
		Msg("withdrawal completed")

	s.notifier.Notify(ctx, w.MerchantID, "Retrait effectué",
		fmt.Sprintf("Le virement de %s a été effectué.", euros(w.NetAmount)), domain.SeveritySuccess)
	return w, nil
}

// RejectWithdrawal refuses a pending request. A refund is issued only when a
// debit was recorded, so a request is never both debited and refunded twice.
func (s *WithdrawalServiceImpl) RejectWithdrawal(ctx context.Context, withdrawalID, adminID uuid.UUID, reason string) (*domain.WithdrawalRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperror.ErrRejectionReasonRequired()
	}

	var refunded bool
	w, err := s.transition(ctx, withdrawalID, domain.WithdrawalStatusRejected, nil,
		func(dbTx pgx.Tx, w *domain.WithdrawalRequest) error {
			w.RejectionReason = &reason
			w.ProcessedBy = &adminID
			if !w.IsDebited() {
				return nil
			}
			if _, err := s.appendTransaction(ctx, dbTx, ledgerEntry{
				UserID:        w.MerchantID,
				Type:          domain.TransactionTypeRefund,
				Amount:        w.RequestedAmount,
				Description:   "Remboursement d'un retrait refusé",
				ReferenceID:   &w.ID,
				ReferenceType: refType(domain.ReferenceTypeWithdrawalRequest),
			}); err != nil {
				return err
			}
			refunded = true
			return nil
		})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("withdrawal_id", w.ID.String()).
		Bool("refunded", refunded).
		Msg("withdrawal rejected")

	s.notifier.Notify(ctx, w.MerchantID, "Retrait refusé",
		fmt.Sprintf("Votre demande de retrait de %s a été refusée. Motif : %s", euros(w.RequestedAmount), reason),
		domain.SeverityWarning)
	return w, nil
}

func (s *WithdrawalServiceImpl) GetWithdrawal(ctx context.Context, withdrawalID uuid.UUID) (*domain.WithdrawalRequest, error) {
	w, err := s.withdrawalRepo.GetByID(ctx, withdrawalID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get withdrawal: %w", err))
	}
	if w == nil {
		return nil, apperror.ErrNotFound("Demande de retrait")
	}
	return w, nil
}

func (s *WithdrawalServiceImpl) ListWithdrawals(ctx context.Context, params ports.WithdrawalListParams) ([]domain.WithdrawalRequest, int64, error) {
	params.Page, params.PageSize = normalizePage(params.Page, params.PageSize)
	items, total, err := s.withdrawalRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list withdrawals: %w", err))
	}
	return items, total, nil
}

// transition locks the request, checks the move against the state machine,
// runs apply inside the same transaction and persists the new status.
func (s *WithdrawalServiceImpl) transition(
	ctx context.Context,
	withdrawalID uuid.UUID,
	to domain.WithdrawalStatus,
	check func(w *domain.WithdrawalRequest) error,
	apply func(dbTx pgx.Tx, w *domain.WithdrawalRequest) error,
) (*domain.WithdrawalRequest, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	w, err := s.withdrawalRepo.GetByIDForUpdate(ctx, dbTx, withdrawalID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock withdrawal: %w", err))
	}
	if w == nil {
		return nil, apperror.ErrNotFound("Demande de retrait")
	}
	if check != nil {
		if err := check(w); err != nil {
			return nil, err
		}
	}
	if !w.Status.CanTransitionTo(to) {
		return nil, apperror.InvalidState(fmt.Sprintf(
			"Impossible de passer une demande de retrait de l'état « %s » à « %s »", w.Status, to))
	}

	if apply != nil {
		if err := apply(dbTx, w); err != nil {
			return nil, err
		}
	}

	w.Status = to
	w.UpdatedAt = time.Now().UTC()
	if err := s.withdrawalRepo.Update(ctx, dbTx, w); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update withdrawal: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return w, nil
}

func (s *WithdrawalServiceImpl) validateRequested(amount decimal.Decimal) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	if amount.LessThan(s.minAmount) {
		return apperror.ErrBelowMinimumWithdrawal(euros(s.minAmount))
	}
	return nil
}

// resolveBankDetails copies the payout destination by value, either from a saved
// account or from the fields supplied with the request.
func (s *WithdrawalServiceImpl) resolveBankDetails(ctx context.Context, req ports.WithdrawalCreateRequest) (string, string, *string, error) {
	if req.BankAccountID != nil {
		acct, err := s.bankRepo.GetByID(ctx, *req.BankAccountID)
		if err != nil {
			return "", "", nil, apperror.InternalError(fmt.Errorf("get bank account: %w", err))
		}
		if acct == nil || acct.MerchantID != req.MerchantID {
			return "", "", nil, apperror.ErrNotFound("Compte bancaire")
		}
		return acct.AccountName, acct.IBAN, acct.BIC, nil
	}

	name := strings.TrimSpace(req.BankAccountName)
	if name == "" {
		return "", "", nil, apperror.Validation("Le titulaire du compte est obligatoire")
	}
	iban := domain.NormalizeIBAN(req.BankAccountIBAN)
	if !domain.ValidIBANLength(iban) {
		return "", "", nil, apperror.ErrInvalidIBAN()
	}
	return name, iban, normalizeBIC(req.BankAccountBIC), nil
}

func normalizeBIC(bic *string) *string {
	if bic == nil {
		return nil
	}
	v := strings.ToUpper(strings.TrimSpace(*bic))
	if v == "" {
		return nil
	}
	return &v
}

// maskIBAN keeps the country code and the last four characters.
func maskIBAN(iban string) string {
	if len(iban) <= 8 {
		return iban
	}
	return iban[:4] + strings.Repeat("*", len(iban)-8) + iban[len(iban)-4:]
}
