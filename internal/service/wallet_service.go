package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"
	"surplus-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const inFlightTTL = 30 * time.Second

const (
	opRecharge = "recharge"
	opPayment  = "payment"
)

// WalletServiceImpl implements ports.WalletService.
type WalletServiceImpl struct {
	ledger
	reservationRepo ports.ReservationRepository
	idempRepo       ports.IdempotencyRepository
	idempCache      ports.IdempotencyCache // optional
	guard           ports.InFlightGuard    // optional
	notifier        ports.Notifier
	transactor      ports.DBTransactor
	idempTTL        time.Duration
	log             zerolog.Logger
}

// NewWalletService creates a new WalletServiceImpl.
// idempCache and guard may be nil when Redis is not configured.
func NewWalletService(
	walletRepo ports.WalletRepository,
	txRepo ports.WalletTransactionRepository,
	reservationRepo ports.ReservationRepository,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	guard ports.InFlightGuard,
	notifier ports.Notifier,
	transactor ports.DBTransactor,
	idempTTL time.Duration,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{
		ledger:          ledger{walletRepo: walletRepo, txRepo: txRepo},
		reservationRepo: reservationRepo,
		idempRepo:       idempRepo,
		idempCache:      idempCache,
		guard:           guard,
		notifier:        notifier,
		transactor:      transactor,
		idempTTL:        idempTTL,
		log:             log,
	}
}

// GetOrCreateWallet returns the user's wallet, creating an empty one on first access.
func (s *WalletServiceImpl) GetOrCreateWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get or create wallet: %w", err))
	}
	return wallet, nil
}

// GetBalance returns the wallet balance, or zero when the lookup fails.
func (s *WalletServiceImpl) GetBalance(ctx context.Context, userID uuid.UUID) decimal.Decimal {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("balance lookup failed, reporting zero")
		return decimal.Zero
	}
	if wallet == nil {
		return decimal.Zero
	}
	return wallet.Balance
}

// ListTransactions returns a page of the user's ledger, newest first.
func (s *WalletServiceImpl) ListTransactions(ctx context.Context, params ports.TransactionListParams) ([]domain.WalletTransaction, int64, error) {
	params.Page, params.PageSize = normalizePage(params.Page, params.PageSize)
	txns, total, err := s.txRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list transactions: %w", err))
	}
	return txns, total, nil
}

// Recharge credits the user's wallet.
func (s *WalletServiceImpl) Recharge(ctx context.Context, req ports.RechargeRequest) (*domain.WalletTransaction, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	description := req.Description
	if description == "" {
		description = "Recharge du portefeuille"
	}

	txn, replayed, err := s.move(ctx, opRecharge, req.IdempotencyKey, ledgerEntry{
		UserID:      req.UserID,
		Type:        domain.TransactionTypeRecharge,
		Amount:      req.Amount,
		Description: description,
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		return txn, nil
	}

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("user_id", req.UserID.String()).
		Str("amount", req.Amount.String()).
		Msg("wallet recharged")

	s.notifier.Notify(ctx, req.UserID, "Recharge effectuée",
		fmt.Sprintf("Votre portefeuille a été crédité de %s.", euros(req.Amount)), domain.SeveritySuccess)

	return txn, nil
}

// PayFromWallet debits the user's wallet. It fails with InsufficientBalance and
// leaves the wallet untouched when the balance does not cover the amount.
func (s *WalletServiceImpl) PayFromWallet(ctx context.Context, req ports.PaymentRequest) (*domain.WalletTransaction, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}

	txn, replayed, err := s.move(ctx, opPayment, req.IdempotencyKey, ledgerEntry{
		UserID:        req.UserID,
		Type:          domain.TransactionTypePayment,
		Amount:        req.Amount.Neg(),
		Description:   req.Description,
		ReferenceID:   req.ReferenceID,
		ReferenceType: req.ReferenceType,
		RequireFunds:  true,
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		return txn, nil
	}

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("user_id", req.UserID.String()).
		Str("amount", req.Amount.String()).
		Msg("wallet payment processed")

	s.notifier.Notify(ctx, req.UserID, "Paiement effectué",
		fmt.Sprintf("%s ont été débités de votre portefeuille. %s", euros(req.Amount), req.Description), domain.SeverityInfo)

	return txn, nil
}

// RefundToWallet credits the user's wallet back.
func (s *WalletServiceImpl) RefundToWallet(ctx context.Context, req ports.RefundRequest) (*domain.WalletTransaction, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}

	txn, _, err := s.move(ctx, "", "", ledgerEntry{
		UserID:        req.UserID,
		Type:          domain.TransactionTypeRefund,
		Amount:        req.Amount,
		Description:   req.Description,
		ReferenceID:   req.ReferenceID,
		ReferenceType: req.ReferenceType,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("user_id", req.UserID.String()).
		Str("amount", req.Amount.String()).
		Msg("wallet refund processed")

	s.notifier.Notify(ctx, req.UserID, "Remboursement reçu",
		fmt.Sprintf("%s ont été remboursés sur votre portefeuille.", euros(req.Amount)), domain.SeveritySuccess)

	return txn, nil
}

// PayMerchantOnConfirmation credits a merchant for a confirmed reservation.
func (s *WalletServiceImpl) PayMerchantOnConfirmation(ctx context.Context, req ports.MerchantPaymentRequest) (*domain.WalletTransaction, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	txn, err := s.creditMerchant(ctx, dbTx, req)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.notifyMerchantPaid(ctx, req.MerchantID, req.Amount)
	return txn, nil
}

// ConfirmReceiptAndPayMerchant is the only path by which a merchant gets paid for
// a reservation: the customer confirms pickup, the merchant is credited and the
// reservation is flagged, all in one transaction.
func (s *WalletServiceImpl) ConfirmReceiptAndPayMerchant(ctx context.Context, reservationID, customerID uuid.UUID) (*ports.ReceiptConfirmation, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	res, err := s.reservationRepo.GetByIDForUpdate(ctx, dbTx, reservationID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock reservation: %w", err))
	}
	if res == nil {
		return nil, apperror.ErrNotFound("Réservation")
	}
	if res.UserID != customerID {
		return nil, apperror.ErrForbidden()
	}
	if res.CustomerConfirmed {
		return nil, apperror.ErrAlreadyConfirmed()
	}
	if res.Status != domain.ReservationStatusCompleted {
		return nil, apperror.InvalidState(fmt.Sprintf(
			"La réservation doit être récupérée avant d'être confirmée (statut actuel : %s)", res.Status))
	}

	var merchantTxn *domain.WalletTransaction
	if res.TotalPrice.IsPositive() {
		merchantTxn, err = s.creditMerchant(ctx, dbTx, ports.MerchantPaymentRequest{
			ReservationID: res.ID,
			MerchantID:    res.MerchantID,
			Amount:        res.TotalPrice,
			Description:   fmt.Sprintf("Paiement de la réservation %s", res.ID.String()[:8]),
		})
		if err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	flipped, err := s.reservationRepo.MarkCustomerConfirmed(ctx, dbTx, res.ID, now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("mark reservation confirmed: %w", err))
	}
	if !flipped {
		return nil, apperror.ErrAlreadyConfirmed()
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	res.CustomerConfirmed = true
	res.CustomerConfirmedAt = &now
	res.UpdatedAt = now

	s.log.Info().
		Str("reservation_id", res.ID.String()).
		Str("merchant_id", res.MerchantID.String()).
		Str("amount", res.TotalPrice.String()).
		Msg("receipt confirmed")

	if merchantTxn != nil {
		s.notifyMerchantPaid(ctx, res.MerchantID, res.TotalPrice)
	}
	s.notifier.Notify(ctx, customerID, "Réception confirmée",
		"Merci ! Votre confirmation a bien été enregistrée.", domain.SeveritySuccess)

	return &ports.ReceiptConfirmation{Reservation: res, MerchantTransaction: merchantTxn}, nil
}

// ReconcileWallet compares the stored balance with the sum of completed entries.
func (s *WalletServiceImpl) ReconcileWallet(ctx context.Context, userID uuid.UUID) (*ports.Reconciliation, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("Portefeuille")
	}

	sum, err := s.txRepo.SumCompleted(ctx, wallet.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("sum ledger: %w", err))
	}

	drift := wallet.Balance.Sub(sum)
	rec := &ports.Reconciliation{
		WalletID:   wallet.ID,
		UserID:     userID,
		Balance:    wallet.Balance,
		LedgerSum:  sum,
		Drift:      drift,
		Consistent: drift.IsZero(),
	}
	if !rec.Consistent {
		s.log.Error().
			Str("wallet_id", wallet.ID.String()).
			Str("balance", wallet.Balance.String()).
			Str("ledger_sum", sum.String()).
			Msg("wallet balance drifted from ledger")
	}
	return rec, nil
}

func (s *WalletServiceImpl) creditMerchant(ctx context.Context, dbTx pgx.Tx, req ports.MerchantPaymentRequest) (*domain.WalletTransaction, error) {
	description := req.Description
	if description == "" {
		description = "Paiement client"
	}
	return s.appendTransaction(ctx, dbTx, ledgerEntry{
		UserID:        req.MerchantID,
		Type:          domain.TransactionTypeMerchantPayment,
		Amount:        req.Amount,
		Description:   description,
		ReferenceID:   &req.ReservationID,
		ReferenceType: refType(domain.ReferenceTypeReservation),
		Metadata:      map[string]any{"reservation_id": req.ReservationID.String()},
	})
}

func (s *WalletServiceImpl) notifyMerchantPaid(ctx context.Context, merchantID uuid.UUID, amount decimal.Decimal) {
	s.notifier.Notify(ctx, merchantID, "Paiement reçu",
		fmt.Sprintf("Vous avez reçu %s pour une commande récupérée.", euros(amount)), domain.SeveritySuccess)
}

// move runs one ledger append in its own transaction. With a client key the
// outcome is recorded so a retry replays it instead of moving money twice;
// replayed reports whether the result came from that record.
func (s *WalletServiceImpl) move(ctx context.Context, op, clientKey string, entry ledgerEntry) (txn *domain.WalletTransaction, replayed bool, err error) {
	var idempKey string
	if clientKey != "" {
		idempKey = domain.BuildIdempotencyKey(entry.UserID, op, clientKey)

		cachedTxn, err := s.lookupIdempotent(ctx, idempKey)
		if err != nil {
			return nil, false, err
		}
		if cachedTxn != nil {
			return cachedTxn, true, nil
		}

		release, err := s.acquire(ctx, idempKey)
		if err != nil {
			return nil, false, err
		}
		defer release()

		// The previous holder may have committed between the lookup and acquire.
		cachedTxn, err = s.lookupIdempotent(ctx, idempKey)
		if err != nil {
			return nil, false, err
		}
		if cachedTxn != nil {
			return cachedTxn, true, nil
		}
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	txn, err = s.appendTransaction(ctx, dbTx, entry)
	if err != nil {
		return nil, false, err
	}

	var respJSON []byte
	if idempKey != "" {
		respJSON, err = json.Marshal(txn)
		if err != nil {
			return nil, false, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
		}
		if err := s.idempRepo.Create(ctx, dbTx, &domain.IdempotencyLog{
			Key:           idempKey,
			TransactionID: txn.ID,
			ResponseJSON:  respJSON,
			CreatedAt:     txn.CreatedAt,
		}); err != nil {
			if errors.Is(err, ports.ErrDuplicateKey) {
				return s.replayAfterRace(ctx, dbTx, idempKey)
			}
			return nil, false, apperror.InternalError(fmt.Errorf("save idempotency log: %w", err))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	// Post-process: cache in Redis (best-effort)
	if idempKey != "" && s.idempCache != nil {
		if err := s.idempCache.Set(ctx, idempKey, respJSON, s.idempTTL); err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache idempotency in redis")
		}
	}

	return txn, false, nil
}

// replayAfterRace discards this attempt's entry and returns the one recorded by
// the request that won the key.
func (s *WalletServiceImpl) replayAfterRace(ctx context.Context, dbTx pgx.Tx, key string) (*domain.WalletTransaction, bool, error) {
	if err := dbTx.Rollback(ctx); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("rollback after idempotency race failed")
	}
	txn, err := s.lookupIdempotent(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if txn == nil {
		return nil, false, apperror.ErrRequestInFlight()
	}
	s.log.Info().Str("key", key).Str("tx_id", txn.ID.String()).Msg("idempotency race lost, replaying")
	return txn, true, nil
}

// lookupIdempotent checks Redis first, then the database record.
func (s *WalletServiceImpl) lookupIdempotent(ctx context.Context, key string) (*domain.WalletTransaction, error) {
	if s.idempCache != nil {
		cached, err := s.idempCache.Get(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, falling through to DB")
		}
		if cached != nil {
			return unmarshalCachedTransaction(cached)
		}
	}

	idempLog, err := s.idempRepo.Get(ctx, key)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if idempLog != nil {
		return unmarshalCachedTransaction(idempLog.ResponseJSON)
	}
	return nil, nil
}

// acquire takes the in-flight lock for key. When Redis is unavailable the
// unique idempotency key in the database remains the last line.
func (s *WalletServiceImpl) acquire(ctx context.Context, key string) (func(), error) {
	noop := func() {}
	if s.guard == nil {
		return noop, nil
	}
	ok, err := s.guard.Acquire(ctx, key, inFlightTTL)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("in-flight guard unavailable")
		return noop, nil
	}
	if !ok {
		return nil, apperror.ErrRequestInFlight()
	}
	return func() {
		if err := s.guard.Release(context.WithoutCancel(ctx), key); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("failed to release in-flight guard")
		}
	}, nil
}

// unmarshalCachedTransaction deserializes a cached ledger entry.
func unmarshalCachedTransaction(data []byte) (*domain.WalletTransaction, error) {
	txn := &domain.WalletTransaction{}
	if err := json.Unmarshal(data, txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached tx: %w", err))
	}
	return txn, nil
}
