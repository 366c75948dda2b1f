package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"
	"surplus-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SuspendedBasketServiceImpl implements ports.SuspendedBasketService.
// Every status change is a compare-and-swap executed in the transaction that
// carries its side effects, so a lost race rolls the side effects back.
type SuspendedBasketServiceImpl struct {
	ledger
	basketRepo      ports.SuspendedBasketRepository
	lotRepo         ports.LotRepository
	reservationRepo ports.ReservationRepository
	notifier        ports.Notifier
	transactor      ports.DBTransactor
	log             zerolog.Logger
}

// NewSuspendedBasketService creates a new SuspendedBasketServiceImpl.
func NewSuspendedBasketService(
	walletRepo ports.WalletRepository,
	txRepo ports.WalletTransactionRepository,
	basketRepo ports.SuspendedBasketRepository,
	lotRepo ports.LotRepository,
	reservationRepo ports.ReservationRepository,
	notifier ports.Notifier,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *SuspendedBasketServiceImpl {
	return &SuspendedBasketServiceImpl{
		ledger:          ledger{walletRepo: walletRepo, txRepo: txRepo},
		basketRepo:      basketRepo,
		lotRepo:         lotRepo,
		reservationRepo: reservationRepo,
		notifier:        notifier,
		transactor:      transactor,
		log:             log,
	}
}

// CreateSuspendedBasket donates quantity units of a lot. The basket row and the
// stock hold are written in one transaction; with PayWithWallet the donor is
// debited in that same transaction.
func (s *SuspendedBasketServiceImpl) CreateSuspendedBasket(ctx context.Context, req ports.BasketCreateRequest) (*domain.SuspendedBasket, error) {
	if req.Quantity < 1 {
		return nil, apperror.Validation("La quantité doit être d'au moins 1")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	lot, err := s.lotRepo.GetByIDForUpdate(ctx, dbTx, req.LotID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock lot: %w", err))
	}
	if lot == nil {
		return nil, apperror.ErrNotFound("Lot")
	}
	if lot.Status != domain.LotStatusAvailable {
		return nil, apperror.InvalidState("Ce lot n'est plus disponible")
	}
	if lot.AvailableQuantity() < req.Quantity {
		return nil, apperror.InvalidState(fmt.Sprintf(
			"Stock insuffisant : %d disponible(s), %d demandé(s)", lot.AvailableQuantity(), req.Quantity))
	}

	now := time.Now().UTC()
	basket := &domain.SuspendedBasket{
		ID:         uuid.New(),
		DonorID:    req.DonorID,
		MerchantID: lot.MerchantID,
		LotID:      lot.ID,
		Quantity:   req.Quantity,
		Amount:     domain.RoundMoney(lot.DiscountedPrice.Mul(decimal.NewFromInt(int64(req.Quantity)))),
		Status:     domain.SuspendedBasketStatusAvailable,
		Notes:      req.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if req.PayWithWallet && basket.Amount.IsPositive() {
		txn, err := s.appendTransaction(ctx, dbTx, ledgerEntry{
			UserID:        req.DonorID,
			Type:          domain.TransactionTypePayment,
			Amount:        basket.Amount.Neg(),
			Description:   fmt.Sprintf("Don d'un panier suspendu : %s", lot.Title),
			ReferenceID:   &basket.ID,
			ReferenceType: refType(domain.ReferenceTypeSuspendedBasket),
			RequireFunds:  true,
		})
		if err != nil {
			return nil, err
		}
		basket.PaymentTransactionID = &txn.ID
	}

	if err := s.basketRepo.Create(ctx, dbTx, basket); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create basket: %w", err))
	}
	held, err := s.lotRepo.AdjustReserved(ctx, dbTx, lot.ID, req.Quantity)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("reserve lot stock: %w", err))
	}
	if !held {
		return nil, apperror.Conflict("Le stock du lot vient de changer, veuillez réessayer")
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("basket_id", basket.ID.String()).
		Str("lot_id", lot.ID.String()).
		Int("quantity", basket.Quantity).
		Str("amount", basket.Amount.String()).
		Msg("suspended basket created")

	s.notifier.Notify(ctx, req.DonorID, "Merci pour votre don",
		fmt.Sprintf("Votre panier suspendu de %s attend son bénéficiaire.", euros(basket.Amount)), domain.SeveritySuccess)

	return basket, nil
}

// ReserveSuspendedBasket puts a soft hold on an available basket for one beneficiary.
func (s *SuspendedBasketServiceImpl) ReserveSuspendedBasket(ctx context.Context, basketID, beneficiaryID uuid.UUID) (*domain.SuspendedBasket, error) {
	basket, err := s.GetSuspendedBasket(ctx, basketID)
	if err != nil {
		return nil, err
	}
	if basket.Status != domain.SuspendedBasketStatusAvailable {
		return nil, apperror.ErrBasketNotAvailable()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	swapped, err := s.basketRepo.Reserve(ctx, dbTx, basketID, beneficiaryID, now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("reserve basket: %w", err))
	}
	if !swapped {
		return nil, apperror.Conflict("Ce panier suspendu vient d'être réservé par quelqu'un d'autre")
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	basket.Status = domain.SuspendedBasketStatusReserved
	basket.ReservedBy = &beneficiaryID
	basket.ReservedAt = &now
	basket.UpdatedAt = now

	s.log.Info().Str("basket_id", basketID.String()).Str("beneficiary_id", beneficiaryID.String()).Msg("suspended basket reserved")
	return basket, nil
}

// ClaimSuspendedBasket turns a basket into a free reservation exactly once. The
// reservation insert and the conditional status flip share one transaction: the
// loser of a concurrent claim gets AlreadyClaimed and its reservation is rolled back.
func (s *SuspendedBasketServiceImpl) ClaimSuspendedBasket(ctx context.Context, basketID, beneficiaryID uuid.UUID) (*ports.BasketClaim, error) {
	basket, err := s.GetSuspendedBasket(ctx, basketID)
	if err != nil {
		return nil, err
	}
	switch {
	case basket.Status == domain.SuspendedBasketStatusClaimed:
		return nil, apperror.ErrAlreadyClaimed()
	case !basket.ClaimableBy(beneficiaryID):
		return nil, apperror.ErrBasketNotAvailable()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	lot, err := s.lotRepo.GetByIDForUpdate(ctx, dbTx, basket.LotID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock lot: %w", err))
	}
	if lot == nil {
		return nil, apperror.ErrNotFound("Lot")
	}
	// The basket's units are already counted in quantity_reserved.
	if lot.Status == domain.LotStatusExpired || lot.QuantityReserved < basket.Quantity {
		return nil, apperror.InvalidState("Le lot associé à ce panier n'est plus disponible")
	}

	pin, err := generatePickupPIN()
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	now := time.Now().UTC()
	res := &domain.Reservation{
		ID:                uuid.New(),
		LotID:             lot.ID,
		UserID:            beneficiaryID,
		MerchantID:        lot.MerchantID,
		Quantity:          basket.Quantity,
		TotalPrice:        decimal.Zero,
		Status:            domain.ReservationStatusConfirmed,
		PickupPIN:         pin,
		SuspendedBasketID: &basket.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	// A concurrent claimant that inserted first owns the basket's reservation slot.
	if err := s.reservationRepo.Create(ctx, dbTx, res); err != nil {
		if errors.Is(err, ports.ErrDuplicateKey) {
			return nil, apperror.ErrAlreadyClaimed()
		}
		return nil, apperror.InternalError(fmt.Errorf("create reservation: %w", err))
	}

	swapped, err := s.basketRepo.Claim(ctx, dbTx, basket.ID, beneficiaryID, res.ID, now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("claim basket: %w", err))
	}
	if !swapped {
		return nil, apperror.ErrAlreadyClaimed()
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	basket.Status = domain.SuspendedBasketStatusClaimed
	basket.ClaimedBy = &beneficiaryID
	basket.ClaimedAt = &now
	basket.ReservationID = &res.ID
	basket.UpdatedAt = now

	s.log.Info().
		Str("basket_id", basket.ID.String()).
		Str("reservation_id", res.ID.String()).
		Str("beneficiary_id", beneficiaryID.String()).
		Msg("suspended basket claimed")

	s.notifier.Notify(ctx, beneficiaryID, "Panier suspendu attribué",
		fmt.Sprintf("Votre panier vous attend chez le commerçant. Code de retrait : %s", pin), domain.SeveritySuccess)
	s.notifier.Notify(ctx, basket.DonorID, "Votre don a trouvé preneur",
		"Le panier suspendu que vous avez offert vient d'être attribué.", domain.SeverityInfo)

	return &ports.BasketClaim{Basket: basket, Reservation: res}, nil
}

// ExpireSuspendedBasket withdraws an unclaimed basket: its stock goes back to the
// lot and a donor who paid from the wallet is refunded.
func (s *SuspendedBasketServiceImpl) ExpireSuspendedBasket(ctx context.Context, basketID uuid.UUID) (*domain.SuspendedBasket, error) {
	basket, err := s.GetSuspendedBasket(ctx, basketID)
	if err != nil {
		return nil, err
	}
	if !basket.IsOpen() {
		return nil, apperror.InvalidState("Seul un panier disponible ou réservé peut expirer")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	swapped, err := s.basketRepo.Expire(ctx, dbTx, basket.ID, now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("expire basket: %w", err))
	}
	if !swapped {
		return nil, apperror.Conflict("Ce panier suspendu vient de changer d'état")
	}

	released, err := s.lotRepo.AdjustReserved(ctx, dbTx, basket.LotID, -basket.Quantity)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("release lot stock: %w", err))
	}
	if !released {
		return nil, apperror.InternalError(fmt.Errorf("release lot stock: lot %s holds fewer than %d units", basket.LotID, basket.Quantity))
	}

	var refunded bool
	if basket.PaymentTransactionID != nil {
		if _, err := s.appendTransaction(ctx, dbTx, ledgerEntry{
			UserID:        basket.DonorID,
			Type:          domain.TransactionTypeRefund,
			Amount:        basket.Amount,
			Description:   "Remboursement d'un panier suspendu expiré",
			ReferenceID:   &basket.ID,
			ReferenceType: refType(domain.ReferenceTypeSuspendedBasket),
		}); err != nil {
			return nil, err
		}
		refunded = true
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	basket.Status = domain.SuspendedBasketStatusExpired
	basket.UpdatedAt = now

	s.log.Info().Str("basket_id", basket.ID.String()).Bool("refunded", refunded).Msg("suspended basket expired")

	message := "Votre panier suspendu n'a pas été récupéré à temps."
	if refunded {
		message += fmt.Sprintf(" %s ont été remboursés sur votre portefeuille.", euros(basket.Amount))
	}
	s.notifier.Notify(ctx, basket.DonorID, "Panier suspendu expiré", message, domain.SeverityWarning)

	return basket, nil
}

func (s *SuspendedBasketServiceImpl) GetSuspendedBasket(ctx context.Context, basketID uuid.UUID) (*domain.SuspendedBasket, error) {
	basket, err := s.basketRepo.GetByID(ctx, basketID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get basket: %w", err))
	}
	if basket == nil {
		return nil, apperror.ErrNotFound("Panier suspendu")
	}
	return basket, nil
}

func (s *SuspendedBasketServiceImpl) ListSuspendedBaskets(ctx context.Context, params ports.BasketListParams) ([]domain.SuspendedBasket, int64, error) {
	params.Page, params.PageSize = normalizePage(params.Page, params.PageSize)
	items, total, err := s.basketRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list baskets: %w", err))
	}
	return items, total, nil
}
