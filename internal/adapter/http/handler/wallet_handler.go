package handler

import (
	"time"

	"surplus-ledger/internal/adapter/http/dto"
	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"
	"surplus-ledger/pkg/apperror"
	"surplus-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey lets clients retry a write without repeating it.
const HeaderIdempotencyKey = "Idempotency-Key"

// WalletHandler handles the caller's own wallet.
type WalletHandler struct {
	walletSvc ports.WalletService
	currency  string
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService, currency string) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc, currency: currency}
}

// GetWallet handles GET /api/v1/wallet.
func (h *WalletHandler) GetWallet(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	wallet, err := h.walletSvc.GetOrCreateWallet(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToWalletResponse(wallet, h.currency))
}

// GetBalance handles GET /api/v1/wallet/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	balance := h.walletSvc.GetBalance(c.Request.Context(), userID)
	response.OK(c, dto.BalanceResponse{
		Balance:  domain.FormatMoney(balance),
		Currency: h.currency,
	})
}

// ListTransactions handles GET /api/v1/wallet/transactions.
// Filters: type, status, from, to (RFC3339), page, page_size.
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	page, pageSize := pagination(c)
	params := ports.TransactionListParams{
		UserID:   userID,
		Page:     page,
		PageSize: pageSize,
	}

	if t := c.Query("type"); t != "" {
		txType := domain.TransactionType(t)
		if !txType.IsValid() {
			response.Error(c, apperror.Validation("Type de transaction inconnu : "+t))
			return
		}
		params.Type = &txType
	}
	if s := c.Query("status"); s != "" {
		status := domain.TransactionStatus(s)
		params.Status = &status
	}
	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{{"from", &params.From}, {"to", &params.To}} {
		raw := c.Query(bound.name)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, apperror.Validation("Date invalide : "+bound.name))
			return
		}
		*bound.dst = &ts
	}

	txns, total, err := h.walletSvc.ListTransactions(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.TransactionResponse, 0, len(txns))
	for i := range txns {
		items = append(items, dto.ToTransactionResponse(&txns[i]))
	}
	response.Paginated(c, items, page, pageSize, total)
}

// Recharge handles POST /api/v1/wallet/recharge.
// The card capture happens on the payment platform before this call; the ledger
// trusts the token holder's own top-up. Only paying roles (customer, association)
// may recharge; merchants earn through confirmed pickups and beneficiaries never pay.
func (h *WalletHandler) Recharge(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.RechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, dto.BindingError(err))
		return
	}
	dto.SanitizeStruct(&req)

	txn, err := h.walletSvc.Recharge(c.Request.Context(), ports.RechargeRequest{
		UserID:         userID,
		Amount:         req.Amount,
		Description:    req.Description,
		IdempotencyKey: c.GetHeader(HeaderIdempotencyKey),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.ToTransactionResponse(txn))
}

// Pay handles POST /api/v1/wallet/pay.
func (h *WalletHandler) Pay(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.PayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, dto.BindingError(err))
		return
	}
	dto.SanitizeStruct(&req)

	refID, err := parseOptionalUUID(req.ReferenceID)
	if err != nil {
		response.Error(c, apperror.Validation("Champ invalide : reference_id"))
		return
	}

	payReq := ports.PaymentRequest{
		UserID:         userID,
		Amount:         req.Amount,
		Description:    req.Description,
		ReferenceID:    refID,
		IdempotencyKey: c.GetHeader(HeaderIdempotencyKey),
	}
	if req.ReferenceType != nil {
		rt := domain.ReferenceType(*req.ReferenceType)
		payReq.ReferenceType = &rt
	}

	txn, err := h.walletSvc.PayFromWallet(c.Request.Context(), payReq)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.ToTransactionResponse(txn))
}

// ConfirmReceipt handles POST /api/v1/reservations/:id/confirm-receipt.
func (h *WalletHandler) ConfirmReceipt(c *gin.Context) {
	customerID, ok := currentUser(c)
	if !ok {
		return
	}
	reservationID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	result, err := h.walletSvc.ConfirmReceiptAndPayMerchant(c.Request.Context(), reservationID, customerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	body := gin.H{"reservation": result.Reservation}
	if result.MerchantTransaction != nil {
		body["merchant_transaction"] = dto.ToTransactionResponse(result.MerchantTransaction)
	}
	response.OK(c, body)
}
