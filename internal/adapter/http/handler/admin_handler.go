package handler

import (
	"surplus-ledger/internal/adapter/http/dto"
	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"
	"surplus-ledger/pkg/apperror"
	"surplus-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AdminHandler handles back-office operations on withdrawals and wallets.
type AdminHandler struct {
	withdrawalSvc ports.WithdrawalService
	walletSvc     ports.WalletService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(withdrawalSvc ports.WithdrawalService, walletSvc ports.WalletService) *AdminHandler {
	return &AdminHandler{withdrawalSvc: withdrawalSvc, walletSvc: walletSvc}
}

// ListWithdrawals handles GET /api/v1/admin/withdrawals.
func (h *AdminHandler) ListWithdrawals(c *gin.Context) {
	params, ok := withdrawalListParams(c)
	if !ok {
		return
	}
	if m := c.Query("merchant_id"); m != "" {
		merchantID, err := uuid.Parse(m)
		if err != nil {
			response.Error(c, apperror.Validation("Champ invalide : merchant_id"))
			return
		}
		params.MerchantID = &merchantID
	}

	ws, total, err := h.withdrawalSvc.ListWithdrawals(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, dto.ToWithdrawalResponses(ws), params.Page, params.PageSize, total)
}

type withdrawalTransition func(c *gin.Context, withdrawalID, adminID uuid.UUID) (*domain.WithdrawalRequest, error)

func (h *AdminHandler) transition(c *gin.Context, apply withdrawalTransition) {
	adminID, ok := currentUser(c)
	if !ok {
		return
	}
	withdrawalID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	w, err := apply(c, withdrawalID, adminID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToWithdrawalResponse(w))
}

// ApproveWithdrawal handles POST /api/v1/admin/withdrawals/:id/approve.
func (h *AdminHandler) ApproveWithdrawal(c *gin.Context) {
	h.transition(c, func(c *gin.Context, wid, adminID uuid.UUID) (*domain.WithdrawalRequest, error) {
		return h.withdrawalSvc.ApproveWithdrawal(c.Request.Context(), wid, adminID)
	})
}

// MarkWithdrawalProcessing handles POST /api/v1/admin/withdrawals/:id/processing.
func (h *AdminHandler) MarkWithdrawalProcessing(c *gin.Context) {
	h.transition(c, func(c *gin.Context, wid, adminID uuid.UUID) (*domain.WithdrawalRequest, error) {
		return h.withdrawalSvc.MarkWithdrawalProcessing(c.Request.Context(), wid, adminID)
	})
}

// CompleteWithdrawal handles POST /api/v1/admin/withdrawals/:id/complete.
func (h *AdminHandler) CompleteWithdrawal(c *gin.Context) {
	h.transition(c, func(c *gin.Context, wid, adminID uuid.UUID) (*domain.WithdrawalRequest, error) {
		return h.withdrawalSvc.CompleteWithdrawal(c.Request.Context(), wid, adminID)
	})
}

// RejectWithdrawal handles POST /api/v1/admin/withdrawals/:id/reject.
func (h *AdminHandler) RejectWithdrawal(c *gin.Context) {
	var req dto.RejectWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, dto.BindingError(err))
		return
	}
	dto.SanitizeStruct(&req)

	h.transition(c, func(c *gin.Context, wid, adminID uuid.UUID) (*domain.WithdrawalRequest, error) {
		return h.withdrawalSvc.RejectWithdrawal(c.Request.Context(), wid, adminID, req.Reason)
	})
}

// Refund handles POST /api/v1/admin/refunds.
func (h *AdminHandler) Refund(c *gin.Context) {
	var req dto.RefundRequest
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

	refundReq := ports.RefundRequest{
		UserID:      uuid.MustParse(req.UserID),
		Amount:      req.Amount,
		Description: req.Description,
		ReferenceID: refID,
	}
	if req.ReferenceType != nil {
		rt := domain.ReferenceType(*req.ReferenceType)
		refundReq.ReferenceType = &rt
	}

	txn, err := h.walletSvc.RefundToWallet(c.Request.Context(), refundReq)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.ToTransactionResponse(txn))
}

// Reconcile handles GET /api/v1/admin/wallets/:userId/reconcile.
func (h *AdminHandler) Reconcile(c *gin.Context) {
	userID, ok := pathUUID(c, "userId")
	if !ok {
		return
	}

	rec, err := h.walletSvc.ReconcileWallet(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}
