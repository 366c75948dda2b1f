package handler

import (
	"surplus-ledger/internal/adapter/http/dto"
	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"
	"surplus-ledger/pkg/apperror"
	"surplus-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// MerchantHandler handles the merchant wallet page: summary, payouts and bank accounts.
type MerchantHandler struct {
	withdrawalSvc  ports.WithdrawalService
	bankSvc        ports.BankAccountService
	reportingSvc   ports.ReportingService
	commissionRate decimal.Decimal
	minWithdrawal  decimal.Decimal
}

// NewMerchantHandler creates a new MerchantHandler.
func NewMerchantHandler(
	withdrawalSvc ports.WithdrawalService,
	bankSvc ports.BankAccountService,
	reportingSvc ports.ReportingService,
	commissionRate, minWithdrawal decimal.Decimal,
) *MerchantHandler {
	return &MerchantHandler{
		withdrawalSvc:  withdrawalSvc,
		bankSvc:        bankSvc,
		reportingSvc:   reportingSvc,
		commissionRate: commissionRate,
		minWithdrawal:  minWithdrawal,
	}
}

// Summary handles GET /api/v1/merchant/wallet/summary?period=day|week|month|all.
func (h *MerchantHandler) Summary(c *gin.Context) {
	merchantID, ok := currentUser(c)
	if !ok {
		return
	}

	summary, err := h.reportingSvc.GetMerchantSummary(c.Request.Context(), merchantID, c.DefaultQuery("period", "all"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, summary)
}

// PreviewWithdrawal handles GET /api/v1/merchant/withdrawals/preview?amount=.
func (h *MerchantHandler) PreviewWithdrawal(c *gin.Context) {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	amounts, err := h.withdrawalSvc.PreviewWithdrawal(amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.WithdrawalPreviewResponse{
		RequestedAmount:  domain.FormatMoney(amounts.Requested),
		CommissionAmount: domain.FormatMoney(amounts.Commission),
		NetAmount:        domain.FormatMoney(amounts.Net),
		CommissionRate:   h.commissionRate.String(),
		MinimumAmount:    domain.FormatMoney(h.minWithdrawal),
	})
}

// CreateWithdrawal handles POST /api/v1/merchant/withdrawals.
func (h *MerchantHandler) CreateWithdrawal(c *gin.Context) {
	merchantID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.CreateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, dto.BindingError(err))
		return
	}
	dto.SanitizeStruct(&req)

	bankAccountID, err := parseOptionalUUID(req.BankAccountID)
	if err != nil {
		response.Error(c, apperror.Validation("Champ invalide : bank_account_id"))
		return
	}
	if bankAccountID == nil && (req.BankAccountName == "" || req.BankAccountIBAN == "") {
		response.Error(c, apperror.Validation("Compte bancaire requis : bank_account_id ou nom et IBAN"))
		return
	}

	w, err := h.withdrawalSvc.CreateWithdrawal(c.Request.Context(), ports.WithdrawalCreateRequest{
		MerchantID:      merchantID,
		Amount:          req.Amount,
		BankAccountID:   bankAccountID,
		BankAccountName: req.BankAccountName,
		BankAccountIBAN: req.BankAccountIBAN,
		BankAccountBIC:  req.BankAccountBIC,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.ToWithdrawalResponse(w))
}

// ListWithdrawals handles GET /api/v1/merchant/withdrawals.
func (h *MerchantHandler) ListWithdrawals(c *gin.Context) {
	merchantID, ok := currentUser(c)
	if !ok {
		return
	}

	params, ok := withdrawalListParams(c)
	if !ok {
		return
	}
	params.MerchantID = &merchantID

	ws, total, err := h.withdrawalSvc.ListWithdrawals(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, dto.ToWithdrawalResponses(ws), params.Page, params.PageSize, total)
}

// CancelWithdrawal handles POST /api/v1/merchant/withdrawals/:id/cancel.
func (h *MerchantHandler) CancelWithdrawal(c *gin.Context) {
	merchantID, ok := currentUser(c)
	if !ok {
		return
	}
	withdrawalID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	w, err := h.withdrawalSvc.CancelWithdrawal(c.Request.Context(), withdrawalID, merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToWithdrawalResponse(w))
}

// AddBankAccount handles POST /api/v1/merchant/bank-accounts.
func (h *MerchantHandler) AddBankAccount(c *gin.Context) {
	merchantID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.AddBankAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, dto.BindingError(err))
		return
	}
	dto.SanitizeStruct(&req)

	acct, err := h.bankSvc.AddBankAccount(c.Request.Context(), ports.BankAccountCreateRequest{
		MerchantID:  merchantID,
		AccountName: req.AccountName,
		IBAN:        req.IBAN,
		BIC:         req.BIC,
		IsDefault:   req.IsDefault,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, acct)
}

// ListBankAccounts handles GET /api/v1/merchant/bank-accounts.
func (h *MerchantHandler) ListBankAccounts(c *gin.Context) {
	merchantID, ok := currentUser(c)
	if !ok {
		return
	}

	accts, err := h.bankSvc.ListBankAccounts(c.Request.Context(), merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if accts == nil {
		accts = []domain.MerchantBankAccount{}
	}
	response.OK(c, accts)
}

// SetDefaultBankAccount handles PUT /api/v1/merchant/bank-accounts/:id/default.
func (h *MerchantHandler) SetDefaultBankAccount(c *gin.Context) {
	merchantID, ok := currentUser(c)
	if !ok {
		return
	}
	accountID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	acct, err := h.bankSvc.SetDefaultBankAccount(c.Request.Context(), merchantID, accountID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, acct)
}

// DeleteBankAccount handles DELETE /api/v1/merchant/bank-accounts/:id.
func (h *MerchantHandler) DeleteBankAccount(c *gin.Context) {
	merchantID, ok := currentUser(c)
	if !ok {
		return
	}
	accountID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.bankSvc.DeleteBankAccount(c.Request.Context(), merchantID, accountID); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"deleted": accountID.String()})
}

// withdrawalListParams reads page, page_size and status.
func withdrawalListParams(c *gin.Context) (ports.WithdrawalListParams, bool) {
	page, pageSize := pagination(c)
	params := ports.WithdrawalListParams{Page: page, PageSize: pageSize}
	if s := c.Query("status"); s != "" {
		status := domain.WithdrawalStatus(s)
		if !status.IsValid() {
			response.Error(c, apperror.Validation("Statut inconnu : "+s))
			return params, false
		}
		params.Status = &status
	}
	return params, true
}
