package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type auditRoute struct {
	action       domain.AuditAction
	resourceType string
}

// auditRoutes maps "METHOD route-pattern" to the recorded action.
var auditRoutes = map[string]auditRoute{
	"POST /api/v1/wallet/recharge":                    {domain.AuditActionRecharge, "wallet"},
	"POST /api/v1/wallet/pay":                         {domain.AuditActionPayment, "transaction"},
	"POST /api/v1/admin/refunds":                      {domain.AuditActionRefund, "transaction"},
	"POST /api/v1/reservations/:id/confirm-receipt":   {domain.AuditActionConfirmReceipt, "reservation"},
	"POST /api/v1/merchant/withdrawals":               {domain.AuditActionWithdrawalRequest, "withdrawal"},
	"POST /api/v1/merchant/withdrawals/:id/cancel":    {domain.AuditActionWithdrawalCancel, "withdrawal"},
	"POST /api/v1/admin/withdrawals/:id/approve":      {domain.AuditActionWithdrawalApprove, "withdrawal"},
	"POST /api/v1/admin/withdrawals/:id/processing":   {domain.AuditActionWithdrawalProcessing, "withdrawal"},
	"POST /api/v1/admin/withdrawals/:id/complete":     {domain.AuditActionWithdrawalComplete, "withdrawal"},
	"POST /api/v1/admin/withdrawals/:id/reject":       {domain.AuditActionWithdrawalReject, "withdrawal"},
	"POST /api/v1/merchant/bank-accounts":             {domain.AuditActionBankAccountAdd, "bank_account"},
	"PUT /api/v1/merchant/bank-accounts/:id/default":  {domain.AuditActionBankAccountDefault, "bank_account"},
	"DELETE /api/v1/merchant/bank-accounts/:id":       {domain.AuditActionBankAccountDelete, "bank_account"},
	"POST /api/v1/suspended-baskets":                  {domain.AuditActionBasketCreate, "suspended_basket"},
	"POST /api/v1/suspended-baskets/:id/reserve":      {domain.AuditActionBasketReserve, "suspended_basket"},
	"POST /api/v1/suspended-baskets/:id/claim":        {domain.AuditActionBasketClaim, "suspended_basket"},
	"POST /api/v1/admin/suspended-baskets/:id/expire": {domain.AuditActionBasketExpire, "suspended_basket"},
}

// AuditLog records successful write operations after the handler ran.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			return
		}

		route, ok := auditRoutes[c.Request.Method+" "+c.FullPath()]
		if !ok {
			return
		}

		var actorID *uuid.UUID
		if id, ok := UserID(c); ok {
			actorID = &id
		}

		details, _ := json.Marshal(map[string]any{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"request_id": c.GetString(CtxRequestID),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			ActorID:      actorID,
			Action:       route.action,
			ResourceType: route.resourceType,
			ResourceID:   c.Param("id"),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now().UTC(),
		})
	}
}
