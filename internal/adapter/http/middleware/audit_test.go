package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports/mocks"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestAuditLog_WithdrawalApprove(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAudit := mocks.NewMockAuditService(ctrl)

	adminID := uuid.New()
	withdrawalID := uuid.New()

	var got *domain.AuditLog
	mockAudit.EXPECT().Log(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, entry *domain.AuditLog) { got = entry },
	)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(CtxUserID, adminID)
		c.Next()
	}, AuditLog(mockAudit))
	r.POST("/api/v1/admin/withdrawals/:id/approve", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/admin/withdrawals/"+withdrawalID.String()+"/approve", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	if assert.NotNil(t, got) {
		assert.Equal(t, domain.AuditActionWithdrawalApprove, got.Action)
		assert.Equal(t, "withdrawal", got.ResourceType)
		assert.Equal(t, withdrawalID.String(), got.ResourceID)
		if assert.NotNil(t, got.ActorID) {
			assert.Equal(t, adminID, *got.ActorID)
		}
		assert.Contains(t, got.Details, `"status":200`)
	}
}

func TestAuditLog_RechargeWithoutActor(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAudit := mocks.NewMockAuditService(ctrl)

	mockAudit.EXPECT().Log(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, entry *domain.AuditLog) {
			assert.Equal(t, domain.AuditActionRecharge, entry.Action)
			assert.Nil(t, entry.ActorID)
			assert.Empty(t, entry.ResourceID)
		},
	)

	r := gin.New()
	r.Use(AuditLog(mockAudit))
	r.POST("/api/v1/wallet/recharge", func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/wallet/recharge", nil))
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestAuditLog_SkipsReads(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAudit := mocks.NewMockAuditService(ctrl)

	r := gin.New()
	r.Use(AuditLog(mockAudit))
	r.GET("/api/v1/wallet/balance", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"balance": "100.00"})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/wallet/balance", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuditLog_SkipsFailedRequests(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAudit := mocks.NewMockAuditService(ctrl)

	r := gin.New()
	r.Use(AuditLog(mockAudit))
	r.POST("/api/v1/wallet/pay", func(c *gin.Context) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad"})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/wallet/pay", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuditLog_SkipsUnmappedRoutes(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAudit := mocks.NewMockAuditService(ctrl)

	r := gin.New()
	r.Use(AuditLog(mockAudit))
	r.POST("/api/v1/other", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/other", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
