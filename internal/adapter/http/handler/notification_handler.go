package handler

import (
	"strconv"

	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"
	"surplus-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// NotificationHandler serves the caller's in-app inbox.
type NotificationHandler struct {
	notificationSvc ports.NotificationService
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(notificationSvc ports.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationSvc: notificationSvc}
}

// List handles GET /api/v1/notifications?limit=.
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > maxPageSize {
		limit = 50
	}

	items, err := h.notificationSvc.List(c.Request.Context(), userID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	if items == nil {
		items = []domain.Notification{}
	}
	response.OK(c, items)
}
