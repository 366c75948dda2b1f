package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationSeverity drives how the client renders a notification.
type NotificationSeverity string

const (
	SeverityInfo    NotificationSeverity = "info"
	SeveritySuccess NotificationSeverity = "success"
	SeverityWarning NotificationSeverity = "warning"
	SeverityError   NotificationSeverity = "error"
)

// Notification is an in-app message addressed to one user.
type Notification struct {
	ID        uuid.UUID            `json:"id"`
	UserID    uuid.UUID            `json:"user_id"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	Severity  NotificationSeverity `json:"severity"`
	Read      bool                 `json:"read"`
	CreatedAt time.Time            `json:"created_at"`
}
