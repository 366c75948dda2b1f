package service

import (
	"context"
	"fmt"
	"time"

	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"
	"surplus-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	pushTimeout       = 10 * time.Second
	defaultInboxLimit = 50
	maxInboxLimit     = 200
)

// NotificationServiceImpl stores an in-app notification and fans it out as a push.
// It implements ports.Notifier: every failure is logged and swallowed.
type NotificationServiceImpl struct {
	repo ports.NotificationRepository
	push ports.PushSender // optional
	log  zerolog.Logger
}

// NewNotificationService creates a new NotificationServiceImpl. push may be nil.
func NewNotificationService(repo ports.NotificationRepository, push ports.PushSender, log zerolog.Logger) *NotificationServiceImpl {
	return &NotificationServiceImpl{repo: repo, push: push, log: log}
}

// Notify persists the notification, then pushes it in the background.
func (s *NotificationServiceImpl) Notify(ctx context.Context, userID uuid.UUID, title, message string, severity domain.NotificationSeverity) {
	n := &domain.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Severity:  severity,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID.String()).Str("title", title).Msg("failed to store notification")
	}

	if s.push == nil {
		return
	}
	pushCtx := context.WithoutCancel(ctx)
	go func() {
		pushCtx, cancel := context.WithTimeout(pushCtx, pushTimeout)
		defer cancel()
		data := map[string]string{
			"notification_id": n.ID.String(),
			"severity":        string(severity),
		}
		if err := s.push.Send(pushCtx, userID, title, message, data); err != nil {
			s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("push delivery failed")
		}
	}()
}

// List returns the user's most recent notifications.
func (s *NotificationServiceImpl) List(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Notification, error) {
	if limit < 1 {
		limit = defaultInboxLimit
	}
	if limit > maxInboxLimit {
		limit = maxInboxLimit
	}
	items, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list notifications: %w", err))
	}
	return items, nil
}
