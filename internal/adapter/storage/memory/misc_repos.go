package memory

import (
	"context"
	"fmt"
	"slices"

	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// NotificationRepo implements ports.NotificationRepository.
type NotificationRepo struct {
	s *Store
}

// NewNotificationRepo creates a new NotificationRepo.
func NewNotificationRepo(s *Store) *NotificationRepo {
	return &NotificationRepo{s: s}
}

func (r *NotificationRepo) Create(_ context.Context, n *domain.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.notifications = append(r.s.notifications, *n)
	return nil
}

// ListByUser returns the newest notifications first.
func (r *NotificationRepo) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]domain.Notification, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Notification
	for i := len(r.s.notifications) - 1; i >= 0; i-- {
		if r.s.notifications[i].UserID == userID {
			out = append(out, r.s.notifications[i])
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// IdempotencyRepo implements ports.IdempotencyRepository.
type IdempotencyRepo struct {
	s *Store
}

// NewIdempotencyRepo creates a new IdempotencyRepo.
func NewIdempotencyRepo(s *Store) *IdempotencyRepo {
	return &IdempotencyRepo{s: s}
}

func (r *IdempotencyRepo) Create(_ context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error {
	var dup bool
	err := r.s.write(tx, func() func() {
		if _, exists := r.s.idempotency[log.Key]; exists {
			dup = true
			return nil
		}
		cp := *log
		r.s.idempotency[log.Key] = &cp
		return func() { delete(r.s.idempotency, log.Key) }
	})
	if err != nil {
		return err
	}
	if dup {
		return fmt.Errorf("insert idempotency log %q: %w", log.Key, ports.ErrDuplicateKey)
	}
	return nil
}

func (r *IdempotencyRepo) Get(_ context.Context, key string) (*domain.IdempotencyLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	l, ok := r.s.idempotency[key]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

// AuditRepo implements ports.AuditRepository.
type AuditRepo struct {
	s *Store
}

// NewAuditRepo creates a new AuditRepo.
func NewAuditRepo(s *Store) *AuditRepo {
	return &AuditRepo{s: s}
}

func (r *AuditRepo) Create(_ context.Context, log *domain.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.auditLogs = append(r.s.auditLogs, *log)
	return nil
}
