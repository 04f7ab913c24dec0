package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/store"
	"github.com/aussiebroadwan/tally/pkg/slogx"
)

// Audit actions.
const (
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionDelete   = "delete"
	ActionAccept   = "accept"
	ActionTransfer = "transfer"
	ActionBill     = "bill"
)

// Notification kinds.
const (
	KindInvitationAccepted = "invitation.accepted"
	KindOrganizationJoined = "organization.joined"
	KindOwnershipReceived  = "organization.ownership"
	KindMemberRemoved      = "organization.removed"
)

// ActivityService reads and writes notifications and the audit trail.
type ActivityService struct {
	Store store.Store
}

// audit appends an audit row through s, which may be a transaction.
func audit(ctx context.Context, s store.Store, actorID, action, entityType, entityID string, details map[string]any) error {
	if actorID == "" {
		return nil
	}
	l := domain.AuditLog{
		UserID:     actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
	}
	if err := s.AuditLogs().Create(ctx, &l); err != nil {
		return fmt.Errorf("audit %s %s: %w", action, entityType, err)
	}
	return nil
}

// notify appends a notification through s, which may be a transaction.
func notify(ctx context.Context, s store.Store, userID, kind, message string) error {
	n := domain.Notification{UserID: userID, Kind: kind, Message: message}
	if err := s.Notifications().Create(ctx, &n); err != nil {
		return fmt.Errorf("notify %s: %w", kind, err)
	}
	return nil
}

func (s *ActivityService) Notify(ctx context.Context, userID, kind, message string) (domain.Notification, error) {
	if kind == "" {
		return domain.Notification{}, domain.NewValidationError("kind", "is required")
	}
	n := domain.Notification{UserID: userID, Kind: kind, Message: message}
	if err := s.Store.Notifications().Create(ctx, &n); err != nil {
		logFailure(ctx, "failed to create notification", err, slog.String("user_id", userID))
		return domain.Notification{}, err
	}
	return n, nil
}

// Notifications lists a user's notifications, newest first unless q orders
// otherwise.
func (s *ActivityService) Notifications(ctx context.Context, userID string, unreadOnly bool, q store.Query) ([]domain.Notification, error) {
	where := store.AllOf(store.Eq{Field: "userId", Value: userID}, q.Where)
	if unreadOnly {
		where = store.AllOf(where, store.Eq{Field: "isRead", Value: false})
	}
	q.Where = where
	if len(q.OrderBy) == 0 {
		q.OrderBy = []store.Order{store.Desc("createdAt"), store.Desc("id")}
	}
	return s.Store.Notifications().List(ctx, q)
}

// MarkRead marks one of userID's notifications read.
func (s *ActivityService) MarkRead(ctx context.Context, userID, id string) error {
	n, err := s.Store.Notifications().Get(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != userID {
		slogx.FromContext(ctx).Warn("attempted to mark another user's notification",
			slog.String("user_id", userID),
			slog.String("notification_id", id),
		)
		return fmt.Errorf("notification %s: %w", id, domain.ErrForbidden)
	}
	return s.Store.Notifications().MarkRead(ctx, id)
}

func (s *ActivityService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.Store.Notifications().MarkAllRead(ctx, userID)
}

func (s *ActivityService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.Store.Notifications().Count(ctx, store.AllOf(
		store.Eq{Field: "userId", Value: userID},
		store.Eq{Field: "isRead", Value: false},
	))
}

// Record appends an audit entry.
func (s *ActivityService) Record(ctx context.Context, l *domain.AuditLog) error {
	if l.Action == "" {
		return domain.NewValidationError("action", "is required")
	}
	if l.EntityType == "" {
		return domain.NewValidationError("entityType", "is required")
	}
	return s.Store.AuditLogs().Create(ctx, l)
}

// AuditTrail lists the audit entries of an entity in the order they were
// written.
func (s *ActivityService) AuditTrail(ctx context.Context, entityType, entityID string) ([]domain.AuditLog, error) {
	return s.Store.AuditLogs().List(ctx, store.Query{
		Where: store.AllOf(
			store.Eq{Field: "entityType", Value: entityType},
			store.Eq{Field: "entityId", Value: entityID},
		),
		OrderBy: []store.Order{store.Asc("createdAt"), store.Asc("id")},
	})
}
