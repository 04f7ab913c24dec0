package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
)

var notificationSchema = &schema{
	table:  "notifications",
	entity: "notification",
	fields: withBase(false, map[string]column{
		"userId":  {name: "user_id", fixed: true},
		"kind":    {name: "kind", fixed: true},
		"message": {name: "message", fixed: true},
		"isRead":  {name: "is_read", kind: kindBool},
	}),
}

var notificationTable = &table[domain.Notification]{
	schema:  notificationSchema,
	columns: []string{"id", "user_id", "kind", "message", "is_read", "created_at"},
	scan: func(s scanner) (domain.Notification, error) {
		var n domain.Notification
		if err := s.Scan(&n.ID, &n.UserID, &n.Kind, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return domain.Notification{}, err
		}
		n.CreatedAt = utc(n.CreatedAt)
		return n, nil
	},
	row: func(n *domain.Notification) (map[string]any, error) {
		return map[string]any{
			"id":         n.ID,
			"user_id":    n.UserID,
			"kind":       n.Kind,
			"message":    n.Message,
			"is_read":    n.IsRead,
			"created_at": n.CreatedAt,
		}, nil
	},
	mutable: func(n *domain.Notification) map[string]any {
		return map[string]any{"is_read": n.IsRead}
	},
	id:        func(n *domain.Notification) *string { return &n.ID },
	createdAt: func(n *domain.Notification) *time.Time { return &n.CreatedAt },
}

type notificationsRepo struct {
	collection[domain.Notification]
}

func (r *notificationsRepo) MarkRead(ctx context.Context, id string) error {
	res, err := r.e.exec(ctx, r.e.builder().
		Update(r.t.table).
		Set("is_read", true).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.t.notFound(id)
	}
	return nil
}

func (r *notificationsRepo) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.e.exec(ctx, r.e.builder().
		Update(r.t.table).
		Set("is_read", true).
		Where(sq.Eq{"user_id": userID, "is_read": false}))
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return res.RowsAffected()
}

var auditLogSchema = &schema{
	table:  "audit_logs",
	entity: "audit log",
	fields: withBase(false, map[string]column{
		"userId":     {name: "user_id", fixed: true},
		"action":     {name: "action", fixed: true},
		"entityType": {name: "entity_type", fixed: true},
		"entityId":   {name: "entity_id", fixed: true},
		"details":    {name: "details", kind: kindJSON, fixed: true},
	}),
}

var auditLogTable = &table[domain.AuditLog]{
	schema:  auditLogSchema,
	columns: []string{"id", "user_id", "action", "entity_type", "entity_id", "details", "created_at"},
	scan: func(s scanner) (domain.AuditLog, error) {
		var (
			l       domain.AuditLog
			details sql.NullString
		)
		if err := s.Scan(&l.ID, &l.UserID, &l.Action, &l.EntityType, &l.EntityID, &details, &l.CreatedAt); err != nil {
			return domain.AuditLog{}, err
		}
		m, err := mapDetails(details)
		if err != nil {
			return domain.AuditLog{}, fmt.Errorf("audit log %s details: %w", l.ID, err)
		}
		l.Details = m
		l.CreatedAt = utc(l.CreatedAt)
		return l, nil
	},
	row: func(l *domain.AuditLog) (map[string]any, error) {
		details, err := encodeDetails(l.Details)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"id":          l.ID,
			"user_id":     l.UserID,
			"action":      l.Action,
			"entity_type": l.EntityType,
			"entity_id":   l.EntityID,
			"details":     details,
			"created_at":  l.CreatedAt,
		}, nil
	},
	mutable:   func(*domain.AuditLog) map[string]any { return map[string]any{} },
	id:        func(l *domain.AuditLog) *string { return &l.ID },
	createdAt: func(l *domain.AuditLog) *time.Time { return &l.CreatedAt },
}
