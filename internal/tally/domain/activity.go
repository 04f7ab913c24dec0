package domain

import "time"

// Notification is a user facing message. Only IsRead ever changes.
type Notification struct {
	ID        string
	UserID    string
	Kind      string
	Message   string
	IsRead    bool
	CreatedAt time.Time
}

// AuditLog records an action taken by a user. Rows are never updated.
type AuditLog struct {
	ID         string
	UserID     string
	Action     string
	EntityType string
	EntityID   string
	Details    map[string]any
	CreatedAt  time.Time
}
