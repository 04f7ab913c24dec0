// Package service holds the operations callers run against the tally data
// model. Every service is a plain struct over a store.Store; composite
// operations run in a single transaction and validate invariants against
// rows re-read inside it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/metrics"
	"github.com/aussiebroadwan/tally/internal/tally/store"
	"github.com/aussiebroadwan/tally/pkg/slogx"
)

var (
	ErrInvitationNotFound = fmt.Errorf("%w: invitation", domain.ErrNotFound)
	ErrInvitationExpired  = fmt.Errorf("%w: invitation has expired", domain.ErrConflict)
	ErrInvitationUsed     = fmt.Errorf("%w: invitation has already been used", domain.ErrConflict)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", domain.ErrForbidden)
	ErrInvalidResetToken  = fmt.Errorf("%w: reset token is invalid or expired", domain.ErrForbidden)
	ErrAlreadyBilled      = fmt.Errorf("%w: timesheet entry has already been billed", domain.ErrConflict)
)

// Clock returns the current time. A nil Clock is the wall clock.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// observe records the duration and outcome of a service operation. Use as
// defer observe(s.Metrics, "budget.create", time.Now(), &err).
func observe(m *metrics.Metrics, op string, start time.Time, err *error) {
	m.ObserveOperation(op, start, *err)
}

// reference turns a missing referenced row into a referential integrity
// error. Cross-tenant errors already are one and pass through.
func reference(entity, id string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s %s does not exist: %w", entity, id, domain.ErrReferentialIntegrity)
	}
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(field, email string) error {
	if email == "" {
		return domain.NewValidationError(field, "is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return domain.NewValidationError(field, "is not a valid email address")
	}
	return nil
}

// logFailure logs an unexpected storage error. Domain errors the caller can
// act on are not logged at error level.
func logFailure(ctx context.Context, msg string, err error, attrs ...any) {
	log := slogx.FromContext(ctx)
	attrs = append(attrs, slog.Any("error", err))
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrReferentialIntegrity):
		log.Warn(msg, attrs...)
	default:
		log.Error(msg, attrs...)
	}
}

// byID is the predicate of a single row.
func byID(id string) store.Predicate { return store.Eq{Field: "id", Value: id} }

func tenancyMismatch(entity, id string) error {
	return fmt.Errorf("%s %s has another owner: %w", entity, id, domain.ErrCrossTenant)
}

func indexed(i int, field string) string {
	return fmt.Sprintf("[%d].%s", i, field)
}
