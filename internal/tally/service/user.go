package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/store"
	"github.com/aussiebroadwan/tally/pkg/cryptox"
	"github.com/aussiebroadwan/tally/pkg/slogx"
)

const (
	// MinPasswordLength is the shortest accepted password, in characters.
	MinPasswordLength = 8

	DefaultResetTokenTTL = 30 * time.Minute
)

// UserService manages accounts and their credentials.
type UserService struct {
	Store  store.Store
	Clock  Clock
	Hasher *cryptox.Hasher

	// ResetTokenTTL bounds how long a password reset token is usable.
	ResetTokenTTL time.Duration
}

var passwordTooShort = fmt.Sprintf("must be at least %d characters", MinPasswordLength)

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return domain.NewValidationError("password", passwordTooShort)
	}
	return nil
}

// Register creates an active USER account.
func (s *UserService) Register(ctx context.Context, email, name, password string) (domain.User, error) {
	log := slogx.FromContext(ctx)

	// 1. Validate input.
	email = normalizeEmail(email)
	v := &domain.ValidationError{}
	if err := validateEmail("email", email); err != nil {
		v.Add("email", "is not a valid email address")
	}
	if validatePassword(password) != nil {
		v.Add("password", passwordTooShort)
	}
	if err := v.Err(); err != nil {
		return domain.User{}, err
	}

	// 2. Hash the password.
	hash, err := s.Hasher.Hash(password)
	if err != nil {
		log.Error("failed to hash password", slog.Any("error", err))
		return domain.User{}, err
	}

	// 3. Store the account. A taken email is domain.ErrAlreadyExists.
	u := domain.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		IsActive:     true,
	}
	if err := s.Store.Users().Create(ctx, &u); err != nil {
		logFailure(ctx, "failed to register user", err)
		return domain.User{}, err
	}

	log.Info("user registered", slog.String("user_id", u.ID))
	return u, nil
}

func (s *UserService) Get(ctx context.Context, id string) (domain.User, error) {
	return s.Store.Users().Get(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.Store.Users().GetByEmail(ctx, normalizeEmail(email))
}

func (s *UserService) List(ctx context.Context, q store.Query) ([]domain.User, error) {
	return s.Store.Users().List(ctx, q)
}

// UpdateProfile changes the display name and username. A nil username
// clears it.
func (s *UserService) UpdateProfile(ctx context.Context, id, name string, username *string) (domain.User, error) {
	if username != nil && *username == "" {
		return domain.User{}, domain.NewValidationError("username", "must not be empty")
	}
	return s.modify(ctx, id, func(u *domain.User) error {
		u.Name = name
		u.Username = username
		return nil
	})
}

// ChangePassword replaces the password after verifying the current one.
func (s *UserService) ChangePassword(ctx context.Context, id, current, next string) error {
	if err := validatePassword(next); err != nil {
		return err
	}
	hash, err := s.Hasher.Hash(next)
	if err != nil {
		return err
	}

	_, err = s.modify(ctx, id, func(u *domain.User) error {
		if err := s.Hasher.Verify(current, u.PasswordHash); err != nil {
			return ErrInvalidCredentials
		}
		u.PasswordHash = hash
		u.ResetTokenHash, u.ResetTokenExpiry = nil, nil
		return nil
	})
	if err == nil {
		slogx.FromContext(ctx).Info("password changed", slog.String("user_id", id))
	}
	return err
}

func (s *UserService) Deactivate(ctx context.Context, id string) (domain.User, error) {
	return s.setActive(ctx, id, false)
}

func (s *UserService) Reactivate(ctx context.Context, id string) (domain.User, error) {
	return s.setActive(ctx, id, true)
}

func (s *UserService) setActive(ctx context.Context, id string, active bool) (domain.User, error) {
	u, err := s.modify(ctx, id, func(u *domain.User) error {
		u.IsActive = active
		return nil
	})
	if err == nil {
		slogx.FromContext(ctx).Info("user activity changed",
			slog.String("user_id", id),
			slog.Bool("active", active),
		)
	}
	return u, err
}

// Delete removes an account and everything it owns personally. An
// organization it owns is kept without an owner. Deleting again returns
// domain.ErrNotFound.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if err := s.Store.Users().Delete(ctx, id); err != nil {
		logFailure(ctx, "failed to delete user", err, slog.String("user_id", id))
		return err
	}
	slogx.FromContext(ctx).Info("user deleted", slog.String("user_id", id))
	return nil
}

// RequestPasswordReset issues a reset token for email. It returns an empty
// token without error when there is no active account for the address.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	log := slogx.FromContext(ctx)
	now := s.Clock.now()

	u, err := s.Store.Users().GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) || (err == nil && !u.IsActive) {
		log.Debug("password reset requested for unknown or inactive account")
		return "", nil
	}
	if err != nil {
		return "", err
	}

	token, fingerprint, err := cryptox.NewSecret()
	if err != nil {
		return "", err
	}
	ttl := s.ResetTokenTTL
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}
	expiry := now.Add(ttl)
	u.ResetTokenHash = &fingerprint
	u.ResetTokenExpiry = &expiry

	if err := s.Store.Users().Update(ctx, &u); err != nil {
		logFailure(ctx, "failed to store reset token", err, slog.String("user_id", u.ID))
		return "", err
	}

	log.Info("password reset requested", slog.String("user_id", u.ID), slog.Time("expires_at", expiry))
	return token, nil
}

// ResetPassword sets a new password using a reset token. The token is
// single use.
func (s *UserService) ResetPassword(ctx context.Context, token, password string) error {
	log := slogx.FromContext(ctx)
	now := s.Clock.now()

	if err := validatePassword(password); err != nil {
		return err
	}
	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return err
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		u, err := tx.Users().GetByResetTokenHash(ctx, cryptox.FingerprintToken(token))
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("password reset attempted with unknown token")
			return ErrInvalidResetToken
		}
		if err != nil {
			return err
		}
		if !u.ResetTokenValid(now) || !u.IsActive {
			log.Warn("password reset attempted with expired token", slog.String("user_id", u.ID))
			return ErrInvalidResetToken
		}

		u.PasswordHash = hash
		u.ResetTokenHash, u.ResetTokenExpiry = nil, nil
		if err := tx.Users().Update(ctx, &u); err != nil {
			return err
		}
		log.Info("password reset", slog.String("user_id", u.ID))
		return nil
	})
}

// Authenticate checks an email and password pair.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	log := slogx.FromContext(ctx)

	u, err := s.Store.Users().GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		log.Debug("authentication failed: unknown email")
		return domain.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	if err := s.Hasher.Verify(password, u.PasswordHash); err != nil {
		log.Warn("authentication failed", slog.String("user_id", u.ID))
		return domain.User{}, ErrInvalidCredentials
	}
	if !u.IsActive {
		log.Warn("authentication rejected: inactive user", slog.String("user_id", u.ID))
		return domain.User{}, fmt.Errorf("user %s is inactive: %w", u.ID, domain.ErrForbidden)
	}
	return u, nil
}

// PurgeResetTokens clears reset tokens past their expiry.
func (s *UserService) PurgeResetTokens(ctx context.Context) (int64, error) {
	return s.Store.Users().UpdateMany(ctx,
		store.AllOf(
			store.NotNull{Field: "resetTokenHash"},
			store.Lte{Field: "resetTokenExpiry", Value: s.Clock.now()},
		),
		store.Set{"resetTokenHash": nil, "resetTokenExpiry": nil},
	)
}

// modify applies fn to a re-read user inside a transaction.
func (s *UserService) modify(ctx context.Context, id string, fn func(u *domain.User) error) (domain.User, error) {
	var u domain.User
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if u, err = tx.Users().Get(ctx, id); err != nil {
			return err
		}
		if err := fn(&u); err != nil {
			return err
		}
		return tx.Users().Update(ctx, &u)
	})
	if err != nil {
		logFailure(ctx, "failed to update user", err, slog.String("user_id", id))
		return domain.User{}, err
	}
	return u, nil
}
