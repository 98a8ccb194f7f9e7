package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Skotchmaster/authcore/internal/hash"
	"github.com/Skotchmaster/authcore/internal/logging"
	"github.com/Skotchmaster/authcore/internal/models"
	"github.com/Skotchmaster/authcore/internal/repo"
)

// CredentialVerifier checks a login identifier and secret against the user
// store. It has no side effects.
type CredentialVerifier struct {
	users     UserStore
	hasher    hash.Hasher
	dummyHash string
}

func NewCredentialVerifier(users UserStore, hasher hash.Hasher) (*CredentialVerifier, error) {
	dummy, err := hasher.Hash("dummy-password-for-unknown-users")
	if err != nil {
		return nil, fmt.Errorf("credential verifier: %w", err)
	}
	return &CredentialVerifier{users: users, hasher: hasher, dummyHash: dummy}, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Verify returns the user identified by identifier when secret matches. An
// unknown identifier and a wrong secret both yield ErrInvalidCredentials and
// both pay for one bcrypt comparison.
func (v *CredentialVerifier) Verify(ctx context.Context, identifier, secret string) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.verify")

	user, err := v.users.FindUserByEmail(ctx, NormalizeEmail(identifier))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			v.hasher.Check(v.dummyHash, secret)
			return nil, ErrInvalidCredentials
		}
		l.Error("verify_error", "status", 503, "reason", "user lookup failed", "error", err)
		return nil, unavailable("verify credentials")
	}

	if !v.matches(user, secret) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (v *CredentialVerifier) matches(user *models.User, secret string) bool {
	if user.PasswordHash != "" {
		return v.hasher.Check(user.PasswordHash, secret)
	}
	v.hasher.Check(v.dummyHash, secret)
	return hash.CheckLegacy(user.LegacyPasswordHash, secret)
}
