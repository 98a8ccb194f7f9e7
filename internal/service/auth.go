package service

import (
	"context"
	"errors"
	"net/mail"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/authcore/internal/audit"
	"github.com/Skotchmaster/authcore/internal/hash"
	"github.com/Skotchmaster/authcore/internal/logging"
	"github.com/Skotchmaster/authcore/internal/models"
	"github.com/Skotchmaster/authcore/internal/mykafka"
	"github.com/Skotchmaster/authcore/internal/repo"
)

const (
	MinPasswordLength = 6
	// MaxPasswordLength is the bcrypt input limit in bytes.
	MaxPasswordLength = 72
)

type AuthService struct {
	Users    UserStore
	Verifier *CredentialVerifier
	Hasher   hash.Hasher
	Events   EventPublisher
	Audit    audit.Recorder
}

type Credentials struct {
	Email    string
	Password string
	IP       string
}

type NewUser struct {
	Email    string
	Password string
}

// Login never issues tokens; the caller hands the returned user to
// TokenService.
func (s *AuthService) Login(ctx context.Context, c Credentials) (*models.User, error) {
	email := NormalizeEmail(c.Email)
	l := logging.FromContext(ctx).With("svc", "auth.login", "email", email)

	if email == "" || c.Password == "" {
		l.Warn("login_failed", "status", 400, "reason", "empty email or password")
		return nil, validation("email and password are required")
	}

	user, err := s.Verifier.Verify(ctx, email, c.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			l.Warn("login_failed", "status", 401, "reason", "invalid email or password")
			recorderOrNop(s.Audit).Record(ctx, audit.Event{Type: audit.EventLoginFailed, Email: email, IP: c.IP})
		}
		return nil, err
	}

	s.upgradeHash(ctx, user, c.Password)
	s.publish(ctx, mykafka.EventUserLoggedIn, user, c.IP)
	return user, nil
}

// upgradeHash stores a bcrypt hash at the configured cost for users still on
// the legacy hash or a weaker cost. Failures leave the old hash usable.
func (s *AuthService) upgradeHash(ctx context.Context, user *models.User, password string) {
	if user.PasswordHash != "" && !s.Hasher.NeedsRehash(user.PasswordHash) {
		return
	}
	l := logging.FromContext(ctx).With("svc", "auth.rehash", "user_id", user.ID)

	fresh, err := s.Hasher.Hash(password)
	if err != nil {
		l.Error("rehash_error", "error", err)
		return
	}
	if err := s.Users.UpdatePasswordHash(ctx, user.ID, fresh); err != nil {
		l.Error("rehash_error", "error", err)
		return
	}
	user.PasswordHash = fresh
	user.LegacyPasswordHash = ""
	l.Info("password_rehashed")
}

func (s *AuthService) Register(ctx context.Context, nu NewUser, originIP string) (*models.User, error) {
	email := NormalizeEmail(nu.Email)
	l := logging.FromContext(ctx).With("svc", "auth.register", "email", email)

	if err := validateNewUser(email, nu.Password); err != nil {
		l.Warn("register_failed", "status", 400, "reason", err.Error())
		return nil, err
	}

	pwHash, err := s.Hasher.Hash(nu.Password)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, validation("password must be at most 72 bytes")
		}
		l.Error("register_error", "status", 503, "reason", "cannot hash the password", "error", err)
		return nil, unavailable("register")
	}

	user := &models.User{
		Email:          email,
		PasswordHash:   pwHash,
		Role:           models.RoleUser,
		RegistrationIP: originIP,
	}
	if err := s.Users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			l.Warn("register_failed", "status", 409, "reason", "user already exist")
			return nil, ErrDuplicateIdentifier
		}
		l.Error("register_error", "status", 503, "reason", "cannot store user", "error", err)
		return nil, unavailable("register")
	}

	s.publish(ctx, mykafka.EventUserRegistered, user, originIP)
	return user, nil
}

func validateNewUser(email, password string) error {
	if email == "" {
		return validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return validation("email is not a valid address")
	}
	if len(password) < MinPasswordLength {
		return validation("password must be at least 6 characters")
	}
	if len(password) > MaxPasswordLength {
		return validation("password must be at most 72 bytes")
	}
	return nil
}

func (s *AuthService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.Users.FindUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		logging.FromContext(ctx).Error("get_user_error", "svc", "auth.get_user", "status", 503, "error", err)
		return nil, unavailable("get user")
	}
	return user, nil
}

// ChangeRole takes effect for access tokens issued afterwards, including the
// ones issued on refresh.
func (s *AuthService) ChangeRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.change_role", "user_id", id)

	if !role.Valid() {
		return nil, validation("unknown role")
	}
	user, err := s.Users.UpdateUserRole(ctx, id, role)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		l.Error("change_role_error", "status", 503, "error", err)
		return nil, unavailable("change role")
	}

	l.Info("role_changed", "role", role)
	s.publish(ctx, mykafka.EventUserRoleChanged, user, "")
	return user, nil
}

func (s *AuthService) publish(ctx context.Context, typ string, user *models.User, ip string) {
	e := mykafka.UserEvent{
		Type:   typ,
		UserID: user.ID,
		Email:  user.Email,
		Role:   string(user.Role),
		IP:     ip,
		At:     time.Now().UTC(),
	}
	if err := publisherOrNop(s.Events).PublishUserEvent(ctx, e); err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed", "event", typ, "error", err)
	}
}
