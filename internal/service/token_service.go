package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/authcore/internal/audit"
	"github.com/Skotchmaster/authcore/internal/hash"
	"github.com/Skotchmaster/authcore/internal/logging"
	"github.com/Skotchmaster/authcore/internal/models"
	"github.com/Skotchmaster/authcore/internal/repo"
	"github.com/Skotchmaster/authcore/internal/tokens"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 2592000 * time.Second
)

type TokenService struct {
	Users         UserStore
	Refresh       RefreshStore
	Codec         tokens.Codec
	JWTSecret     []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Audit         audit.Recorder
}

type RefreshResult struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
}

func (s *TokenService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return DefaultAccessTTL
}

func (s *TokenService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return DefaultRefreshTTL
}

func (s *TokenService) GenerateAccessToken(user *models.User) (string, error) {
	return s.Codec.Sign(tokens.NewAccessClaims(user.ID, user.Role), s.JWTSecret, s.accessTTL())
}

// GenerateRefreshToken signs a refresh token for user and stores its record.
// A ttl of zero uses the configured refresh ttl.
func (s *TokenService) GenerateRefreshToken(ctx context.Context, user *models.User, ttl time.Duration) (string, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh_issue", "user_id", user.ID)

	token, record, err := s.newRefresh(user.ID, ttl)
	if err != nil {
		return "", err
	}
	if err := s.Refresh.SaveRefresh(ctx, record); err != nil {
		l.Error("refresh_issue_error", "status", 503, "reason", "cannot store refresh token", "error", err)
		return "", unavailable("issue refresh token")
	}
	return token, nil
}

func (s *TokenService) newRefresh(userID string, ttl time.Duration) (string, *models.RefreshToken, error) {
	if ttl <= 0 {
		ttl = s.refreshTTL()
	}
	claims := tokens.NewRefreshClaims(userID, uuid.NewString())
	token, err := s.Codec.Sign(claims, s.RefreshSecret, ttl)
	if err != nil {
		return "", nil, err
	}
	return token, &models.RefreshToken{
		JTI:       claims.ID,
		TokenHash: hash.Sha256Hex(token),
		UserID:    userID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// CreateAccessTokenFromRefreshToken redeems refreshToken. The presented token
// is single-use: on success it is replaced by the returned RefreshToken.
// Presenting a token that was already redeemed or revoked revokes every
// refresh token of its owner.
func (s *TokenService) CreateAccessTokenFromRefreshToken(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")
	rec := recorderOrNop(s.Audit)

	claims, err := s.Codec.ParseRefresh(refreshToken, s.RefreshSecret)
	if err != nil {
		if errors.Is(err, tokens.ErrTokenSignatureInvalid) {
			l.Warn("refresh_failed", "status", 401, "reason", "bad signature")
			rec.Record(ctx, audit.Event{Type: audit.EventTokenSignatureInvalid, Reason: "refresh token"})
		}
		return nil, err
	}
	l = l.With("user_id", claims.Subject)

	user, err := s.Users.FindUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("refresh_failed", "status", 401, "reason", "user not found")
			return nil, ErrUserNotFound
		}
		l.Error("refresh_error", "status", 503, "reason", "user lookup failed", "error", err)
		return nil, unavailable("refresh")
	}

	next, record, err := s.newRefresh(user.ID, 0)
	if err != nil {
		l.Error("refresh_error", "status", 500, "reason", "cannot sign refresh token", "error", err)
		return nil, err
	}

	err = s.Refresh.RotateRefresh(ctx, claims.ID, hash.Sha256Hex(refreshToken), record)
	switch {
	case err == nil:
	case errors.Is(err, repo.ErrRefreshRevoked):
		n, rerr := s.Refresh.RevokeUserRefreshTokens(ctx, user.ID)
		if rerr != nil {
			l.Error("refresh_reuse_revoke_error", "error", rerr)
		}
		l.Warn("refresh_failed", "status", 401, "reason", "refresh token reuse", "revoked", n)
		rec.Record(ctx, audit.Event{Type: audit.EventRefreshReuse, UserID: user.ID, Email: user.Email})
		return nil, ErrTokenRevoked
	case errors.Is(err, repo.ErrRefreshNotFound):
		l.Warn("refresh_failed", "status", 401, "reason", "unknown refresh token")
		return nil, ErrTokenRevoked
	case errors.Is(err, repo.ErrRefreshExpired):
		return nil, tokens.ErrTokenExpired
	default:
		l.Error("refresh_error", "status", 503, "reason", "rotation failed", "error", err)
		return nil, unavailable("refresh")
	}

	access, err := s.GenerateAccessToken(user)
	if err != nil {
		l.Error("refresh_error", "status", 500, "reason", "cannot sign access token", "error", err)
		return nil, err
	}

	return &RefreshResult{User: user, AccessToken: access, RefreshToken: next}, nil
}

// RevokeRefreshToken ends the session behind refreshToken, which must belong
// to userID. Tokens that are already expired or unknown have nothing left to
// revoke.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, userID, refreshToken string) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout", "user_id", userID)

	claims, err := s.Codec.ParseRefresh(refreshToken, s.RefreshSecret)
	if err != nil {
		if errors.Is(err, tokens.ErrTokenExpired) {
			return nil
		}
		return err
	}
	if claims.Subject != userID {
		l.Warn("logout_failed", "status", 403, "reason", "refresh token of another user")
		return ErrForbidden
	}

	if err := s.Refresh.RevokeRefresh(ctx, claims.ID); err != nil {
		if errors.Is(err, repo.ErrRefreshNotFound) {
			return nil
		}
		l.Error("logout_error", "status", 503, "error", err)
		return unavailable("logout")
	}
	return nil
}
