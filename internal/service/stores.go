package service

import (
	"context"

	"github.com/Skotchmaster/authcore/internal/audit"
	"github.com/Skotchmaster/authcore/internal/models"
	"github.com/Skotchmaster/authcore/internal/mykafka"
)

// UserStore is satisfied by *repo.GormRepo. Lookups report repo.ErrNotFound
// for absent users and CreateUser reports repo.ErrDuplicate.
type UserStore interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	UpdateUserRole(ctx context.Context, id string, role models.Role) (*models.User, error)
}

type RefreshStore interface {
	SaveRefresh(ctx context.Context, t *models.RefreshToken) error
	RotateRefresh(ctx context.Context, oldJTI, tokenHash string, next *models.RefreshToken) error
	RevokeRefresh(ctx context.Context, jti string) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) (int64, error)
}

type EventPublisher interface {
	PublishUserEvent(ctx context.Context, e mykafka.UserEvent) error
}

func publisherOrNop(p EventPublisher) EventPublisher {
	if p == nil {
		return mykafka.Nop{}
	}
	return p
}

func recorderOrNop(r audit.Recorder) audit.Recorder {
	if r == nil {
		return audit.Nop{}
	}
	return r
}
