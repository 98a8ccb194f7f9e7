package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/authcore/internal/models"
)

func (r *GormRepo) SaveRefresh(ctx context.Context, t *models.RefreshToken) error {
	if err := r.DB.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

func (r *GormRepo) FindRefreshByJTI(ctx context.Context, jti string) (*models.RefreshToken, error) {
	return findRefresh(r.DB.WithContext(ctx), jti)
}

func findRefresh(db *gorm.DB, jti string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	if err := db.Where("jti = ?", jti).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRefreshNotFound
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &token, nil
}

// RotateRefresh marks the record identified by oldJTI as used and stores next
// in the same transaction. The revoked=false guard on the update makes two
// concurrent rotations of one token resolve to a single winner; the loser gets
// ErrRefreshRevoked.
func (r *GormRepo) RotateRefresh(ctx context.Context, oldJTI, tokenHash string, next *models.RefreshToken) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stored, err := findRefresh(tx, oldJTI)
		if err != nil {
			return err
		}
		if stored.TokenHash != tokenHash {
			return ErrRefreshNotFound
		}
		if stored.Revoked {
			return ErrRefreshRevoked
		}
		if !stored.ExpiresAt.After(time.Now()) {
			return ErrRefreshExpired
		}

		res := tx.Model(&models.RefreshToken{}).
			Where("jti = ? AND revoked = ?", oldJTI, false).
			Updates(map[string]any{"revoked": true, "replaced_by": next.JTI})
		if res.Error != nil {
			return fmt.Errorf("revoke refresh token: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrRefreshRevoked
		}

		if err := tx.Create(next).Error; err != nil {
			return fmt.Errorf("save refresh token: %w", err)
		}
		return nil
	})
}

func (r *GormRepo) RevokeRefresh(ctx context.Context, jti string) error {
	res := r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("jti = ?", jti).
		Update("revoked", true)
	if res.Error != nil {
		return fmt.Errorf("revoke refresh token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRefreshNotFound
	}
	return nil
}

// RevokeUserRefreshTokens revokes every live refresh token of userID and
// returns how many were revoked.
func (r *GormRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true)
	if res.Error != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}
