package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/authcore/internal/models"
	"github.com/Skotchmaster/authcore/internal/testdb"
)

func newTestRepo(t *testing.T) *GormRepo {
	t.Helper()
	return New(testdb.New(t))
}

func newRefresh(userID string, exp time.Time) *models.RefreshToken {
	jti := uuid.NewString()
	return &models.RefreshToken{
		JTI:       jti,
		TokenHash: "hash-" + jti,
		UserID:    userID,
		ExpiresAt: exp,
	}
}

func TestGormRepo_CreateAndFindUser(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	u := &models.User{Email: "a@x.com", PasswordHash: "h", Role: models.RoleUser, RegistrationIP: "1.2.3.4"}
	require.NoError(t, r.CreateUser(ctx, u))
	require.NotEmpty(t, u.ID)

	byID, err := r.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", byID.Email)
	assert.Equal(t, "1.2.3.4", byID.RegistrationIP)

	byEmail, err := r.FindUserByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = r.FindUserByEmail(ctx, "missing@x.com")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.FindUserByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormRepo_CreateUser_Duplicate(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.CreateUser(ctx, &models.User{Email: "dup@x.com", Role: models.RoleUser}))
	err := r.CreateUser(ctx, &models.User{Email: "dup@x.com", Role: models.RoleUser})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)

	var count int64
	require.NoError(t, r.DB.Model(&models.User{}).Where("email = ?", "dup@x.com").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestGormRepo_UpdatePasswordHash_ClearsLegacy(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	u := &models.User{Email: "legacy@x.com", LegacyPasswordHash: "abc", Role: models.RoleUser}
	require.NoError(t, r.CreateUser(ctx, u))
	require.NoError(t, r.UpdatePasswordHash(ctx, u.ID, "$2a$new"))

	got, err := r.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "$2a$new", got.PasswordHash)
	assert.Empty(t, got.LegacyPasswordHash)

	assert.ErrorIs(t, r.UpdatePasswordHash(ctx, uuid.NewString(), "x"), ErrNotFound)
}

func TestGormRepo_UpdateUserRole(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	u := &models.User{Email: "role@x.com", Role: models.RoleUser}
	require.NoError(t, r.CreateUser(ctx, u))

	updated, err := r.UpdateUserRole(ctx, u.ID, models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, updated.Role)

	got, err := r.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, got.Role)

	_, err = r.UpdateUserRole(ctx, uuid.NewString(), models.RoleAdmin)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormRepo_RotateRefresh(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	old := newRefresh("u1", exp)
	require.NoError(t, r.SaveRefresh(ctx, old))

	next := newRefresh("u1", exp)
	require.NoError(t, r.RotateRefresh(ctx, old.JTI, old.TokenHash, next))

	oldStored, err := r.FindRefreshByJTI(ctx, old.JTI)
	require.NoError(t, err)
	assert.True(t, oldStored.Revoked)
	assert.Equal(t, next.JTI, oldStored.ReplacedBy)

	nextStored, err := r.FindRefreshByJTI(ctx, next.JTI)
	require.NoError(t, err)
	assert.False(t, nextStored.Revoked)

	err = r.RotateRefresh(ctx, old.JTI, old.TokenHash, newRefresh("u1", exp))
	assert.ErrorIs(t, err, ErrRefreshRevoked)
}

func TestGormRepo_RotateRefresh_Failures(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	expired := newRefresh("u1", time.Now().Add(-time.Minute))
	require.NoError(t, r.SaveRefresh(ctx, expired))

	live := newRefresh("u1", time.Now().Add(time.Hour))
	require.NoError(t, r.SaveRefresh(ctx, live))

	tests := []struct {
		name    string
		jti     string
		hash    string
		wantErr error
	}{
		{name: "unknown jti", jti: uuid.NewString(), hash: "x", wantErr: ErrRefreshNotFound},
		{name: "hash mismatch", jti: live.JTI, hash: "other", wantErr: ErrRefreshNotFound},
		{name: "expired record", jti: expired.JTI, hash: expired.TokenHash, wantErr: ErrRefreshExpired},
	}

	for _, tt := range tests {
		err := r.RotateRefresh(ctx, tt.jti, tt.hash, newRefresh("u1", time.Now().Add(time.Hour)))
		assert.ErrorIsf(t, err, tt.wantErr, tt.name)
	}

	stored, err := r.FindRefreshByJTI(ctx, live.JTI)
	require.NoError(t, err)
	assert.False(t, stored.Revoked)
}

func TestGormRepo_RotateRefresh_ConcurrentSingleWinner(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	old := newRefresh("u1", time.Now().Add(time.Hour))
	require.NoError(t, r.SaveRefresh(ctx, old))

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.RotateRefresh(ctx, old.JTI, old.TokenHash, newRefresh("u1", time.Now().Add(time.Hour)))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, ErrRefreshRevoked), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, wins)
}

func TestGormRepo_Revoke(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	a, b, other := newRefresh("u1", exp), newRefresh("u1", exp), newRefresh("u2", exp)
	for _, tok := range []*models.RefreshToken{a, b, other} {
		require.NoError(t, r.SaveRefresh(ctx, tok))
	}

	require.NoError(t, r.RevokeRefresh(ctx, a.JTI))
	assert.ErrorIs(t, r.RevokeRefresh(ctx, uuid.NewString()), ErrRefreshNotFound)

	n, err := r.RevokeUserRefreshTokens(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	stored, err := r.FindRefreshByJTI(ctx, other.JTI)
	require.NoError(t, err)
	assert.False(t, stored.Revoked)
}
