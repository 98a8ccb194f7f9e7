package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/authcore/internal/audit"
	"github.com/Skotchmaster/authcore/internal/hash"
	"github.com/Skotchmaster/authcore/internal/models"
	"github.com/Skotchmaster/authcore/internal/mykafka"
)

func TestAuthService_Register(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	user, err := f.auth.Register(ctx, NewUser{Email: "  Alice@Example.com ", Password: "secret1"}, "10.0.0.1")
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.Equal(t, "10.0.0.1", user.RegistrationIP)
	assert.NotEqual(t, "secret1", user.PasswordHash)
	assert.True(t, hash.Hasher{}.Check(user.PasswordHash, "secret1"))
	assert.Equal(t, []string{mykafka.EventUserRegistered}, f.events.types())
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Register(ctx, NewUser{Email: "bob@example.com", Password: "secret1"}, "")
	require.NoError(t, err)

	_, err = f.auth.Register(ctx, NewUser{Email: "BOB@example.com", Password: "other-secret"}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateIdentifier)

	stored, err := f.repo.FindUserByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.True(t, hash.Hasher{}.Check(stored.PasswordHash, "secret1"))
}

func TestAuthService_Register_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{name: "empty email", email: "", password: "secret1"},
		{name: "not an address", email: "not-an-email", password: "secret1"},
		{name: "display name", email: "Bob <bob@example.com>", password: "secret1"},
		{name: "short password", email: "bob@example.com", password: "12345"},
		{name: "password over bcrypt limit", email: "bob@example.com", password: strings.Repeat("p", MaxPasswordLength+8)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auth.Register(ctx, NewUser{Email: tt.email, Password: tt.password}, "")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Empty(t, f.events.types())
}

func TestAuthService_Register_MaxLengthPasswordAccepted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	password := strings.Repeat("p", MaxPasswordLength)

	_, err := f.auth.Register(context.Background(), NewUser{Email: "long@example.com", Password: password}, "")
	require.NoError(t, err)

	_, err = f.auth.Login(context.Background(), Credentials{Email: "long@example.com", Password: password})
	require.NoError(t, err)
}

func TestAuthService_Login(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	registered, err := f.auth.Register(ctx, NewUser{Email: "carol@example.com", Password: "secret1"}, "")
	require.NoError(t, err)

	user, err := f.auth.Login(ctx, Credentials{Email: "Carol@Example.com", Password: "secret1", IP: "1.1.1.1"})
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	assert.Contains(t, f.events.types(), mykafka.EventUserLoggedIn)
}

func TestAuthService_Login_FailuresAreIndistinguishable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Register(ctx, NewUser{Email: "dave@example.com", Password: "secret1"}, "")
	require.NoError(t, err)

	_, wrongSecret := f.auth.Login(ctx, Credentials{Email: "dave@example.com", Password: "wrong-secret"})
	_, unknownUser := f.auth.Login(ctx, Credentials{Email: "nobody@example.com", Password: "secret1"})

	require.ErrorIs(t, wrongSecret, ErrInvalidCredentials)
	require.ErrorIs(t, unknownUser, ErrInvalidCredentials)
	assert.Equal(t, wrongSecret.Error(), unknownUser.Error())
	assert.Equal(t, []string{audit.EventLoginFailed, audit.EventLoginFailed}, f.audit.types())
}

func TestAuthService_Login_EmptyFields(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.auth.Login(context.Background(), Credentials{Email: "", Password: "x"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAuthService_Login_UpgradesLegacyHash(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	legacy := &models.User{
		Email:              "legacy@example.com",
		LegacyPasswordHash: hash.Sha256Hex("old-secret"),
		Role:               models.RoleUser,
	}
	require.NoError(t, f.repo.CreateUser(ctx, legacy))

	_, err := f.auth.Login(ctx, Credentials{Email: "legacy@example.com", Password: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	user, err := f.auth.Login(ctx, Credentials{Email: "legacy@example.com", Password: "old-secret"})
	require.NoError(t, err)
	assert.NotEmpty(t, user.PasswordHash)

	stored, err := f.repo.FindUserByID(ctx, legacy.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.LegacyPasswordHash)
	assert.True(t, hash.Hasher{}.Check(stored.PasswordHash, "old-secret"))

	_, err = f.auth.Login(ctx, Credentials{Email: "legacy@example.com", Password: "old-secret"})
	require.NoError(t, err)
}

func TestAuthService_Login_RehashesWeakCost(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Register(ctx, NewUser{Email: "erin@example.com", Password: "secret1"}, "")
	require.NoError(t, err)

	f.auth.Hasher = hash.Hasher{Cost: bcrypt.MinCost + 1}
	user, err := f.auth.Login(ctx, Credentials{Email: "erin@example.com", Password: "secret1"})
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(user.PasswordHash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost+1, cost)
}

type failingUsers struct{ UserStore }

var errStoreDown = errors.New("connection refused")

func (failingUsers) FindUserByEmail(context.Context, string) (*models.User, error) {
	return nil, errStoreDown
}

func (failingUsers) FindUserByID(context.Context, string) (*models.User, error) {
	return nil, errStoreDown
}

func TestAuthService_StoreFailureIsUnavailable(t *testing.T) {
	t.Parallel()

	verifier, err := NewCredentialVerifier(failingUsers{}, hash.Hasher{Cost: bcrypt.MinCost})
	require.NoError(t, err)
	svc := &AuthService{Users: failingUsers{}, Verifier: verifier}

	_, err = svc.Login(context.Background(), Credentials{Email: "a@example.com", Password: "secret1"})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.GetUser(context.Background(), "id")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAuthService_GetUserAndChangeRole(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	user, err := f.auth.Register(ctx, NewUser{Email: "frank@example.com", Password: "secret1"}, "")
	require.NoError(t, err)

	got, err := f.auth.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, got.Email)

	_, err = f.auth.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)

	updated, err := f.auth.ChangeRole(ctx, user.ID, models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, updated.Role)
	assert.Contains(t, f.events.types(), mykafka.EventUserRoleChanged)

	_, err = f.auth.ChangeRole(ctx, user.ID, models.Role("Root"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.auth.ChangeRole(ctx, "missing", models.RoleAdmin)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
