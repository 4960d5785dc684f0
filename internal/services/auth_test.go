package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/somexchange/backend/internal/config"
	"github.com/somexchange/backend/internal/models"
	"github.com/somexchange/backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testArgon = config.Argon2Config{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLength: 32, SaltLength: 16}

func newTestAuth(t *testing.T, withRedis bool) (*AuthService, redismock.ClientMock) {
	t.Helper()
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	jwtCfg := config.JWTConfig{SecretKey: "test-secret", ExpiryHours: 12}
	if !withRedis {
		return NewAuthService(st, nil, jwtCfg, testArgon, nil), nil
	}
	db, mock := redismock.NewClientMock()
	return NewAuthService(st, db, jwtCfg, testArgon, nil), mock
}

func TestAuthService_CreateUser(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuth(t, false)

	t.Run("admin creates a teller", func(t *testing.T) {
		u, err := svc.CreateUser(ctx, admin, CreateUserRequest{Username: "Alice", Password: "password123", Role: models.RoleTeller})
		require.NoError(t, err)
		assert.Equal(t, "alice", u.Username)
		assert.NotContains(t, u.PasswordHash, "password123")
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := svc.CreateUser(ctx, admin, CreateUserRequest{Username: "alice", Password: "password123", Role: models.RoleTeller})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("tellers cannot create users", func(t *testing.T) {
		_, err := svc.CreateUser(ctx, alice, CreateUserRequest{Username: "mallory", Password: "password123", Role: models.RoleAdmin})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("invalid role", func(t *testing.T) {
		_, err := svc.CreateUser(ctx, admin, CreateUserRequest{Username: "carol", Password: "password123", Role: "auditor"})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestAuthService_LoginAndLogout(t *testing.T) {
	ctx := context.Background()
	svc, mock := newTestAuth(t, true)
	fixed := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	_, err := svc.CreateUser(ctx, admin, CreateUserRequest{Username: "alice", Password: "password123", Role: models.RoleTeller})
	require.NoError(t, err)

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, LoginRequest{Username: "alice", Password: "nope-nope"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.Login(ctx, LoginRequest{Username: "nobody", Password: "password123"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	resp, err := svc.Login(ctx, LoginRequest{Username: "ALICE", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, fixed.Add(12*time.Hour), resp.ExpiresAt)
	claims, err := svc.parse(resp.Token)
	require.NoError(t, err)

	t.Run("token resolves the identity", func(t *testing.T) {
		mock.ExpectExists(revokedKey(claims.ID)).SetVal(0)
		id, err := svc.Authenticate(ctx, resp.Token)
		require.NoError(t, err)
		assert.Equal(t, models.Identity{Username: "alice", Role: models.RoleTeller}, id)
	})

	t.Run("logout revokes until expiry", func(t *testing.T) {
		mock.ExpectSet(revokedKey(claims.ID), "alice", 12*time.Hour).SetVal("OK")
		require.NoError(t, svc.Logout(ctx, resp.Token))

		mock.ExpectExists(revokedKey(claims.ID)).SetVal(1)
		_, err := svc.Authenticate(ctx, resp.Token)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("expired token", func(t *testing.T) {
		svc.now = func() time.Time { return fixed.Add(13 * time.Hour) }
		defer func() { svc.now = func() time.Time { return fixed } }()

		_, err := svc.Authenticate(ctx, resp.Token)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthService_RejectsForeignTokens(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuth(t, false)
	other, _ := newTestAuth(t, false)
	other.jwt.SecretKey = "another-secret"

	token, _, err := other.generateJWT(&models.User{Username: "alice", Role: models.RoleAdmin})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_AuthenticateUsesStoredRole(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuth(t, false)

	_, err := svc.CreateUser(ctx, admin, CreateUserRequest{Username: "carol", Password: "password123", Role: models.RoleAdmin})
	require.NoError(t, err)
	resp, err := svc.Login(ctx, LoginRequest{Username: "carol", Password: "password123"})
	require.NoError(t, err)

	id, err := svc.Authenticate(ctx, resp.Token)
	require.NoError(t, err)
	assert.True(t, id.IsAdmin())

	t.Run("demoted user loses admin on the same token", func(t *testing.T) {
		u, err := svc.store.GetUser(ctx, "carol")
		require.NoError(t, err)
		u.Role = models.RoleTeller
		require.NoError(t, svc.store.PutUser(ctx, u))

		id, err := svc.Authenticate(ctx, resp.Token)
		require.NoError(t, err)
		assert.Equal(t, models.Identity{Username: "carol", Role: models.RoleTeller}, id)
	})

	t.Run("token of a missing user", func(t *testing.T) {
		token, _, err := svc.generateJWT(&models.User{Username: "ghost", Role: models.RoleAdmin})
		require.NoError(t, err)

		_, err = svc.Authenticate(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestPasswordHashing(t *testing.T) {
	svc, _ := newTestAuth(t, false)
	password := "testpassword"

	hashed, err := svc.hashPassword(password)
	assert.NoError(t, err)
	assert.NotEmpty(t, hashed)

	assert.True(t, svc.verifyPassword(password, hashed))
	assert.False(t, svc.verifyPassword("wrongpassword", hashed))
	assert.False(t, svc.verifyPassword(password, "garbage"))
}
