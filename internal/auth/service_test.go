package auth

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rohanmalik/merakistore-backend/internal/identity"
	"github.com/rohanmalik/merakistore-backend/internal/users"
	pkgAuth "github.com/rohanmalik/merakistore-backend/pkg/auth"
	"github.com/rohanmalik/merakistore-backend/pkg/auth/session"
	"github.com/rohanmalik/merakistore-backend/pkg/config"
	"github.com/rohanmalik/merakistore-backend/pkg/db/models"
	"github.com/rohanmalik/merakistore-backend/pkg/enums"
	pkgerrors "github.com/rohanmalik/merakistore-backend/pkg/errors"
	"github.com/rohanmalik/merakistore-backend/pkg/logger"
	"github.com/rohanmalik/merakistore-backend/pkg/security"
)

var testJWTConfig = config.JWTConfig{
	Secret:            "test-secret",
	Issuer:            "merakistore",
	ExpirationMinutes: 30,
}

var testPasswordConfig = config.PasswordConfig{
	ArgonMemoryKB:    8,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

func setupAuthTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	usersTable := `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  name TEXT NOT NULL,
  phone TEXT,
  role TEXT NOT NULL DEFAULT 'CUSTOMER',
  is_active INTEGER NOT NULL DEFAULT 1,
  last_login_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(usersTable).Error)
	return db
}

type gormTxRunner struct {
	db *gorm.DB
}

func (g *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tx := g.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

type stubSessionManager struct {
	generated []string
	revoked   []string
	rotateErr error
}

func (s *stubSessionManager) Generate(_ context.Context, accessID string) (string, error) {
	s.generated = append(s.generated, accessID)
	return "refresh-" + accessID, nil
}

func (s *stubSessionManager) Rotate(_ context.Context, oldAccessID, provided string) (string, string, error) {
	if s.rotateErr != nil {
		return "", "", s.rotateErr
	}
	if provided != "refresh-"+oldAccessID {
		return "", "", session.ErrInvalidRefreshToken
	}
	next := session.NewAccessID()
	return next, "refresh-" + next, nil
}

func (s *stubSessionManager) Revoke(_ context.Context, accessID string) error {
	s.revoked = append(s.revoked, accessID)
	return nil
}

type stubCartMerger struct {
	merges [][2]identity.OwnerKey
	err    error
}

func (s *stubCartMerger) MergeGuestCart(_ context.Context, guest, user identity.OwnerKey) error {
	s.merges = append(s.merges, [2]identity.OwnerKey{guest, user})
	return s.err
}

type authFixture struct {
	svc     Service
	repo    *users.Repository
	db      *gorm.DB
	session *stubSessionManager
	merger  *stubCartMerger
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	db := setupAuthTestDB(t)
	repo := users.NewRepository(db)
	sess := &stubSessionManager{}
	merger := &stubCartMerger{}

	svc, err := NewService(ServiceParams{
		UserRepo:       repo,
		TxRunner:       &gormTxRunner{db: db},
		SessionManager: sess,
		CartMerger:     merger,
		JWTConfig:      testJWTConfig,
		PasswordConfig: testPasswordConfig,
		Logger:         logger.New(logger.Options{ServiceName: "auth-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return &authFixture{svc: svc, repo: repo, db: db, session: sess, merger: merger}
}

func (f *authFixture) createUser(t *testing.T, email, password string) *models.User {
	t.Helper()
	hash, err := security.HashPassword(password, testPasswordConfig)
	require.NoError(t, err)
	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Name:         "Asha Rao",
		Role:         enums.UserRoleCustomer,
		IsActive:     true,
	}
	require.NoError(t, f.db.Create(user).Error)
	return user
}

func TestRegisterCreatesCustomerAndSignsIn(t *testing.T) {
	f := newAuthFixture(t)

	resp, err := f.svc.Register(context.Background(), RegisterRequest{
		Name:     "Asha Rao",
		Email:    "Asha.Register@Example.com",
		Password: "correct-horse",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "asha.register@example.com", resp.User.Email)
	assert.Equal(t, enums.UserRoleCustomer, resp.User.Role)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)

	claims, err := pkgAuth.ParseAccessToken(testJWTConfig, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)
	assert.Equal(t, enums.UserRoleCustomer, claims.Role)
	require.Len(t, f.session.generated, 1)
	assert.Equal(t, claims.ID, f.session.generated[0])
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	f.createUser(t, "taken@example.com", "first-password")

	_, err := f.svc.Register(context.Background(), RegisterRequest{
		Name:     "Second",
		Email:    "TAKEN@example.com",
		Password: "second-password",
	}, nil)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
}

func TestLoginRejectsBadPassword(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "badpass@example.com", "right-password")

	_, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    user.Email,
		Password: "wrong-password",
	}, nil)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeUnauthorized, typed.Code())
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "inactive@example.com", "some-password")
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", user.ID).Update("is_active", false).Error)

	_, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    user.Email,
		Password: "some-password",
	}, nil)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeUnauthorized, typed.Code())
}

func TestLoginMergesGuestCartAndStampsLastLogin(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "merge@example.com", "merge-password")
	guest := identity.ForGuest("guest-tok-9")

	resp, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    user.Email,
		Password: "merge-password",
	}, &guest)
	require.NoError(t, err)
	require.NotNil(t, resp.User.LastLoginAt)

	require.Len(t, f.merger.merges, 1)
	assert.Equal(t, guest, f.merger.merges[0][0])
	assert.Equal(t, identity.ForUser(user.ID), f.merger.merges[0][1])

	var stored models.User
	require.NoError(t, f.db.First(&stored, "id = ?", user.ID).Error)
	assert.NotNil(t, stored.LastLoginAt)
}

func TestLoginSurvivesMergeFailure(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "mergefail@example.com", "merge-password")
	f.merger.err = assert.AnError
	guest := identity.ForGuest("guest-tok-10")

	_, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    user.Email,
		Password: "merge-password",
	}, &guest)
	require.NoError(t, err, "a failed cart merge must not block sign-in")
}

func TestRefreshRotatesTheSession(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "refresh@example.com", "refresh-password")

	resp, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    user.Email,
		Password: "refresh-password",
	}, nil)
	require.NoError(t, err)

	rotated, err := f.svc.Refresh(context.Background(), RefreshRequest{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	})
	require.NoError(t, err)
	assert.NotEqual(t, resp.AccessToken, rotated.AccessToken)
	assert.NotEqual(t, resp.RefreshToken, rotated.RefreshToken)

	claims, err := pkgAuth.ParseAccessToken(testJWTConfig, rotated.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
}

func TestRefreshRejectsMismatchedToken(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "rotate-bad@example.com", "rotate-password")

	resp, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    user.Email,
		Password: "rotate-password",
	}, nil)
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), RefreshRequest{
		AccessToken:  resp.AccessToken,
		RefreshToken: "not-the-stored-token",
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeUnauthorized, typed.Code())
}

func TestLogoutRevokesSession(t *testing.T) {
	f := newAuthFixture(t)

	require.NoError(t, f.svc.Logout(context.Background(), "jti-123"))
	assert.Equal(t, []string{"jti-123"}, f.session.revoked)

	err := f.svc.Logout(context.Background(), " ")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeUnauthorized, typed.Code())
}
