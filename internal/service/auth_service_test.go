package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/educlear/educlear-api/internal/models"
	appErrors "github.com/educlear/educlear-api/pkg/errors"
)

type authRepoStub struct {
	usersByEmail map[string]*models.User
	usersByID    map[string]*models.User
	tokens       map[string]*models.RefreshToken
	revokedUsers []string
	auditLogs    []*models.AuditLog
	lastLogin    map[string]time.Time
	passwords    map[string]string
}

func newAuthRepoStub(users ...*models.User) *authRepoStub {
	stub := &authRepoStub{
		usersByEmail: make(map[string]*models.User),
		usersByID:    make(map[string]*models.User),
		tokens:       make(map[string]*models.RefreshToken),
		lastLogin:    make(map[string]time.Time),
		passwords:    make(map[string]string),
	}
	for _, user := range users {
		stub.usersByEmail[user.Email] = user
		stub.usersByID[user.ID] = user
	}
	return stub
}

func (s *authRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := s.usersByEmail[email]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.usersByID[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	s.lastLogin[id] = ts
	return nil
}

func (s *authRepoStub) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if _, ok := s.usersByID[id]; !ok {
		return sql.ErrNoRows
	}
	s.passwords[id] = passwordHash
	return nil
}

func (s *authRepoStub) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	s.revokedUsers = append(s.revokedUsers, userID)
	for _, token := range s.tokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

func (s *authRepoStub) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	s.tokens[token.Token] = token
	return nil
}

func (s *authRepoStub) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if stored, ok := s.tokens[token]; ok {
		return stored, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range s.tokens {
		if token.ID == id {
			token.Revoked = true
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *authRepoStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.auditLogs = append(s.auditLogs, log)
	return nil
}

func hashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "educlear-api",
	}
}

func libraryUser(t *testing.T) *models.User {
	dept := "CSE"
	return &models.User{
		ID:           "user-1",
		Email:        "librarian@college.edu",
		PasswordHash: hashPassword(t, "open-sesame"),
		FullName:     "Lakshmi Rao",
		Role:         models.RoleLibrary,
		Department:   &dept,
		Active:       true,
	}
}

func TestLoginSuccessIssuesTokenPair(t *testing.T) {
	repo := newAuthRepoStub(libraryUser(t))
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "librarian@college.edu",
		Password: "open-sesame",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, models.RoleLibrary, resp.User.Role)
	require.Contains(t, repo.tokens, resp.RefreshToken)
	require.Len(t, repo.auditLogs, 1)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, models.RoleLibrary, claims.Role)
	require.Equal(t, "CSE", claims.Department)
}

func TestLoginWrongPassword(t *testing.T) {
	repo := newAuthRepoStub(libraryUser(t))
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "librarian@college.edu",
		Password: "wrong",
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrorCode(t, err))
}

func TestLoginUnknownEmailDoesNotLeakExistence(t *testing.T) {
	repo := newAuthRepoStub()
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "ghost@college.edu",
		Password: "whatever",
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrorCode(t, err))
}

func TestLoginInactiveAccount(t *testing.T) {
	user := libraryUser(t)
	user.Active = false
	repo := newAuthRepoStub(user)
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "librarian@college.edu",
		Password: "open-sesame",
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInactiveAccount.Code, appErrorCode(t, err))
}

func TestRefreshTokenRotates(t *testing.T) {
	repo := newAuthRepoStub(libraryUser(t))
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "librarian@college.edu",
		Password: "open-sesame",
	})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.NoError(t, err)
	require.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	require.True(t, repo.tokens[login.RefreshToken].Revoked)
	require.False(t, repo.tokens[refreshed.RefreshToken].Revoked)
}

func TestRefreshTokenExpired(t *testing.T) {
	repo := newAuthRepoStub(libraryUser(t))
	repo.tokens["stale"] = &models.RefreshToken{
		ID:        "rt-1",
		UserID:    "user-1",
		Token:     "stale",
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrUnauthorized.Code, appErrorCode(t, err))
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	repo := newAuthRepoStub(libraryUser(t))
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "open-sesame",
		NewPassword: "new-passphrase",
	})
	require.NoError(t, err)
	require.Contains(t, repo.revokedUsers, "user-1")
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.passwords["user-1"]), []byte("new-passphrase")))
}

func TestChangePasswordWrongOldPassword(t *testing.T) {
	repo := newAuthRepoStub(libraryUser(t))
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "not-it",
		NewPassword: "new-passphrase",
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrorCode(t, err))
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	repo := newAuthRepoStub(libraryUser(t))
	svc := NewAuthService(repo, nil, nil, testAuthConfig())
	other := NewAuthService(repo, nil, nil, AuthConfig{
		AccessTokenSecret: "different-secret",
		AccessTokenExpiry: 15 * time.Minute,
	})

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "librarian@college.edu",
		Password: "open-sesame",
	})
	require.NoError(t, err)

	_, err = other.ValidateToken(login.AccessToken)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrUnauthorized.Code, appErrorCode(t, err))
}
