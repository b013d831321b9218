package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/talentpath-hq/talentpath/internal/rbac"
	"github.com/talentpath-hq/talentpath/internal/shared"
	_ "github.com/talentpath-hq/talentpath/testing"
)

type stubRepo struct {
	user     *User
	sessions map[string]int64
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	if s.sessions == nil {
		s.sessions = make(map[string]int64)
	}
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

type stubResolver struct {
	principal rbac.Principal
	err       error
}

func (s *stubResolver) PrincipalForUser(ctx context.Context, userID int64) (rbac.Principal, error) {
	if s.err != nil {
		return rbac.Principal{}, s.err
	}
	return s.principal, nil
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newTestHandler(t *testing.T, repo Repository, resolver PrincipalResolver) (*Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "tp_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrfsecret")
	logger := slogDiscard()
	return NewHandler(logger, NewService(repo), resolver, sessions, csrf), sessions
}

func withSession(t *testing.T, sm *shared.SessionManager, req *http.Request) (*http.Request, *shared.Session) {
	t.Helper()
	sess, err := sm.Load(req.Context(), req)
	require.NoError(t, err)
	return req.WithContext(shared.ContextWithSession(req.Context(), sess)), sess
}

func TestLoginSuccess(t *testing.T) {
	repo := &stubRepo{user: &User{
		ID:           42,
		Email:        "admin@example.org",
		FullName:     "Asha Verma",
		PasswordHash: hashPassword(t, "correct-horse"),
		IsActive:     true,
	}}
	resolver := &stubResolver{principal: rbac.Principal{
		UserID:      42,
		RoleName:    "STATE_ADMIN",
		Permissions: []string{shared.PermScreeningView},
	}}
	handler, sessions := newTestHandler(t, repo, resolver)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"admin@example.org","password":"correct-horse"}`))
	req.Header.Set("Content-Type", "application/json")
	req, sess := withSession(t, sessions, req)

	res := httptest.NewRecorder()
	handler.handleLogin(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "42", sess.User())
	require.Contains(t, repo.sessions, sess.ID)

	var body sessionResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, int64(42), body.UserID)
	require.Equal(t, "STATE_ADMIN", body.Role)
	require.NotEmpty(t, body.CSRFToken)
}

func TestLoginInvalidCredentials(t *testing.T) {
	repo := &stubRepo{user: &User{
		ID:           42,
		Email:        "admin@example.org",
		PasswordHash: hashPassword(t, "correct-horse"),
		IsActive:     true,
	}}
	handler, sessions := newTestHandler(t, repo, &stubResolver{})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"admin@example.org","password":"wrong-password"}`))
	req.Header.Set("Content-Type", "application/json")
	req, sess := withSession(t, sessions, req)

	res := httptest.NewRecorder()
	handler.handleLogin(res, req)

	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Empty(t, sess.User())
}

func TestLoginInactiveAccount(t *testing.T) {
	repo := &stubRepo{user: &User{
		ID:           42,
		Email:        "admin@example.org",
		PasswordHash: hashPassword(t, "correct-horse"),
		IsActive:     false,
	}}
	handler, sessions := newTestHandler(t, repo, &stubResolver{})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"admin@example.org","password":"correct-horse"}`))
	req.Header.Set("Content-Type", "application/json")
	req, _ = withSession(t, sessions, req)

	res := httptest.NewRecorder()
	handler.handleLogin(res, req)

	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLogoutDestroysSession(t *testing.T) {
	repo := &stubRepo{sessions: map[string]int64{}}
	handler, sessions := newTestHandler(t, repo, &stubResolver{})

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req, sess := withSession(t, sessions, req)
	sess.SetUser("42")
	repo.sessions[sess.ID] = 42

	res := httptest.NewRecorder()
	handler.handleLogout(res, req)

	require.Equal(t, http.StatusNoContent, res.Code)
	require.NotContains(t, repo.sessions, sess.ID)
}

func TestMeWithoutSession(t *testing.T) {
	handler, _ := newTestHandler(t, &stubRepo{}, &stubResolver{})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	res := httptest.NewRecorder()
	handler.handleMe(res, req)

	require.Equal(t, http.StatusUnauthorized, res.Code)
}
