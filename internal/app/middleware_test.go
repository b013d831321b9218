package app

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"log/slog"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/talentpath-hq/talentpath/internal/shared"
)

func newTestStack(t *testing.T) (http.Handler, *shared.CSRFManager) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sessions := shared.NewSessionManager(client, "tp_session", "test-secret", time.Hour, false)
	csrf := shared.NewCSRFManager("test-secret")

	r := chi.NewRouter()
	r.Use(MiddlewareStack(MiddlewareConfig{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:         &Config{AppEnv: "development", AppRequestTimeout: 5 * time.Second},
		SessionManager: sessions,
		CSRFManager:    csrf,
	})...)

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
	r.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		token, err := csrf.EnsureToken(r.Context(), sess)
		require.NoError(t, err)
		w.Header().Set(shared.CSRFHeader, token)
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/mutate", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r, csrf
}

func TestStackIssuesSessionAndSecurityHeaders(t *testing.T) {
	router, _ := newTestStack(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "tp_session", cookies[0].Name)
	require.NotEmpty(t, cookies[0].Value)
}

func TestStackRejectsMutationWithoutCSRFToken(t *testing.T) {
	router, _ := newTestStack(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mutate", nil))

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStackAcceptsMutationWithIssuedToken(t *testing.T) {
	router, _ := newTestStack(t)

	// Login is exempt and hands out the token for the new session.
	loginRec := httptest.NewRecorder()
	router.ServeHTTP(loginRec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	require.Equal(t, http.StatusOK, loginRec.Code)

	token := loginRec.Header().Get(shared.CSRFHeader)
	require.NotEmpty(t, token)
	cookies := loginRec.Result().Cookies()
	require.Len(t, cookies, 1)

	req := httptest.NewRequest(http.MethodPost, "/mutate", nil)
	req.AddCookie(cookies[0])
	req.Header.Set(shared.CSRFHeader, token)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}
