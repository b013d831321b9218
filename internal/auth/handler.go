package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/talentpath-hq/talentpath/internal/platform/httpx"
	"github.com/talentpath-hq/talentpath/internal/rbac"
	"github.com/talentpath-hq/talentpath/internal/shared"
)

// PrincipalResolver turns an authenticated user into their effective
// permissions. *rbac.Service satisfies it.
type PrincipalResolver interface {
	PrincipalForUser(ctx context.Context, userID int64) (rbac.Principal, error)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	principals     PrincipalResolver
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validate       *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, principals PrincipalResolver, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		principals:     principals,
		sessionManager: sessions,
		csrfManager:    csrf,
		validate:       validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.handleMe)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type sessionResponse struct {
	UserID      int64    `json:"userId"`
	Email       string   `json:"email"`
	FullName    string   `json:"fullName"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	CSRFToken   string   `json:"csrfToken,omitempty"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	h.sessionManager.Renew(sess)
	sess.SetUser(strconv.FormatInt(user.ID, 10))
	csrfToken, _ := h.csrfManager.RotateToken(r.Context(), sess)

	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}

	principal, err := h.principals.PrincipalForUser(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("resolve principal", slog.Any("error", err))
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "account has no active role")
		return
	}

	httpx.JSON(w, http.StatusOK, sessionResponse{
		UserID:      user.ID,
		Email:       user.Email,
		FullName:    user.FullName,
		Role:        principal.RoleName,
		Permissions: principal.Permissions,
		CSRFToken:   csrfToken,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "not signed in")
		return
	}
	userID, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "not signed in")
		return
	}
	principal, err := h.principals.PrincipalForUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "account no longer active")
			return
		}
		h.logger.Error("resolve principal", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, sessionResponse{
		UserID:      principal.UserID,
		Role:        principal.RoleName,
		Permissions: principal.Permissions,
	})
}
