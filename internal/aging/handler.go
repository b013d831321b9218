package aging

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/talentpath-hq/talentpath/internal/platform/httpx"
	"github.com/talentpath-hq/talentpath/internal/rbac"
	"github.com/talentpath-hq/talentpath/internal/shared"
	"github.com/talentpath-hq/talentpath/internal/workflow"
)

// Handler serves aging notification endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	mw      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw}
}

// MountRoutes registers notification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.mw.RequirePrincipal)
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermNotificationsView, shared.PermNotificationsManage))
		r.Get("/", h.listSignals)
		r.Get("/by-color/{color}", h.listByColor)
		r.Get("/summary", h.summary)
		r.Get("/unread-count", h.unreadCount)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAll(shared.PermNotificationsManage))
		r.Put("/mark-all-read", h.markAllRead)
		r.Put("/{id}/dismiss", h.dismiss)
		r.Post("/calculate", h.calculate)
	})
}

type signalResponse struct {
	ID             int64          `json:"id"`
	CandidateID    int64          `json:"candidateId"`
	CandidateName  string         `json:"candidateName"`
	Phone          string         `json:"phoneNumber"`
	Stage          workflow.Stage `json:"stage"`
	StageEnteredAt time.Time      `json:"stageEnteredAt"`
	DaysInStage    int            `json:"daysInStage"`
	Color          Color          `json:"color"`
	Message        string         `json:"message"`
	Read           bool           `json:"isRead"`
}

func (h *Handler) listSignals(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFromContext(r.Context())
	signals, err := h.service.ListSignals(r.Context(), principal, nil)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSignalResponses(signals))
}

func (h *Handler) listByColor(w http.ResponseWriter, r *http.Request) {
	color, err := ParseColor(chi.URLParam(r, "color"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	signals, err := h.service.ListSignals(r.Context(), principal, &color)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSignalResponses(signals))
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFromContext(r.Context())
	sum, err := h.service.Summary(r.Context(), principal)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFromContext(r.Context())
	count, err := h.service.UnreadCount(r.Context(), principal)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"unreadCount": count})
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFromContext(r.Context())
	updated, err := h.service.MarkAllRead(r.Context(), principal)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (h *Handler) dismiss(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid signal id")
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	if err := h.service.Dismiss(r.Context(), principal, id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) calculate(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFromContext(r.Context())
	n, err := h.service.Trigger(r.Context(), principal)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"signals": n})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, rbac.ErrUnauthorized):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		h.logger.Error("aging handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toSignalResponses(signals []Signal) []signalResponse {
	out := make([]signalResponse, 0, len(signals))
	for _, s := range signals {
		out = append(out, signalResponse{
			ID:             s.ID,
			CandidateID:    s.CandidateID,
			CandidateName:  s.CandidateName,
			Phone:          s.Phone,
			Stage:          s.Stage,
			StageEnteredAt: s.StageEnteredAt,
			DaysInStage:    s.DaysInStage,
			Color:          s.Color,
			Message:        s.Message,
			Read:           s.Read,
		})
	}
	return out
}
