package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/talentpath-hq/talentpath/internal/platform/httpx"
	"github.com/talentpath-hq/talentpath/internal/rbac"
	"github.com/talentpath-hq/talentpath/internal/shared"
)

const (
	exportRateLimit  = 10
	exportRateWindow = time.Minute
)

// Handler serves the audit timeline endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	mw      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw}
}

// MountRoutes registers timeline routes. The CSV export is rate limited per
// actor because it bypasses paging.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.mw.RequirePrincipal)
	r.Use(h.mw.RequireAll(shared.PermAuditView))
	r.Get("/", h.timeline)
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(exportRateLimit, exportRateWindow, httprate.WithKeyFuncs(exportRateKey)))
		r.Get("/export.csv", h.exportCSV)
	})
}

func exportRateKey(r *http.Request) (string, error) {
	if principal, ok := rbac.PrincipalFromContext(r.Context()); ok {
		return "user:" + strconv.FormatInt(principal.UserID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

type entryResponse struct {
	ID         int64           `json:"id"`
	OccurredAt time.Time       `json:"occurredAt"`
	ActorID    int64           `json:"actorId"`
	ActorEmail string          `json:"actorEmail"`
	Action     string          `json:"action"`
	Entity     string          `json:"entity"`
	EntityID   string          `json:"entityId"`
	Meta       json.RawMessage `json:"meta,omitempty"`
}

type timelineResponse struct {
	Entries []entryResponse `json:"entries"`
	Paging  Paging          `json:"paging"`
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	result, err := h.service.Timeline(r.Context(), principal, filters)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, timelineResponse{Entries: toEntryResponses(result.Entries), Paging: result.Paging})
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	entries, err := h.service.Export(r.Context(), principal, filters)
	if err != nil {
		h.respondError(w, err)
		return
	}
	body, err := WriteCSV(entries)
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-timeline.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func parseFilters(r *http.Request) (Filters, error) {
	q := r.URL.Query()
	var filters Filters
	var err error
	if filters.From, err = parseTimeParam(q.Get("from")); err != nil {
		return Filters{}, fmt.Errorf("invalid from: %w", err)
	}
	if filters.To, err = parseTimeParam(q.Get("to")); err != nil {
		return Filters{}, fmt.Errorf("invalid to: %w", err)
	}
	if raw := q.Get("actorId"); raw != "" {
		if filters.ActorID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return Filters{}, errors.New("invalid actorId")
		}
	}
	filters.Entity = q.Get("entity")
	filters.Action = q.Get("action")
	if raw := q.Get("page"); raw != "" {
		if filters.Page, err = strconv.Atoi(raw); err != nil {
			return Filters{}, errors.New("invalid page")
		}
	}
	if raw := q.Get("pageSize"); raw != "" {
		if filters.PageSize, err = strconv.Atoi(raw); err != nil {
			return Filters{}, errors.New("invalid pageSize")
		}
	}
	return filters, nil
}

func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rbac.ErrUnauthorized):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		h.logger.Error("audit handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toEntryResponses(entries []Entry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:         e.ID,
			OccurredAt: e.OccurredAt,
			ActorID:    e.ActorID,
			ActorEmail: e.ActorEmail,
			Action:     e.Action,
			Entity:     e.Entity,
			EntityID:   e.EntityID,
			Meta:       e.Meta,
		})
	}
	return out
}
