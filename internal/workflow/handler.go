package workflow

import (
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
	"github.com/talentpath-hq/talentpath/internal/training"
)

// TransitionRecorder counts committed stage transitions for monitoring.
type TransitionRecorder interface {
	RecordTransition(toStage string)
}

// Handler serves candidate workflow endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validate    *validator.Validate
	mw          rbac.Middleware
	transitions TransitionRecorder
}

// NewHandler builds Handler instance. transitions may be nil.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware, transitions TransitionRecorder) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), mw: mw, transitions: transitions}
}

func (h *Handler) recordTransition(stage Stage) {
	if h.transitions != nil {
		h.transitions.RecordTransition(string(stage))
	}
}

// MountRoutes registers screening workflow routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.mw.RequirePrincipal)
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermScreeningView, shared.PermScreeningComplete, shared.PermEnrollmentManage))
		r.Get("/pending", h.listStage(StagePendingScreening))
		r.Get("/pending-orientation", h.listStage(StagePendingOrientation))
		r.Get("/pending-enroll", h.listStage(StagePendingEnrollment))
		r.Get("/enrolled", h.listStage(StageEnrolled))
		r.Get("/on-hold", h.listStage(StageOnHold))
		r.Get("/stats", h.stats)
		r.Get("/{id}", h.getCandidate)
	})
	r.With(h.mw.RequireAll(shared.PermCandidateRegister)).Post("/register", h.register)
	r.With(h.mw.RequireAll(shared.PermScreeningComplete)).Put("/complete-screening", h.completeScreening)
	r.With(h.mw.RequireAll(shared.PermOrientationComplete)).Put("/complete-orientation", h.completeOrientation)
	r.With(h.mw.RequireAll(shared.PermEnrollmentManage)).Put("/enroll", h.enroll)
	r.With(h.mw.RequireAll(shared.PermEnrollmentManage)).Put("/{id}/drop", h.drop)
}

type registerRequest struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"max=20"`
	City      string `json:"city" validate:"max=100"`
	State     string `json:"state" validate:"max=100"`
}

type screeningRequest struct {
	CandidateID int64  `json:"candidateId" validate:"required"`
	Approved    bool   `json:"approved"`
	Notes       string `json:"notes" validate:"max=1000"`
}

type orientationRequest struct {
	CandidateID int64  `json:"candidateId" validate:"required"`
	Notes       string `json:"notes" validate:"max=1000"`
}

type enrollRequest struct {
	CandidateID     int64  `json:"candidateId" validate:"required"`
	TrainingBatchID int64  `json:"trainingBatchId" validate:"required"`
	Notes           string `json:"notes" validate:"max=1000"`
}

type dropRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

type candidateResponse struct {
	ID              int64      `json:"id"`
	FirstName       string     `json:"firstName"`
	LastName        string     `json:"lastName"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone"`
	City            string     `json:"city"`
	State           string     `json:"state"`
	Stage           Stage      `json:"stage"`
	StageEnteredAt  time.Time  `json:"stageEnteredAt"`
	AssignedBatchID *int64     `json:"assignedBatchId"`
	ScreeningNotes  string     `json:"screeningNotes,omitempty"`
	EnrolledAt      *time.Time `json:"enrolledAt,omitempty"`
	DropReason      string     `json:"dropReason,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func (h *Handler) listStage(stage Stage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		candidates, err := h.service.ListByStage(r.Context(), stage)
		if err != nil {
			h.respondError(w, err)
			return
		}
		out := make([]candidateResponse, 0, len(candidates))
		for _, c := range candidates {
			out = append(out, toCandidateResponse(c))
		}
		httpx.JSON(w, http.StatusOK, out)
	}
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{
		"pendingScreening":   stats.PendingScreening,
		"pendingOrientation": stats.PendingOrientation,
		"pendingEnroll":      stats.PendingEnrollment,
		"enrolled":           stats.Enrolled,
		"onHold":             stats.OnHold,
		"dropped":            stats.Dropped,
	})
}

func (h *Handler) getCandidate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid candidate id")
		return
	}
	candidate, err := h.service.GetCandidate(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCandidateResponse(candidate))
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	candidate, err := h.service.Register(r.Context(), principal, RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		City:      req.City,
		State:     req.State,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toCandidateResponse(candidate))
}

func (h *Handler) completeScreening(w http.ResponseWriter, r *http.Request) {
	var req screeningRequest
	if !h.decode(w, r, &req) {
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	candidate, err := h.service.CompleteScreening(r.Context(), req.CandidateID, principal, req.Approved, req.Notes)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.recordTransition(candidate.Stage)
	httpx.JSON(w, http.StatusOK, toCandidateResponse(candidate))
}

func (h *Handler) completeOrientation(w http.ResponseWriter, r *http.Request) {
	var req orientationRequest
	if !h.decode(w, r, &req) {
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	candidate, err := h.service.CompleteOrientation(r.Context(), req.CandidateID, principal, req.Notes)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.recordTransition(candidate.Stage)
	httpx.JSON(w, http.StatusOK, toCandidateResponse(candidate))
}

func (h *Handler) enroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if !h.decode(w, r, &req) {
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	candidate, err := h.service.Enroll(r.Context(), req.CandidateID, principal, req.TrainingBatchID, req.Notes)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.recordTransition(candidate.Stage)
	httpx.JSON(w, http.StatusOK, toCandidateResponse(candidate))
}

func (h *Handler) drop(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid candidate id")
		return
	}
	var req dropRequest
	if !h.decode(w, r, &req) {
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	candidate, err := h.service.Drop(r.Context(), id, principal, req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.recordTransition(candidate.Stage)
	httpx.JSON(w, http.StatusOK, toCandidateResponse(candidate))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, training.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, training.ErrCapacityExceeded):
		httpx.Problem(w, http.StatusConflict, "Capacity Exceeded", err.Error())
	case errors.Is(err, training.ErrBatchInactive):
		httpx.Problem(w, http.StatusConflict, "Batch Inactive", err.Error())
	case errors.Is(err, rbac.ErrUnauthorized):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		h.logger.Error("workflow handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toCandidateResponse(c Candidate) candidateResponse {
	return candidateResponse{
		ID:              c.ID,
		FirstName:       c.FirstName,
		LastName:        c.LastName,
		Email:           c.Email,
		Phone:           c.Phone,
		City:            c.City,
		State:           c.State,
		Stage:           c.Stage,
		StageEnteredAt:  c.StageEnteredAt,
		AssignedBatchID: c.AssignedBatchID,
		ScreeningNotes:  c.ScreeningNotes,
		EnrolledAt:      c.EnrolledAt,
		DropReason:      c.DropReason,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}
