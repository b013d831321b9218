package training

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
)

// Handler serves training batch endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	mw       rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), mw: mw}
}

// MountRoutes registers training batch routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.mw.RequirePrincipal)
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermTrainingView, shared.PermTrainingManage))
		r.Get("/", h.listBatches)
		r.Get("/available", h.listAvailable)
		r.Get("/upcoming", h.listUpcoming)
		r.Get("/{id}", h.getBatch)
		r.Get("/{id}/slots", h.availableSlots)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAll(shared.PermTrainingManage))
		r.Post("/", h.createBatch)
		r.Put("/{id}", h.updateBatch)
		r.Put("/{id}/toggle-active", h.toggleActive)
		r.Delete("/{id}", h.deleteBatch)
	})
}

type batchRequest struct {
	Code         string    `json:"code" validate:"required,max=50"`
	TrainingName string    `json:"trainingName" validate:"required,max=200"`
	MaxCapacity  int       `json:"maxCapacity" validate:"required,gt=0"`
	StartDate    time.Time `json:"startDate" validate:"required"`
	EndDate      time.Time `json:"endDate"`
}

type batchResponse struct {
	ID              int64     `json:"id"`
	Code            string    `json:"code"`
	TrainingName    string    `json:"trainingName"`
	MaxCapacity     int       `json:"maxCapacity"`
	CurrentEnrolled int       `json:"currentEnrolled"`
	AvailableSlots  int       `json:"availableSlots"`
	IsActive        bool      `json:"isActive"`
	StartDate       time.Time `json:"startDate"`
	EndDate         time.Time `json:"endDate"`
}

func (h *Handler) listBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.service.ListBatches(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBatchResponses(batches))
}

func (h *Handler) listAvailable(w http.ResponseWriter, r *http.Request) {
	batches, err := h.service.ListAvailable(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBatchResponses(batches))
}

func (h *Handler) listUpcoming(w http.ResponseWriter, r *http.Request) {
	batches, err := h.service.ListUpcoming(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBatchResponses(batches))
}

func (h *Handler) getBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid batch id")
		return
	}
	batch, err := h.service.GetBatch(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBatchResponse(batch))
}

func (h *Handler) availableSlots(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid batch id")
		return
	}
	slots, err := h.service.AvailableSlots(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"availableSlots": slots})
}

func (h *Handler) createBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	batch, err := h.service.CreateBatch(r.Context(), principal, toBatchInput(req))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toBatchResponse(batch))
}

func (h *Handler) updateBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid batch id")
		return
	}
	var req batchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	batch, err := h.service.UpdateBatch(r.Context(), principal, id, toBatchInput(req))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBatchResponse(batch))
}

func (h *Handler) toggleActive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid batch id")
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	batch, err := h.service.ToggleActive(r.Context(), principal, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBatchResponse(batch))
}

func (h *Handler) deleteBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid batch id")
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	if err := h.service.DeleteBatch(r.Context(), principal, id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrCapacityExceeded):
		httpx.Problem(w, http.StatusConflict, "Capacity Exceeded", err.Error())
	case errors.Is(err, ErrBatchInactive):
		httpx.Problem(w, http.StatusConflict, "Batch Inactive", err.Error())
	case errors.Is(err, ErrBatchNotEmpty):
		httpx.Problem(w, http.StatusConflict, "Batch Not Empty", err.Error())
	case errors.Is(err, ErrDuplicateCode):
		httpx.Problem(w, http.StatusConflict, "Duplicate Code", err.Error())
	case errors.Is(err, rbac.ErrUnauthorized):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		h.logger.Error("training handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toBatchInput(req batchRequest) BatchInput {
	return BatchInput{
		Code:         req.Code,
		TrainingName: req.TrainingName,
		MaxCapacity:  req.MaxCapacity,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
	}
}

func toBatchResponses(batches []Batch) []batchResponse {
	out := make([]batchResponse, 0, len(batches))
	for _, b := range batches {
		out = append(out, toBatchResponse(b))
	}
	return out
}

func toBatchResponse(b Batch) batchResponse {
	return batchResponse{
		ID:              b.ID,
		Code:            b.Code,
		TrainingName:    b.TrainingName,
		MaxCapacity:     b.MaxCapacity,
		CurrentEnrolled: b.CurrentEnrolled,
		AvailableSlots:  b.AvailableSlots(),
		IsActive:        b.IsActive,
		StartDate:       b.StartDate,
		EndDate:         b.EndDate,
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
