package rbac

import (
	"errors"
	"net/http"
	"strconv"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/talentpath-hq/talentpath/internal/platform/httpx"
	"github.com/talentpath-hq/talentpath/internal/shared"
)

// Handler serves role and permission management endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	mw       Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		mw:       mw,
	}
}

// MountRoles registers role management routes.
func (h *Handler) MountRoles(r chi.Router) {
	r.Use(h.mw.RequirePrincipal)
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAny(shared.PermRolesView, shared.PermRolesEdit))
		r.Get("/", h.listRoles)
		r.Get("/{id}", h.getRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAll(shared.PermRolesEdit))
		r.Post("/", h.createRole)
		r.Put("/{id}", h.updateRole)
		r.Delete("/{id}", h.deleteRole)
		r.Put("/{id}/permissions", h.setPermissions)
		r.Put("/{id}/toggle-status", h.toggleRole)
	})
}

// MountPermissions registers permission catalog routes.
func (h *Handler) MountPermissions(r chi.Router) {
	r.Use(h.mw.RequirePrincipal)
	r.Use(h.mw.RequireAny(shared.PermPermissionsView, shared.PermRolesEdit))
	r.Get("/", h.listPermissions)
	r.Get("/grouped", h.listPermissionsGrouped)
}

type roleResponse struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	IsActive    bool     `json:"isActive"`
	Permissions []string `json:"permissions"`
}

type createRoleRequest struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Description string   `json:"description" validate:"max=500"`
	Permissions []string `json:"permissions"`
}

type setPermissionsRequest struct {
	PermissionCodes []string `json:"permissionCodes" validate:"required"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	role, err := h.service.CreateRole(r.Context(), principal, req.Name, req.Description, req.Permissions)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	role, err := h.service.UpdateRole(r.Context(), principal, id, req.Name, req.Description)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeleteRole(r.Context(), principal, id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toggleRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	role, err := h.service.ToggleRole(r.Context(), principal, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) setPermissions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	var req setPermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	role, err := h.service.SetPermissions(r.Context(), principal, id, req.PermissionCodes)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) listPermissionsGrouped(w http.ResponseWriter, r *http.Request) {
	grouped, err := h.service.ListPermissionsByModule(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grouped)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrUnauthorized):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrProtected):
		httpx.Problem(w, http.StatusConflict, "Protected Resource", err.Error())
	default:
		h.logger.Error("rbac handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toRoleResponse(role Role) roleResponse {
	perms := role.Permissions
	if perms == nil {
		perms = []string{}
	}
	return roleResponse{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		IsActive:    role.IsActive,
		Permissions: perms,
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
