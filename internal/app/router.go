package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/talentpath-hq/talentpath/internal/aging"
	"github.com/talentpath-hq/talentpath/internal/audit"
	"github.com/talentpath-hq/talentpath/internal/auth"
	"github.com/talentpath-hq/talentpath/internal/observability"
	"github.com/talentpath-hq/talentpath/internal/rbac"
	"github.com/talentpath-hq/talentpath/internal/shared"
	"github.com/talentpath-hq/talentpath/internal/training"
	"github.com/talentpath-hq/talentpath/internal/workflow"
	"github.com/talentpath-hq/talentpath/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager

	AuthHandler     *auth.Handler
	WorkflowHandler *workflow.Handler
	TrainingHandler *training.Handler
	AgingHandler    *aging.Handler
	AuditHandler    *audit.Handler
	RBACHandler     *rbac.Handler
	JobsHandler     *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with TalentPath defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	r.Route("/screening", params.WorkflowHandler.MountRoutes)
	r.Route("/training/batches", params.TrainingHandler.MountRoutes)
	r.Route("/notifications", params.AgingHandler.MountRoutes)
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.RBACHandler != nil {
		r.Route("/roles", params.RBACHandler.MountRoles)
		r.Route("/permissions", params.RBACHandler.MountPermissions)
	}
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
