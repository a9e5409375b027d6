package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/armature-build/armature/internal/approval"
	"github.com/armature-build/armature/internal/invoices"
	"github.com/armature-build/armature/internal/ledger"
	"github.com/armature-build/armature/internal/observability"
	"github.com/armature-build/armature/internal/reconcile"
	"github.com/armature-build/armature/jobs"
	"github.com/armature-build/armature/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	ApprovalHandler  *approval.Handler
	ReconcileHandler *reconcile.Handler
	InvoicesHandler  *invoices.Handler
	LedgerHandler    *ledger.Handler
	JobHandler       *jobs.Handler
	ReportHandler    *report.Handler
	Metrics          *observability.Metrics
	FileDir          string
}

// NewRouter constructs the chi.Router with Armature defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.ApprovalHandler != nil {
		r.Route("/approval", params.ApprovalHandler.MountRoutes)
	}
	if params.ReconcileHandler != nil {
		r.Route("/reconciliation", params.ReconcileHandler.MountRoutes)
	}
	if params.InvoicesHandler != nil {
		r.Route("/invoices", params.InvoicesHandler.MountRoutes)
	}
	if params.LedgerHandler != nil {
		r.Route("/orders", params.LedgerHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.ReportHandler != nil {
		r.Route("/report", params.ReportHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.FileDir != "" {
		// Uploaded proofs are immutable (content-addressed names), so
		// long browser caching is safe.
		fileServer := http.StripPrefix("/files/", http.FileServer(http.Dir(params.FileDir)))
		r.Handle("/files/*", fileCacheHandler(fileServer))
	}

	return r
}

// fileCacheHandler wraps the proof file server with Cache-Control headers.
func fileCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=86400")
		next.ServeHTTP(w, r)
	})
}
