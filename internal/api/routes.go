package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// PixelMounter registers the open-tracking pixel route.
type PixelMounter interface {
	Mount(r chi.Router)
}

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// SetupRoutes configures the router: health, the tracking pixel and the
// command API under /api.
func SetupRoutes(h *Handlers, health *HealthChecker, pixel PixelMounter, origins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	if len(origins) == 0 {
		origins = defaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if health != nil {
		r.Get("/health", health.HandleHealth)
		r.Get("/health/live", health.HandleLiveness)
		r.Get("/health/ready", health.HandleReadiness)
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"healthy"}`))
		})
	}

	// The pixel stays outside /api and its request logging.
	if pixel != nil {
		pixel.Mount(r)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Logger)

		r.Route("/contacts", func(r chi.Router) {
			r.Get("/", h.ListContacts)
			r.Post("/", h.CreateContact)
			r.Get("/{id}", h.GetContact)
			r.Post("/{id}/discovery", h.RecordDiscovery)
			r.Post("/{id}/bounces", h.RecordContactBounce)
			r.Post("/{id}/score", h.UpdateScore)
			r.Post("/{id}/account-status", h.TransitionAccount)
			r.Post("/{id}/unsubscribe", h.Unsubscribe)
			r.Get("/{id}/followups", h.ListFollowUps)
			r.Post("/{id}/followups", h.ScheduleFollowUp)
		})

		r.Route("/bundles", func(r chi.Router) {
			r.Post("/", h.DraftBundle)
			r.Get("/", h.ListBundles)
			r.Post("/batch", h.DraftBatch)
			r.Get("/{id}", h.GetBundle)
			r.Get("/{id}/send-log", h.BundleSendLog)
			r.Post("/{id}/approve", h.ApproveBundle)
			r.Post("/{id}/cancel", h.CancelBundle)
			r.Post("/{id}/tracking-token", h.IssueTrackingToken)
			r.Post("/{id}/send-result", h.RecordSendResult)
			r.Post("/{id}/deliver", h.DeliverBundle)
			r.Post("/{id}/reply", h.RecordReply)
			r.Post("/{id}/bounce", h.RecordBundleBounce)
		})

		r.Post("/tracking/{tracking_id}/open", h.RecordOpen)

		r.Route("/followups", func(r chi.Router) {
			r.Get("/due", h.DueFollowUps)
			r.Post("/sweep", h.RunSweep)
		})

		r.Route("/signals", func(r chi.Router) {
			r.Get("/", h.ListSignals)
			r.Post("/", h.IngestSignal)
			r.Get("/{id}", h.GetSignal)
			r.Post("/{id}/review", h.ReviewSignal)
			r.Post("/{id}/promote", h.PromoteSignal)
			r.Post("/{id}/dismiss", h.DismissSignal)
		})

		r.Route("/stats", func(r chi.Router) {
			r.Get("/", h.StatsRange)
			r.Get("/{date}", h.GetStats)
			r.Post("/{date}/recompute", h.RecomputeStats)
		})
	})

	return r
}
