package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pharmaflow/pharmacy-assistant/internal/chat"
	"github.com/pharmaflow/pharmacy-assistant/internal/http/handlers"
	httpmiddleware "github.com/pharmaflow/pharmacy-assistant/internal/http/middleware"
	"github.com/pharmaflow/pharmacy-assistant/internal/prescriptions"
	"github.com/pharmaflow/pharmacy-assistant/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger               *logging.Logger
	ChatHandler          *chat.Handler
	PrescriptionsHandler *prescriptions.Handler
	AdminCatalog         *handlers.AdminCatalogHandler
	AdminRefill          *handlers.AdminRefillHandler
	AdminAuthSecret      string
	MetricsHandler       http.Handler
	CORSAllowedOrigins   []string

	// Chat rate limit, requests/sec per IP (0 disables limiting)
	ChatRateLimit float64
	ChatRateBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}

		if cfg.ChatHandler != nil {
			public.Route("/chat", func(r chi.Router) {
				if cfg.ChatRateLimit > 0 {
					r.Use(httpmiddleware.RateLimit(cfg.ChatRateLimit, cfg.ChatRateBurst))
				}
				r.Post("/", cfg.ChatHandler.Turn)
				r.Get("/history/{patientID}", cfg.ChatHandler.History)
				r.Get("/jobs/{jobID}", cfg.ChatHandler.JobStatus)
			})
		}

		if cfg.PrescriptionsHandler != nil {
			public.Route("/prescriptions/{patientID}", func(r chi.Router) {
				r.Post("/", cfg.PrescriptionsHandler.Upload)
				r.Get("/", cfg.PrescriptionsHandler.List)
			})
		}
	})

	// Admin routes (protected by HMAC JWT)
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if cfg.AdminCatalog != nil {
				admin.Get("/catalog", cfg.AdminCatalog.ListMedicines)
				admin.Get("/catalog/low-stock", cfg.AdminCatalog.LowStock)
				admin.Post("/catalog/restock", cfg.AdminCatalog.Restock)
				admin.Post("/catalog/import", cfg.AdminCatalog.Import)
			}
			if cfg.AdminRefill != nil {
				admin.Post("/refills/scan", cfg.AdminRefill.Scan)
			}
			if cfg.PrescriptionsHandler != nil {
				admin.Post("/prescriptions/{id}/approve", cfg.PrescriptionsHandler.Approve)
			}
		})
	}

	return r
}
