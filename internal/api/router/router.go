package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/portfolio-bff/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/portfolio-bff/internal/http/middleware"
	"github.com/wolfman30/portfolio-bff/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	AdminAppointments  *handlers.AdminAppointmentsHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	// RequestTimeout bounds admin handlers; zero uses 15s.
	RequestTimeout time.Duration
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	if cfg.AdminAppointments != nil {
		r.Route("/admin/appointments", func(admin chi.Router) {
			admin.Use(middleware.Timeout(timeout))
			admin.Use(httpmiddleware.StaffJWT(cfg.AdminAuthSecret))
			admin.Get("/", cfg.AdminAppointments.ListAppointments)
			admin.Get("/consumer-status", cfg.AdminAppointments.ConsumerStatus)
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
