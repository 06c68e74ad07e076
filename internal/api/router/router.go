package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/medirobot/internal/consult"
	httpmiddleware "github.com/wolfman30/medirobot/internal/http/middleware"
	"github.com/wolfman30/medirobot/internal/reminders"
	"github.com/wolfman30/medirobot/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	ConsultHandler     *consult.Handler
	RemindersHandler   *reminders.Handler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	// RateLimiter guards POST /create-meeting when set.
	RateLimiter *httpmiddleware.RateLimiter
	// StaticDir is served at / when set.
	StaticDir string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if h := cfg.ConsultHandler; h != nil {
		if cfg.RateLimiter != nil {
			r.With(cfg.RateLimiter.Middleware).Post("/create-meeting", h.CreateMeeting)
		} else {
			r.Post("/create-meeting", h.CreateMeeting)
		}
		r.Get("/start-call", h.StartCall)
		r.Get("/join-call", h.JoinCall)
	}

	// Admin routes exist only when a signing secret is configured.
	if cfg.AdminAuthSecret != "" && cfg.RemindersHandler != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			cfg.RemindersHandler.RegisterRoutes(admin)
		})
	}

	if cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
