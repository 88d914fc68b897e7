package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
	mW "github.com/wondr/rembg/internal/middleware"
	"github.com/wondr/rembg/internal/services"
	"go.uber.org/zap"
)

// HealthCheck is one named dependency probe for /health
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type RouterConfig struct {
	Removal        *RemovalHandler
	Verifier       services.IdentityVerifier
	AllowedOrigins []string
	RequestTimeout time.Duration
	Metrics        http.Handler
	HealthChecks   []HealthCheck
	Log            *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mW.SecurityHeaders)
	r.Use(mW.AccessLog(log))
	r.Use(chimw.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         86400,
	}))

	r.Get("/health", healthHandler(cfg.HealthChecks))
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	r.Get("/", cfg.Removal.Root)
	r.Post("/", cfg.Removal.RemoveBackground)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/remove-background", cfg.Removal.RemoveBackground)

		r.Group(func(r chi.Router) {
			r.Use(mW.BearerAuth(cfg.Verifier))
			r.Get("/credits", cfg.Removal.Credits)
		})
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		services.SendErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed, nil)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		services.SendErrorResponse(w, "Not found", http.StatusNotFound, nil)
	})

	return r
}

func healthHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "healthy"}
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[c.Name] = err.Error()
				continue
			}
			body[c.Name] = "ok"
		}
		writeJSON(w, status, body)
	}
}
