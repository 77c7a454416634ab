package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nexura/nexura-api/internal/api/handlers"
	"github.com/nexura/nexura-api/internal/api/middleware"
	"github.com/nexura/nexura-api/internal/auth"
	"github.com/nexura/nexura-api/internal/database/models"
	"github.com/nexura/nexura-api/internal/metrics"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
	limiters []*middleware.RateLimiter
}

type RouterConfig struct {
	DB             *gorm.DB
	Redis          redis.UniversalClient
	Logger         *slog.Logger
	AuthService    *auth.Service
	Metrics        *metrics.Metrics
	Cookie         handlers.CookieConfig
	AllowedOrigins []string // CORS allowed origins
	RateLimitReqs  int      // Rate limit requests per window
	RateLimitSecs  int      // Rate limit window in seconds
	TrustProxy     bool     // Take the client IP from X-Forwarded-For / X-Real-IP
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()
	router := &Router{Router: r}

	// Global middleware
	r.Use(chimw.RequestID)
	if cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Instrument)
	}

	// CORS - credentials are required for the refresh cookie, so origins
	// must be listed explicitly
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Auth-Token"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	for _, kind := range []models.OrgKind{models.OrgKindHub, models.OrgKindProject} {
		authHandler := handlers.NewAuthHandler(cfg.AuthService, kind, cfg.Cookie, cfg.Logger)
		r.Route("/"+string(kind), func(r chi.Router) {
			router.mountAccountRoutes(r, cfg, kind, authHandler)
		})
	}

	return router
}

// Close stops the rate limiters' cleanup goroutines.
func (rt *Router) Close() {
	for _, rl := range rt.limiters {
		rl.Stop()
	}
}

func (rt *Router) newRateLimiter(cfg RouterConfig) *middleware.RateLimiter {
	rl := middleware.NewRateLimiter(cfg.RateLimitReqs, cfg.RateLimitSecs)
	rt.limiters = append(rt.limiters, rl)
	return rl
}

// mountAccountRoutes registers the routes shared by hubs and projects.
func (rt *Router) mountAccountRoutes(r chi.Router, cfg RouterConfig, kind models.OrgKind, h *handlers.AuthHandler) {
	// Public endpoints, rate limited per client IP
	r.Group(func(r chi.Router) {
		if cfg.RateLimitReqs > 0 {
			r.Use(rt.newRateLimiter(cfg).ByClientIP())
		}

		r.Post("/sign-up", h.SignUp)
		r.Post("/sign-in", h.SignIn)
		r.Post("/admin/sign-up", h.AdminSignUp)
		r.Post("/forgot-password", h.ForgotPassword)
		r.Post("/reset-password", h.ResetPassword)
		r.Post("/refresh", h.Refresh)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.AuthService))
		r.Use(middleware.RequireKind(kind))
		if cfg.RateLimitReqs > 0 {
			r.Use(rt.newRateLimiter(cfg).ByAccount())
		}

		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
		r.With(middleware.RequireOwner).Post("/admin/invite", h.InviteAdmin)
	})
}
