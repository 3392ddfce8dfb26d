package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"auth-service/internal/config"
	"auth-service/internal/handler"
	"auth-service/internal/metrics"
	"auth-service/internal/middleware"
	"auth-service/internal/model"
)

type Handlers struct {
	Auth   *handler.AuthHandler
	User   *handler.UserHandler
	Tenant *handler.TenantHandler
	JWKS   *handler.JWKSHandler
	Health *handler.HealthHandler
}

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, h Handlers, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Metrics(m))
	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)

	r.Get("/health", h.Health.Serve)
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}
	r.Get("/.well-known/jwks.json", h.JWKS.Serve)

	r.Group(func(api chi.Router) {
		api.Use(rateLimitMiddleware.Handler)
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/register", h.Auth.Register)
			auth.Post("/login", h.Auth.Login)
			auth.Post("/refresh", h.Auth.Refresh)
			auth.With(authMiddleware.RequireAuth).Get("/self", h.Auth.Self)
			auth.With(authMiddleware.RequireAuth).Post("/logout", h.Auth.Logout)
		})

		adminOnly := []func(http.Handler) http.Handler{
			authMiddleware.RequireAuth,
			authMiddleware.RequireRoles(model.RoleAdmin),
		}

		api.Route("/users", func(users chi.Router) {
			users.Use(adminOnly...)
			users.Post("/", h.User.Create)
			users.Get("/", h.User.List)
			users.Get("/{id}", h.User.Get)
			users.Patch("/{id}", h.User.Update)
			users.Delete("/{id}", h.User.Delete)
		})

		api.Route("/tenants", func(tenants chi.Router) {
			tenants.Use(adminOnly...)
			tenants.Post("/", h.Tenant.Create)
			tenants.Get("/", h.Tenant.List)
			tenants.Get("/{id}", h.Tenant.Get)
			tenants.Patch("/{id}", h.Tenant.Update)
			tenants.Delete("/{id}", h.Tenant.Delete)
		})
	})

	return r
}
