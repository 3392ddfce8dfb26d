package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auth-service/internal/config"
	"auth-service/internal/event"
	"auth-service/internal/handler"
	"auth-service/internal/keys"
	"auth-service/internal/metrics"
	"auth-service/internal/middleware"
	"auth-service/internal/router"
	"auth-service/internal/service"
)

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

func New(cfg *config.Config) (*App, error) {
	m := metrics.New()

	provider, err := keys.NewProvider(cfg.KeysConfig(), keys.WithKeyFetchObserver(m.KeyFetched))
	if err != nil {
		return nil, fmt.Errorf("failed to load key material: %w", err)
	}
	if _, _, err := provider.SigningKey(); err != nil {
		slog.Warn("no signing key configured; login and register will fail", "error", err)
	}
	if _, err := provider.RefreshSecret(); err != nil {
		slog.Warn("no refresh secret configured; refresh tokens cannot be issued", "error", err)
	}

	st, err := openStores(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	bus := event.NewBus()
	hasher := service.NewBcryptHasher(cfg.BcryptCost)
	tokenService := service.NewTokenService(provider, st.tokens, service.TokenConfig{
		Issuer:        cfg.Issuer,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		EnforceIssuer: cfg.EnforceIssuer,
	}, service.WithMetrics(m))

	authService := service.NewAuthService(st.users, tokenService, hasher, bus)
	userService := service.NewUserService(st.users, st.tenants, tokenService, hasher, bus)
	tenantService := service.NewTenantService(st.tenants, bus)

	appRouter := router.New(cfg, middleware.NewAuthMiddleware(tokenService), router.Handlers{
		Auth: handler.NewAuthHandler(authService, handler.CookieConfig{
			Domain:     cfg.CookieDomain,
			Secure:     cfg.CookieSecure,
			AccessTTL:  tokenService.AccessTTL(),
			RefreshTTL: tokenService.RefreshTTL(),
		}),
		User:   handler.NewUserHandler(userService),
		Tenant: handler.NewTenantHandler(tenantService),
		JWKS:   handler.NewJWKSHandler(provider),
		Health: handler.NewHealthHandler(st.health),
	}, m)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	go event.RunAuditLog(bgCtx, bus, slog.Default().With("component", "audit"))
	go tokenService.StartCleanupTicker(bgCtx, cfg.CleanupInterval, func(n int64) {
		bus.Publish(event.Event{Type: event.TypeTokensCleanedUp, Detail: map[string]any{"removed": n}})
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server:       server,
		cleanupFuncs: []func(){bgCancel, st.close},
	}, nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}
