package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"auth-service/internal/config"
	"auth-service/internal/database"
	"auth-service/internal/handler"
	"auth-service/internal/model"
	"auth-service/internal/repository"
)

type userRepo interface {
	Create(ctx context.Context, u model.User) (model.User, error)
	FindByID(ctx context.Context, id int64) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	Update(ctx context.Context, u model.User) (model.User, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]model.User, error)
}

type tokenRepo interface {
	Create(ctx context.Context, userID int64, expiresAt time.Time) (model.RefreshTokenRecord, error)
	FindByID(ctx context.Context, id int64) (model.RefreshTokenRecord, error)
	Delete(ctx context.Context, id int64) error
	DeleteAllForUser(ctx context.Context, userID int64) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type tenantRepo interface {
	Create(ctx context.Context, t model.Tenant) (model.Tenant, error)
	FindByID(ctx context.Context, id int64) (model.Tenant, error)
	Update(ctx context.Context, t model.Tenant) (model.Tenant, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]model.Tenant, error)
}

type stores struct {
	users   userRepo
	tokens  tokenRepo
	tenants tenantRepo
	health  handler.HealthCheck
	close   func()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		slog.Warn("using in-memory store; data is lost on restart")
		return &stores{
			users:   repository.NewMemoryUserRepository(),
			tokens:  repository.NewMemoryRefreshTokenRepository(),
			tenants: repository.NewMemoryTenantRepository(),
			close:   func() {},
		}, nil
	}

	slog.Info("connecting to PostgreSQL")
	db, err := database.Open(ctx, database.Options{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: cfg.Issuer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	slog.Info("database ready")

	return &stores{
		users:   repository.NewUserRepository(db.Pool),
		tokens:  repository.NewRefreshTokenRepository(db.Pool),
		tenants: repository.NewTenantRepository(db.Pool),
		health:  db.Health,
		close:   db.Close,
	}, nil
}
