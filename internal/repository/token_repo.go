package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"auth-service/internal/model"
)

// RefreshTokenRepository persists refresh token records. The token string
// itself is never stored; the record id travels inside the token as its jti.
type RefreshTokenRepository struct {
	pool *pgxpool.Pool
}

func NewRefreshTokenRepository(pool *pgxpool.Pool) *RefreshTokenRepository {
	return &RefreshTokenRepository{pool: pool}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, userID int64, expiresAt time.Time) (model.RefreshTokenRecord, error) {
	record := model.RefreshTokenRecord{UserID: userID, ExpiresAt: expiresAt.UTC()}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO refresh_tokens (user_id, expires_at)
		 VALUES ($1, $2)
		 RETURNING id, created_at, updated_at`,
		userID, record.ExpiresAt).Scan(&record.ID, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return model.RefreshTokenRecord{}, fmt.Errorf("store refresh token: %w", err)
	}
	return record, nil
}

func (r *RefreshTokenRepository) FindByID(ctx context.Context, id int64) (model.RefreshTokenRecord, error) {
	var record model.RefreshTokenRecord
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, expires_at, created_at, updated_at
		 FROM refresh_tokens WHERE id = $1`, id).
		Scan(&record.ID, &record.UserID, &record.ExpiresAt, &record.CreatedAt, &record.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.RefreshTokenRecord{}, model.ErrRefreshTokenNotFound
	}
	if err != nil {
		return model.RefreshTokenRecord{}, fmt.Errorf("find refresh token: %w", err)
	}
	return record, nil
}

func (r *RefreshTokenRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrRefreshTokenNotFound
	}
	return nil
}

func (r *RefreshTokenRepository) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke all refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("clean expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
