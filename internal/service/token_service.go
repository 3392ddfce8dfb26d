package service

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"auth-service/internal/metrics"
	"auth-service/internal/model"
)

const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 365 * 24 * time.Hour
)

type keySource interface {
	SigningKey() (*rsa.PrivateKey, string, error)
	VerificationKey(ctx context.Context, keyID string) (*rsa.PublicKey, error)
	RefreshSecret() ([]byte, error)
}

type refreshTokenStore interface {
	Create(ctx context.Context, userID int64, expiresAt time.Time) (model.RefreshTokenRecord, error)
	FindByID(ctx context.Context, id int64) (model.RefreshTokenRecord, error)
	Delete(ctx context.Context, id int64) error
	DeleteAllForUser(ctx context.Context, userID int64) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type TokenConfig struct {
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	EnforceIssuer bool
}

type accessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RefreshSession is a verified refresh token whose record still exists.
type RefreshSession struct {
	Identity model.Identity
	UserID   int64
	Record   model.RefreshTokenRecord
}

type TokenService struct {
	keys    keySource
	store   refreshTokenStore
	cfg     TokenConfig
	metrics *metrics.Metrics
	now     func() time.Time
}

type TokenOption func(*TokenService)

func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

func WithMetrics(m *metrics.Metrics) TokenOption {
	return func(s *TokenService) {
		s.metrics = m
	}
}

func NewTokenService(keys keySource, store refreshTokenStore, cfg TokenConfig, opts ...TokenOption) *TokenService {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}

	s := &TokenService{
		keys:  keys,
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *TokenService) AccessTTL() time.Duration  { return s.cfg.AccessTTL }
func (s *TokenService) RefreshTTL() time.Duration { return s.cfg.RefreshTTL }

// GenerateAccessToken signs an RS256 token for identity valid for AccessTTL.
func (s *TokenService) GenerateAccessToken(identity model.Identity) (string, error) {
	key, keyID, err := s.keys.SigningKey()
	if err != nil {
		return "", err
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, accessClaims{
		Role: identity.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Subject,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
		},
	})
	if keyID != "" {
		token.Header["kid"] = keyID
	}

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	s.metrics.TokenIssued("access")
	return signed, nil
}

// GenerateRefreshToken signs an HS256 token valid for RefreshTTL whose jti is
// recordID. The record must already be persisted.
func (s *TokenService) GenerateRefreshToken(identity model.Identity, recordID int64) (string, error) {
	secret, err := s.keys.RefreshSecret()
	if err != nil {
		return "", err
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		Role: identity.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Subject,
			Issuer:    s.cfg.Issuer,
			ID:        strconv.FormatInt(recordID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.RefreshTTL)),
		},
	})

	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}

	s.metrics.TokenIssued("refresh")
	return signed, nil
}

func (s *TokenService) PersistRefreshToken(ctx context.Context, userID int64) (model.RefreshTokenRecord, error) {
	record, err := s.store.Create(ctx, userID, s.now().Add(s.cfg.RefreshTTL))
	if err != nil {
		return model.RefreshTokenRecord{}, fmt.Errorf("persist refresh token: %w", err)
	}
	return record, nil
}

// DeleteRefreshToken returns model.ErrRefreshTokenNotFound when the record is already gone.
func (s *TokenService) DeleteRefreshToken(ctx context.Context, recordID int64) error {
	if err := s.store.Delete(ctx, recordID); err != nil {
		return err
	}
	s.metrics.RefreshRevoked(1)
	return nil
}

func (s *TokenService) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	n, err := s.store.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens for user %d: %w", userID, err)
	}
	s.metrics.RefreshRevoked(int(n))
	return n, nil
}

// IssuePair mints an access token, persists a refresh record and embeds its id
// in the refresh token. If the refresh token cannot be signed the record is removed.
func (s *TokenService) IssuePair(ctx context.Context, userID int64, role model.Role) (model.TokenPair, error) {
	identity := model.Identity{Subject: strconv.FormatInt(userID, 10), Role: role}

	accessToken, err := s.GenerateAccessToken(identity)
	if err != nil {
		return model.TokenPair{}, err
	}

	record, err := s.PersistRefreshToken(ctx, userID)
	if err != nil {
		return model.TokenPair{}, err
	}

	refreshToken, err := s.GenerateRefreshToken(identity, record.ID)
	if err != nil {
		if delErr := s.store.Delete(ctx, record.ID); delErr != nil {
			slog.Warn("failed to remove orphaned refresh record", "record_id", record.ID, "error", delErr)
		}
		return model.TokenPair{}, err
	}

	return model.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken, RecordID: record.ID}, nil
}

// VerifyAccessToken checks the RS256 signature against the key named by the
// token's kid, then expiry and (when enforced) issuer. The refresh store is not consulted.
func (s *TokenService) VerifyAccessToken(ctx context.Context, raw string) (*model.Identity, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		keyID, _ := token.Header["kid"].(string)
		key, err := s.keys.VerificationKey(ctx, keyID)
		if err != nil {
			return nil, err
		}
		return key, nil
	}, s.parserOptions(jwt.SigningMethodRS256.Alg())...)

	identity, err := s.identityFrom(claims, err)
	s.metrics.TokenVerified("access", err)
	return identity, err
}

// VerifyRefreshToken checks the HS256 signature and claims, then requires the
// jti record to still exist, belong to the subject and not be expired.
func (s *TokenService) VerifyRefreshToken(ctx context.Context, raw string) (RefreshSession, error) {
	session, err := s.verifyRefresh(ctx, raw)
	s.metrics.TokenVerified("refresh", err)
	return session, err
}

func (s *TokenService) verifyRefresh(ctx context.Context, raw string) (RefreshSession, error) {
	secret, err := s.keys.RefreshSecret()
	if err != nil {
		return RefreshSession{}, err
	}

	claims := &accessClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, s.parserOptions(jwt.SigningMethodHS256.Alg())...)

	identity, err := s.identityFrom(claims, err)
	if err != nil {
		return RefreshSession{}, err
	}

	userID, err := strconv.ParseInt(identity.Subject, 10, 64)
	if err != nil {
		return RefreshSession{}, fmt.Errorf("%w: non-numeric subject", model.ErrUnauthenticated)
	}
	recordID, err := strconv.ParseInt(claims.ID, 10, 64)
	if err != nil {
		return RefreshSession{}, fmt.Errorf("%w: missing or invalid token id", model.ErrUnauthenticated)
	}

	record, err := s.store.FindByID(ctx, recordID)
	if errors.Is(err, model.ErrRefreshTokenNotFound) {
		return RefreshSession{}, fmt.Errorf("%w: %w", model.ErrUnauthenticated, err)
	}
	if err != nil {
		return RefreshSession{}, fmt.Errorf("load refresh record: %w", err)
	}
	if record.UserID != userID {
		return RefreshSession{}, fmt.Errorf("%w: refresh record owner mismatch", model.ErrUnauthenticated)
	}
	if !record.ExpiresAt.After(s.now()) {
		return RefreshSession{}, fmt.Errorf("%w: refresh record expired", model.ErrUnauthenticated)
	}

	return RefreshSession{Identity: *identity, UserID: userID, Record: record}, nil
}

// StartCleanupTicker purges expired refresh records every interval until ctx is done.
func (s *TokenService) StartCleanupTicker(ctx context.Context, interval time.Duration, onCleaned func(int64)) {
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.store.DeleteExpired(ctx, s.now())
			if err != nil {
				slog.Error("refresh token cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("expired refresh tokens removed", "count", n)
				if onCleaned != nil {
					onCleaned(n)
				}
			}
		}
	}
}

func (s *TokenService) parserOptions(alg string) []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{alg}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.EnforceIssuer && s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	return opts
}

func (s *TokenService) identityFrom(claims *accessClaims, parseErr error) (*model.Identity, error) {
	if parseErr != nil {
		if errors.Is(parseErr, model.ErrConfiguration) {
			return nil, parseErr
		}
		return nil, fmt.Errorf("%w: %v", model.ErrUnauthenticated, parseErr)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", model.ErrUnauthenticated)
	}

	role, err := model.RoleFromClaim(claims.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrUnauthenticated, err)
	}

	return &model.Identity{Subject: claims.Subject, Role: role}, nil
}
