package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"auth-service/internal/keys"
	"auth-service/internal/metrics"
	"auth-service/internal/model"
	"auth-service/internal/repository"
)

func decodeUnverified(t *testing.T, raw string) (*jwt.Token, *accessClaims) {
	t.Helper()

	claims := &accessClaims{}
	token, _, err := jwt.NewParser().ParseUnverified(raw, claims)
	require.NoError(t, err)
	return token, claims
}

func TestAccessTokenLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("verify returns the same subject and role until expiry", func(t *testing.T) {
		t.Parallel()
		f := newTokenFixture(t, TokenConfig{Issuer: "auth-service"})

		for _, role := range []model.Role{model.RoleAdmin, model.RoleManager, model.RoleCustomer} {
			raw, err := f.tokens.GenerateAccessToken(model.Identity{Subject: "42", Role: role})
			require.NoError(t, err)
			require.Len(t, strings.Split(raw, "."), 3)

			identity, err := f.tokens.VerifyAccessToken(ctx, raw)
			require.NoError(t, err)
			require.Equal(t, "42", identity.Subject)
			require.Equal(t, role, identity.Role)
		}
	})

	t.Run("token expires after one hour", func(t *testing.T) {
		t.Parallel()
		f := newTokenFixture(t, TokenConfig{Issuer: "auth-service"})

		raw, err := f.tokens.GenerateAccessToken(model.Identity{Subject: "1", Role: model.RoleCustomer})
		require.NoError(t, err)

		f.clock.Advance(59 * time.Minute)
		_, err = f.tokens.VerifyAccessToken(ctx, raw)
		require.NoError(t, err)

		f.clock.Advance(2 * time.Minute)
		_, err = f.tokens.VerifyAccessToken(ctx, raw)
		require.ErrorIs(t, err, model.ErrUnauthenticated)
	})

	t.Run("claims and header carry the expected values", func(t *testing.T) {
		t.Parallel()
		f := newTokenFixture(t, TokenConfig{Issuer: "auth-service"})

		raw, err := f.tokens.GenerateAccessToken(model.Identity{Subject: "7", Role: model.RoleManager})
		require.NoError(t, err)

		token, claims := decodeUnverified(t, raw)
		require.Equal(t, "RS256", token.Method.Alg())
		require.Equal(t, "test-key", token.Header["kid"])
		require.Equal(t, "auth-service", claims.Issuer)
		require.Equal(t, "manager", claims.Role)
		require.Equal(t, f.clock.Now().Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
	})

	t.Run("tampered payload is rejected", func(t *testing.T) {
		t.Parallel()
		f := newTokenFixture(t, TokenConfig{})

		raw, err := f.tokens.GenerateAccessToken(model.Identity{Subject: "1", Role: model.RoleCustomer})
		require.NoError(t, err)

		forged, err := f.tokens.GenerateAccessToken(model.Identity{Subject: "1", Role: model.RoleAdmin})
		require.NoError(t, err)

		parts := strings.Split(raw, ".")
		forgedParts := strings.Split(forged, ".")
		_, err = f.tokens.VerifyAccessToken(ctx, parts[0]+"."+forgedParts[1]+"."+parts[2])
		require.ErrorIs(t, err, model.ErrUnauthenticated)
	})

	t.Run("refresh token is not accepted as access token", func(t *testing.T) {
		t.Parallel()
		f := newTokenFixture(t, TokenConfig{})

		raw, err := f.tokens.GenerateRefreshToken(model.Identity{Subject: "1", Role: model.RoleCustomer}, 1)
		require.NoError(t, err)

		_, err = f.tokens.VerifyAccessToken(ctx, raw)
		require.ErrorIs(t, err, model.ErrUnauthenticated)
	})

	t.Run("garbage is unauthenticated", func(t *testing.T) {
		t.Parallel()
		f := newTokenFixture(t, TokenConfig{})

		_, err := f.tokens.VerifyAccessToken(ctx, "not.a.token")
		require.ErrorIs(t, err, model.ErrUnauthenticated)
	})

	t.Run("issuer is enforced when configured", func(t *testing.T) {
		t.Parallel()
		provider := newKeyProvider(t, fullKeyConfig(t))
		store := repository.NewMemoryRefreshTokenRepository()

		other := NewTokenService(provider, store, TokenConfig{Issuer: "other-service"})
		strict := NewTokenService(provider, store, TokenConfig{Issuer: "auth-service", EnforceIssuer: true})
		lenient := NewTokenService(provider, store, TokenConfig{Issuer: "auth-service"})

		raw, err := other.GenerateAccessToken(model.Identity{Subject: "1", Role: model.RoleAdmin})
		require.NoError(t, err)

		_, err = strict.VerifyAccessToken(ctx, raw)
		require.ErrorIs(t, err, model.ErrUnauthenticated)

		_, err = lenient.VerifyAccessToken(ctx, raw)
		require.NoError(t, err)
	})

	t.Run("unknown role claim is unauthenticated", func(t *testing.T) {
		t.Parallel()
		f := newTokenFixture(t, TokenConfig{})

		raw, err := f.tokens.GenerateAccessToken(model.Identity{Subject: "1", Role: model.Role("superuser")})
		require.NoError(t, err)

		_, err = f.tokens.VerifyAccessToken(ctx, raw)
		require.ErrorIs(t, err, model.ErrUnauthenticated)
	})

	t.Run("role claim must match exactly", func(t *testing.T) {
		t.Parallel()
		f := newTokenFixture(t, TokenConfig{})

		for _, claim := range []string{"ADMIN", " admin", "Admin"} {
			raw, err := f.tokens.GenerateAccessToken(model.Identity{Subject: "1", Role: model.Role(claim)})
			require.NoError(t, err)

			identity, err := f.tokens.VerifyAccessToken(ctx, raw)
			require.ErrorIs(t, err, model.ErrUnauthenticated, "claim %q", claim)
			require.Nil(t, identity)
		}
	})
}

func TestRefreshTokenLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("jti equals the persisted record id", func(t *testing.T) {
		t.Parallel()
		f := newTokenFixture(t, TokenConfig{Issuer: "auth-service"})

		for i := 0; i < 3; i++ {
			pair, err := f.tokens.IssuePair(ctx, 5, model.RoleCustomer)
			require.NoError(t, err)

			token, claims := decodeUnverified(t, pair.RefreshToken)
			require.Equal(t, "HS256", token.Method.Alg())
			require.Equal(t, strconv.FormatInt(pair.RecordID, 10), claims.ID)

			record, err := f.store.FindByID(ctx, pair.RecordID)
			require.NoError(t, err)
			require.Equal(t, int64(5), record.UserID)
			require.Equal(t, f.clock.Now().Add(DefaultRefreshTTL).Unix(), record.ExpiresAt.Unix())
			require.Equal(t, record.ExpiresAt.Unix(), claims.ExpiresAt.Unix())
		}
	})

	t.Run("verify resolves the session", func(t *testing.T) {
		t.Parallel()
		f := newTokenFixture(t, TokenConfig{})

		pair, err := f.tokens.IssuePair(ctx, 9, model.RoleManager)
		require.NoError(t, err)

		session, err := f.tokens.VerifyRefreshToken(ctx, pair.RefreshToken)
		require.NoError(t, err)
		require.Equal(t, int64(9), session.UserID)
		require.Equal(t, pair.RecordID, session.Record.ID)
		require.Equal(t, model.RoleManager, session.Identity.Role)
	})

	t.Run("deleting twice reports not found", func(t *testing.T) {
		t.Parallel()
		f := newTokenFixture(t, TokenConfig{})

		record, err := f.tokens.PersistRefreshToken(ctx, 1)
		require.NoError(t, err)

		require.NoError(t, f.tokens.DeleteRefreshToken(ctx, record.ID))
		require.ErrorIs(t, f.tokens.DeleteRefreshToken(ctx, record.ID), model.ErrRefreshTokenNotFound)

		_, err = f.store.FindByID(ctx, record.ID)
		require.ErrorIs(t, err, model.ErrRefreshTokenNotFound)
	})

	t.Run("revoked record invalidates the token", func(t *testing.T) {
		t.Parallel()
		f := newTokenFixture(t, TokenConfig{})

		pair, err := f.tokens.IssuePair(ctx, 1, model.RoleCustomer)
		require.NoError(t, err)
		require.NoError(t, f.tokens.DeleteRefreshToken(ctx, pair.RecordID))

		_, err = f.tokens.VerifyRefreshToken(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, model.ErrUnauthenticated)
		require.ErrorIs(t, err, model.ErrRefreshTokenNotFound)
	})

	t.Run("access token is not accepted as refresh token", func(t *testing.T) {
		t.Parallel()
		f := newTokenFixture(t, TokenConfig{})

		pair, err := f.tokens.IssuePair(ctx, 1, model.RoleCustomer)
		require.NoError(t, err)

		_, err = f.tokens.VerifyRefreshToken(ctx, pair.AccessToken)
		require.ErrorIs(t, err, model.ErrUnauthenticated)
	})

	t.Run("record owned by another user is rejected", func(t *testing.T) {
		t.Parallel()
		f := newTokenFixture(t, TokenConfig{})

		record, err := f.tokens.PersistRefreshToken(ctx, 2)
		require.NoError(t, err)
		raw, err := f.tokens.GenerateRefreshToken(model.Identity{Subject: "1", Role: model.RoleCustomer}, record.ID)
		require.NoError(t, err)

		_, err = f.tokens.VerifyRefreshToken(ctx, raw)
		require.ErrorIs(t, err, model.ErrUnauthenticated)
	})

	t.Run("revoke all and cleanup remove records", func(t *testing.T) {
		t.Parallel()
		m := metrics.New()
		f := newTokenFixture(t, TokenConfig{}, WithMetrics(m))

		for i := 0; i < 3; i++ {
			_, err := f.tokens.IssuePair(ctx, 3, model.RoleCustomer)
			require.NoError(t, err)
		}

		n, err := f.tokens.RevokeAllForUser(ctx, 3)
		require.NoError(t, err)
		require.Equal(t, int64(3), n)
		require.Zero(t, f.store.Len())
		require.Equal(t, float64(3), testutil.ToFloat64(m.RefreshRevocations))
		require.Equal(t, float64(3), testutil.ToFloat64(m.TokensIssued.WithLabelValues("refresh")))
	})
}

func TestTokenServiceConfiguration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("missing private key is a configuration error", func(t *testing.T) {
		t.Parallel()
		store := repository.NewMemoryRefreshTokenRepository()
		tokens := NewTokenService(newKeyProvider(t, keys.Config{RefreshSecret: testRefreshSecret}), store, TokenConfig{})

		_, err := tokens.GenerateAccessToken(model.Identity{Subject: "1", Role: model.RoleAdmin})
		require.ErrorIs(t, err, model.ErrConfiguration)

		_, err = tokens.IssuePair(ctx, 1, model.RoleAdmin)
		require.ErrorIs(t, err, model.ErrConfiguration)
		require.Zero(t, store.Len())
	})

	t.Run("missing refresh secret is a configuration error and leaves no record", func(t *testing.T) {
		t.Parallel()
		store := repository.NewMemoryRefreshTokenRepository()
		tokens := NewTokenService(newKeyProvider(t, keys.Config{PrivateKeyPEM: privateKeyPEM(t)}), store, TokenConfig{})

		_, err := tokens.GenerateRefreshToken(model.Identity{Subject: "1", Role: model.RoleAdmin}, 1)
		require.ErrorIs(t, err, model.ErrConfiguration)

		_, err = tokens.IssuePair(ctx, 1, model.RoleAdmin)
		require.ErrorIs(t, err, model.ErrConfiguration)
		require.Zero(t, store.Len())

		_, err = tokens.VerifyRefreshToken(ctx, "anything")
		require.ErrorIs(t, err, model.ErrConfiguration)
	})

	t.Run("zero ttls fall back to defaults", func(t *testing.T) {
		t.Parallel()
		tokens := NewTokenService(nil, nil, TokenConfig{})
		require.Equal(t, time.Hour, tokens.AccessTTL())
		require.Equal(t, 365*24*time.Hour, tokens.RefreshTTL())
	})
}

func TestVerifyAccessTokenWithRemoteKeySet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	signer := newKeyProvider(t, fullKeyConfig(t))
	store := repository.NewMemoryRefreshTokenRepository()
	issuer := NewTokenService(signer, store, TokenConfig{Issuer: "auth-service"})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(signer.PublicJWKS())
	}))
	t.Cleanup(server.Close)

	m := metrics.New()
	verifierKeys, err := keys.NewProvider(keys.Config{
		JWKSURL:       server.URL,
		JWKSCacheTTL:  time.Minute,
		JWKSRateLimit: 60,
	}, keys.WithKeyFetchObserver(m.KeyFetched))
	require.NoError(t, err)
	verifier := NewTokenService(verifierKeys, store, TokenConfig{Issuer: "auth-service", EnforceIssuer: true}, WithMetrics(m))

	raw, err := issuer.GenerateAccessToken(model.Identity{Subject: "11", Role: model.RoleAdmin})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		identity, err := verifier.VerifyAccessToken(ctx, raw)
		require.NoError(t, err)
		require.Equal(t, "11", identity.Subject)
	}
	require.Equal(t, float64(1), testutil.ToFloat64(m.KeyFetches.WithLabelValues("success")))
	require.Equal(t, float64(3), testutil.ToFloat64(m.TokenVerifications.WithLabelValues("access", "valid")))

	t.Run("unknown kid is unauthenticated", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, accessClaims{
			Role: "admin",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "11",
				Issuer:    "auth-service",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		token.Header["kid"] = "rotated-away"
		forged, err := token.SignedString(signingKey(t))
		require.NoError(t, err)

		_, err = verifier.VerifyAccessToken(ctx, forged)
		require.ErrorIs(t, err, model.ErrUnauthenticated)
	})
}

func TestStartCleanupTicker(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newTokenFixture(t, TokenConfig{RefreshTTL: time.Minute})
	_, err := f.tokens.PersistRefreshToken(ctx, 1)
	require.NoError(t, err)
	f.clock.Advance(2 * time.Minute)

	cleaned := make(chan int64, 1)
	go f.tokens.StartCleanupTicker(ctx, 10*time.Millisecond, func(n int64) {
		select {
		case cleaned <- n:
		default:
		}
	})

	select {
	case n := <-cleaned:
		require.Equal(t, int64(1), n)
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup did not run")
	}
	require.Zero(t, f.store.Len())
}
