package service

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"auth-service/internal/keys"
	"auth-service/internal/repository"
)

const testRefreshSecret = "refresh-secret-for-tests"

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
	testKeyErr  error
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()

	testKeyOnce.Do(func() {
		testKey, testKeyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	require.NoError(t, testKeyErr)
	return testKey
}

func privateKeyPEM(t *testing.T) string {
	t.Helper()

	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(signingKey(t))}
	return string(pem.EncodeToMemory(block))
}

func newKeyProvider(t *testing.T, cfg keys.Config) *keys.Provider {
	t.Helper()

	provider, err := keys.NewProvider(cfg)
	require.NoError(t, err)
	return provider
}

func fullKeyConfig(t *testing.T) keys.Config {
	t.Helper()

	return keys.Config{
		PrivateKeyPEM: privateKeyPEM(t),
		KeyID:         "test-key",
		RefreshSecret: testRefreshSecret,
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type tokenFixture struct {
	tokens *TokenService
	store  *repository.MemoryRefreshTokenRepository
	clock  *fakeClock
}

func newTokenFixture(t *testing.T, cfg TokenConfig, opts ...TokenOption) tokenFixture {
	t.Helper()

	store := repository.NewMemoryRefreshTokenRepository()
	clock := newFakeClock()
	opts = append([]TokenOption{WithClock(clock.Now)}, opts...)

	return tokenFixture{
		tokens: NewTokenService(newKeyProvider(t, fullKeyConfig(t)), store, cfg, opts...),
		store:  store,
		clock:  clock,
	}
}

func fastHasher() *BcryptHasher {
	return NewBcryptHasher(bcrypt.MinCost)
}
