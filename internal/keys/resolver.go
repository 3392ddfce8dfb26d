package keys

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"auth-service/internal/model"
)

// KeyResolver returns the RSA verification key for a key id. An empty key id
// means the token carried no "kid" header.
type KeyResolver interface {
	Resolve(ctx context.Context, keyID string) (*rsa.PublicKey, error)
}

// StaticResolver serves one configured key. When keyID is set, tokens naming a
// different kid are rejected.
type StaticResolver struct {
	key   *rsa.PublicKey
	keyID string
}

func NewStaticResolver(key *rsa.PublicKey, keyID string) *StaticResolver {
	return &StaticResolver{key: key, keyID: keyID}
}

func (r *StaticResolver) Resolve(_ context.Context, keyID string) (*rsa.PublicKey, error) {
	if r.key == nil {
		return nil, fmt.Errorf("%w: no verification key configured", model.ErrConfiguration)
	}
	if keyID != "" && r.keyID != "" && keyID != r.keyID {
		return nil, fmt.Errorf("%w: kid %q", model.ErrKeyNotFound, keyID)
	}
	return r.key, nil
}

// JWKSResolver fetches the key set from a remote endpoint on every call.
// Concurrent fetches share one request and fetches are rate limited; wrap it in
// a CachingResolver to avoid a round-trip per token.
type JWKSResolver struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	group   singleflight.Group
	observe func(outcome string)
}

type JWKSOption func(*JWKSResolver)

func WithHTTPClient(client *http.Client) JWKSOption {
	return func(r *JWKSResolver) {
		if client != nil {
			r.client = client
		}
	}
}

// WithFetchRate caps remote fetches to perMinute with an equal burst. Zero or
// negative disables the limit.
func WithFetchRate(perMinute int) JWKSOption {
	return func(r *JWKSResolver) {
		if perMinute <= 0 {
			r.limiter = nil
			return
		}
		r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
}

// WithFetchObserver is called with "success", "error" or "rate_limited" after each fetch attempt.
func WithFetchObserver(observe func(outcome string)) JWKSOption {
	return func(r *JWKSResolver) {
		r.observe = observe
	}
}

func NewJWKSResolver(url string, opts ...JWKSOption) *JWKSResolver {
	r := &JWKSResolver{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Minute/10), 10),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *JWKSResolver) Resolve(ctx context.Context, keyID string) (*rsa.PublicKey, error) {
	set, err := r.fetch(ctx)
	if err != nil {
		return nil, err
	}

	jwk, ok := set.Find(keyID)
	if !ok {
		return nil, fmt.Errorf("%w: kid %q", model.ErrKeyNotFound, keyID)
	}

	return jwk.PublicKey()
}

// fetch collapses concurrent downloads into one. The shared download is
// detached from any single caller's cancellation and bounded by the client
// timeout; each caller still returns early when its own ctx is done.
func (r *JWKSResolver) fetch(ctx context.Context) (JWKS, error) {
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(r.url, func() (any, error) {
		if r.limiter != nil && !r.limiter.Allow() {
			r.report("rate_limited")
			return JWKS{}, model.ErrKeyFetchRateLimited
		}

		set, err := r.download(shared)
		if err != nil {
			r.report("error")
			return JWKS{}, err
		}

		r.report("success")
		return set, nil
	})

	select {
	case <-ctx.Done():
		return JWKS{}, fmt.Errorf("fetch JWKS: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return JWKS{}, res.Err
		}
		return res.Val.(JWKS), nil
	}
}

func (r *JWKSResolver) download(ctx context.Context) (JWKS, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, http.NoBody)
	if err != nil {
		return JWKS{}, fmt.Errorf("create JWKS request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return JWKS{}, fmt.Errorf("fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return JWKS{}, fmt.Errorf("JWKS returned %d: %s", resp.StatusCode, string(body))
	}

	var set JWKS
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return JWKS{}, fmt.Errorf("decode JWKS: %w", err)
	}

	return set, nil
}

func (r *JWKSResolver) report(outcome string) {
	if r.observe != nil {
		r.observe(outcome)
	}
}

type cachedKey struct {
	key       *rsa.PublicKey
	expiresAt time.Time
}

// CachingResolver memoizes successful lookups of the wrapped resolver. Failures
// are never cached. A ttl of zero or less keeps entries for the process lifetime.
type CachingResolver struct {
	next ResolverFunc
	ttl  time.Duration
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]cachedKey
}

// ResolverFunc adapts a function to KeyResolver.
type ResolverFunc func(ctx context.Context, keyID string) (*rsa.PublicKey, error)

func (f ResolverFunc) Resolve(ctx context.Context, keyID string) (*rsa.PublicKey, error) {
	return f(ctx, keyID)
}

func NewCachingResolver(next KeyResolver, ttl time.Duration) *CachingResolver {
	return &CachingResolver{
		next:    next.Resolve,
		ttl:     ttl,
		now:     time.Now,
		entries: map[string]cachedKey{},
	}
}

func (c *CachingResolver) Resolve(ctx context.Context, keyID string) (*rsa.PublicKey, error) {
	now := c.now()

	c.mu.RLock()
	entry, ok := c.entries[keyID]
	c.mu.RUnlock()
	if ok && (entry.expiresAt.IsZero() || now.Before(entry.expiresAt)) {
		return entry.key, nil
	}

	key, err := c.next(ctx, keyID)
	if err != nil {
		return nil, err
	}

	entry = cachedKey{key: key}
	if c.ttl > 0 {
		entry.expiresAt = now.Add(c.ttl)
	}

	c.mu.Lock()
	c.entries[keyID] = entry
	c.mu.Unlock()

	return key, nil
}
