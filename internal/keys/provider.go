// Package keys supplies the key material used to sign and verify tokens: the
// RSA key pair for access tokens, the HMAC secret for refresh tokens, and the
// resolution of verification keys by key id for rotation.
package keys

import (
	"context"
	"crypto/rsa"
	"fmt"
	"os"
	"strings"
	"time"

	"auth-service/internal/model"
)

// Config is built once at startup and never mutated afterwards.
type Config struct {
	PrivateKeyPEM  string
	PrivateKeyFile string
	PublicKeyFile  string
	KeyID          string
	RefreshSecret  string

	JWKSURL       string
	JWKSCacheTTL  time.Duration
	JWKSRateLimit int
}

type Provider struct {
	privateKey    *rsa.PrivateKey
	publicKey     *rsa.PublicKey
	keyID         string
	refreshSecret []byte
	resolver      KeyResolver
	observeFetch  func(outcome string)
}

type ProviderOption func(*Provider)

// WithResolver overrides the verification key resolver derived from Config.
func WithResolver(resolver KeyResolver) ProviderOption {
	return func(p *Provider) {
		p.resolver = resolver
	}
}

// WithKeyFetchObserver is passed to the JWKS resolver built from Config.JWKSURL.
func WithKeyFetchObserver(observe func(outcome string)) ProviderOption {
	return func(p *Provider) {
		p.observeFetch = observe
	}
}

// NewProvider loads key material from cfg. Absent material is not an error
// here; the matching accessor fails with model.ErrConfiguration when used.
// Present but unreadable material is.
func NewProvider(cfg Config, opts ...ProviderOption) (*Provider, error) {
	p := &Provider{
		keyID:         strings.TrimSpace(cfg.KeyID),
		refreshSecret: []byte(cfg.RefreshSecret),
	}

	privatePEM, err := readMaterial(cfg.PrivateKeyPEM, cfg.PrivateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: read private key: %v", model.ErrConfiguration, err)
	}
	if len(privatePEM) > 0 {
		p.privateKey, err = ParseRSAPrivateKey(privatePEM)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrConfiguration, err)
		}
		p.publicKey = &p.privateKey.PublicKey
	}

	if strings.TrimSpace(cfg.PublicKeyFile) != "" {
		publicPEM, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: read public key: %v", model.ErrConfiguration, err)
		}
		p.publicKey, err = ParseRSAPublicKey(publicPEM)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrConfiguration, err)
		}
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.resolver != nil {
		return p, nil
	}

	if strings.TrimSpace(cfg.JWKSURL) != "" {
		p.resolver = NewCachingResolver(
			NewJWKSResolver(cfg.JWKSURL, WithFetchRate(cfg.JWKSRateLimit), WithFetchObserver(p.observeFetch)),
			cfg.JWKSCacheTTL,
		)
	} else {
		p.resolver = NewStaticResolver(p.publicKey, p.keyID)
	}

	return p, nil
}

// SigningKey returns the access-token private key and its key id.
func (p *Provider) SigningKey() (*rsa.PrivateKey, string, error) {
	if p.privateKey == nil {
		return nil, "", fmt.Errorf("%w: private key is not set", model.ErrConfiguration)
	}
	return p.privateKey, p.keyID, nil
}

func (p *Provider) VerificationKey(ctx context.Context, keyID string) (*rsa.PublicKey, error) {
	return p.resolver.Resolve(ctx, keyID)
}

func (p *Provider) RefreshSecret() ([]byte, error) {
	if len(p.refreshSecret) == 0 {
		return nil, fmt.Errorf("%w: refresh token secret is not set", model.ErrConfiguration)
	}
	return p.refreshSecret, nil
}

// PublicJWKS is the key set this instance publishes. It is empty when no
// public key is loaded.
func (p *Provider) PublicJWKS() JWKS {
	if p.publicKey == nil {
		return JWKS{Keys: []JWK{}}
	}
	return JWKS{Keys: []JWK{NewJWK(p.publicKey, p.keyID)}}
}

func readMaterial(inline string, path string) ([]byte, error) {
	if strings.TrimSpace(inline) != "" {
		// Allow single-line env values with escaped newlines.
		return []byte(strings.ReplaceAll(inline, `\n`, "\n")), nil
	}
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	return os.ReadFile(path)
}
