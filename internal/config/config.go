package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"auth-service/internal/keys"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	RequestTimeout     time.Duration

	StoreDriver string
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	PrivateKey     string
	PrivateKeyFile string
	PublicKeyFile  string
	KeyID          string
	RefreshSecret  string
	Issuer         string
	EnforceIssuer  bool
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	CookieDomain   string
	CookieSecure   bool

	JWKSURL          string
	JWKSCacheTTL     time.Duration
	JWKSRateLimitRPM int

	BcryptCost       int
	CORSOrigins      []string
	RateLimitRPM     int
	AuthRateLimitRPM int
	CleanupInterval  time.Duration
	LogFormat        string
	LogLevel         string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:         getEnv("SERVER_PORT", "5501"),
		ServerReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		ServerWriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 30*time.Second),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 2)),

		PrivateKey:     os.Getenv("PRIVATE_KEY"),
		PrivateKeyFile: strings.TrimSpace(os.Getenv("PRIVATE_KEY_FILE")),
		PublicKeyFile:  strings.TrimSpace(os.Getenv("PUBLIC_KEY_FILE")),
		KeyID:          strings.TrimSpace(os.Getenv("KEY_ID")),
		RefreshSecret:  strings.TrimSpace(os.Getenv("REFRESH_TOKEN_SECRET")),
		Issuer:         getEnv("ISSUER", "auth-service"),
		EnforceIssuer:  getBool("ENFORCE_ISSUER", false),
		AccessTTL:      getDuration("ACCESS_TTL", time.Hour),
		RefreshTTL:     getDuration("REFRESH_TTL", 365*24*time.Hour),
		CookieDomain:   getEnv("COOKIE_DOMAIN", "localhost"),
		CookieSecure:   getBool("COOKIE_SECURE", false),

		JWKSURL:          strings.TrimSpace(os.Getenv("JWKS_URL")),
		JWKSCacheTTL:     getDuration("JWKS_CACHE_TTL", 10*time.Minute),
		JWKSRateLimitRPM: getInt("JWKS_RATE_LIMIT_RPM", 10),

		BcryptCost:       getInt("BCRYPT_COST", 10),
		CORSOrigins:      splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		RateLimitRPM:     getInt("RATE_LIMIT_RPM", 100),
		AuthRateLimitRPM: getInt("AUTH_RATE_LIMIT_RPM", 10),
		CleanupInterval:  getDuration("CLEANUP_INTERVAL", time.Hour),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "pretty")),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the service cannot start with. Missing key
// material is allowed: the affected operations fail at use time instead.
func (c *Config) Validate() error {
	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.StoreDriver)
	}

	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS")
	}

	if c.PrivateKey != "" && c.PrivateKeyFile != "" {
		return fmt.Errorf("set only one of PRIVATE_KEY and PRIVATE_KEY_FILE")
	}

	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("ACCESS_TTL and REFRESH_TTL must be positive")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.LogFormat != "pretty" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be pretty or json")
	}

	return nil
}

// KeysConfig is the immutable key material handed to keys.NewProvider.
func (c *Config) KeysConfig() keys.Config {
	return keys.Config{
		PrivateKeyPEM:  c.PrivateKey,
		PrivateKeyFile: c.PrivateKeyFile,
		PublicKeyFile:  c.PublicKeyFile,
		KeyID:          c.KeyID,
		RefreshSecret:  c.RefreshSecret,
		JWKSURL:        c.JWKSURL,
		JWKSCacheTTL:   c.JWKSCacheTTL,
		JWKSRateLimit:  c.JWKSRateLimitRPM,
	}
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
