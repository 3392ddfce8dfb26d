package router

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"auth-service/internal/config"
	"auth-service/internal/handler"
	"auth-service/internal/keys"
	"auth-service/internal/metrics"
	"auth-service/internal/middleware"
	"auth-service/internal/model"
	"auth-service/internal/repository"
	"auth-service/internal/service"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "admin-secret-1"
)

type testServer struct {
	*httptest.Server
	users  *repository.MemoryUserRepository
	tokens *repository.MemoryRefreshTokenRepository
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *model.APIError `json:"error"`
	Meta    *model.Meta     `json:"meta"`
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	provider, err := keys.NewProvider(keys.Config{
		PrivateKeyPEM: string(privatePEM),
		KeyID:         "test-key",
		RefreshSecret: "refresh-secret",
	})
	require.NoError(t, err)

	users := repository.NewMemoryUserRepository()
	tokens := repository.NewMemoryRefreshTokenRepository()
	tenants := repository.NewMemoryTenantRepository()

	m := metrics.New()
	hasher := service.NewBcryptHasher(bcrypt.MinCost)
	tokenService := service.NewTokenService(provider, tokens, service.TokenConfig{Issuer: "auth-service"}, service.WithMetrics(m))

	hash, err := hasher.Hash(adminPassword)
	require.NoError(t, err)
	_, err = users.Create(context.Background(), model.User{
		FirstName:    "Ada",
		LastName:     "Admin",
		Email:        adminEmail,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
	})
	require.NoError(t, err)

	cfg := &config.Config{
		CORSOrigins:      []string{"http://localhost:5173"},
		RateLimitRPM:     1000,
		AuthRateLimitRPM: 1000,
		RequestTimeout:   5 * time.Second,
	}

	h := Handlers{
		Auth: handler.NewAuthHandler(service.NewAuthService(users, tokenService, hasher, nil), handler.CookieConfig{
			Domain:     "localhost",
			AccessTTL:  tokenService.AccessTTL(),
			RefreshTTL: tokenService.RefreshTTL(),
		}),
		User:   handler.NewUserHandler(service.NewUserService(users, tenants, tokenService, hasher, nil)),
		Tenant: handler.NewTenantHandler(service.NewTenantService(tenants, nil)),
		JWKS:   handler.NewJWKSHandler(provider),
		Health: handler.NewHealthHandler(nil),
	}

	server := httptest.NewServer(New(cfg, middleware.NewAuthMiddleware(tokenService), h, m))
	t.Cleanup(server.Close)

	return &testServer{Server: server, users: users, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method string, path string, body any, mutate func(*http.Request)) (*http.Response, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if mutate != nil {
		mutate(req)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var env envelope
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp, env
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func withCookies(cookies ...*http.Cookie) func(*http.Request) {
	return func(r *http.Request) {
		for _, c := range cookies {
			r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
}

func cookieNamed(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeID(t *testing.T, env envelope) int64 {
	t.Helper()

	var body model.IDResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	return body.ID
}

func (s *testServer) login(t *testing.T, email string, password string) (access *http.Cookie, refresh *http.Cookie) {
	t.Helper()

	resp, _ := s.do(t, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	access = cookieNamed(resp, middleware.AccessTokenCookie)
	refresh = cookieNamed(resp, handler.RefreshTokenCookie)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	return access, refresh
}

func TestRegisterSetsCookiesAndPersistsSession(t *testing.T) {
	s := newTestServer(t)

	resp, env := s.do(t, http.MethodPost, "/auth/register", map[string]string{
		"first_name": "Jane",
		"last_name":  "Doe",
		"email":      "jane@example.com",
		"password":   "password123",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.True(t, env.Success)
	id := decodeID(t, env)
	require.Positive(t, id)

	access := cookieNamed(resp, middleware.AccessTokenCookie)
	require.NotNil(t, access)
	assert.Equal(t, 3600, access.MaxAge)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, access.SameSite)
	assert.Equal(t, "localhost", access.Domain)
	assert.Len(t, strings.Split(access.Value, "."), 3)

	refresh := cookieNamed(resp, handler.RefreshTokenCookie)
	require.NotNil(t, refresh)
	assert.Equal(t, 365*24*3600, refresh.MaxAge)
	assert.True(t, refresh.HttpOnly)
	assert.Equal(t, 1, s.tokens.Len())

	user, err := s.users.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.RoleCustomer, user.Role)
	assert.NotEqual(t, "password123", user.PasswordHash)

	t.Run("duplicate email is a bad request", func(t *testing.T) {
		resp, env := s.do(t, http.MethodPost, "/auth/register", map[string]string{
			"first_name": "Jane",
			"last_name":  "Again",
			"email":      "JANE@example.com",
			"password":   "password123",
		}, nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "ALREADY_EXISTS", env.Error.Code)
		assert.Empty(t, resp.Cookies())
	})

	t.Run("invalid payload reports fields", func(t *testing.T) {
		resp, env := s.do(t, http.MethodPost, "/auth/register", map[string]string{
			"first_name": "",
			"last_name":  "Doe",
			"email":      "not-an-email",
			"password":   "short",
		}, nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "VALIDATION_ERROR", env.Error.Code)

		fields := map[string]bool{}
		for _, f := range env.Error.Fields {
			fields[f.Field] = true
		}
		assert.True(t, fields["first_name"])
		assert.True(t, fields["email"])
		assert.True(t, fields["password"])
	})
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	access, refresh := s.login(t, adminEmail, adminPassword)
	assert.Len(t, strings.Split(access.Value, "."), 3)
	assert.Len(t, strings.Split(refresh.Value, "."), 3)

	for name, creds := range map[string][2]string{
		"wrong password": {adminEmail, "not-the-password"},
		"unknown email":  {"nobody@example.com", adminPassword},
	} {
		t.Run(name, func(t *testing.T) {
			resp, env := s.do(t, http.MethodPost, "/auth/login", map[string]string{"email": creds[0], "password": creds[1]}, nil)
			require.Equal(t, http.StatusNotFound, resp.StatusCode)
			assert.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)
			assert.Empty(t, resp.Cookies())
		})
	}
}

func TestSelfAcceptsHeaderOrCookie(t *testing.T) {
	s := newTestServer(t)
	access, _ := s.login(t, adminEmail, adminPassword)

	var self model.User

	resp, env := s.do(t, http.MethodGet, "/auth/self", nil, bearer(access.Value))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(env.Data, &self))
	assert.Equal(t, adminEmail, self.Email)
	assert.NotContains(t, string(env.Data), "password")

	resp, _ = s.do(t, http.MethodGet, "/auth/self", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer undefined")
		r.AddCookie(&http.Cookie{Name: access.Name, Value: access.Value})
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = s.do(t, http.MethodGet, "/auth/self", nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	resp, _ = s.do(t, http.MethodGet, "/auth/self", nil, bearer("garbage.token.value"))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRefreshRotatesSession(t *testing.T) {
	s := newTestServer(t)
	_, refresh := s.login(t, adminEmail, adminPassword)
	require.Equal(t, 1, s.tokens.Len())

	resp, _ := s.do(t, http.MethodPost, "/auth/refresh", nil, withCookies(refresh))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rotated := cookieNamed(resp, handler.RefreshTokenCookie)
	require.NotNil(t, rotated)
	assert.NotEqual(t, refresh.Value, rotated.Value)
	assert.Equal(t, 1, s.tokens.Len())

	resp, _ = s.do(t, http.MethodPost, "/auth/refresh", nil, withCookies(refresh))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": rotated.Value}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	s := newTestServer(t)
	access, refresh := s.login(t, adminEmail, adminPassword)

	resp, _ := s.do(t, http.MethodPost, "/auth/logout", nil, withCookies(access, refresh))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, s.tokens.Len())

	cleared := cookieNamed(resp, handler.RefreshTokenCookie)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)

	resp, _ = s.do(t, http.MethodPost, "/auth/refresh", nil, withCookies(refresh))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminRoutesEnforceRoles(t *testing.T) {
	s := newTestServer(t)
	adminAccess, _ := s.login(t, adminEmail, adminPassword)

	resp, _ := s.do(t, http.MethodPost, "/auth/register", map[string]string{
		"first_name": "Carl",
		"last_name":  "Customer",
		"email":      "carl@example.com",
		"password":   "password123",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	customerAccess := cookieNamed(resp, middleware.AccessTokenCookie)

	for _, path := range []string{"/users", "/tenants"} {
		t.Run(path, func(t *testing.T) {
			resp, _ := s.do(t, http.MethodGet, path, nil, nil)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			resp, env := s.do(t, http.MethodGet, path, nil, bearer(customerAccess.Value))
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
			assert.Equal(t, "FORBIDDEN", env.Error.Code)

			resp, _ = s.do(t, http.MethodGet, path, nil, bearer(adminAccess.Value))
			assert.Equal(t, http.StatusOK, resp.StatusCode)

			resp, env = s.do(t, http.MethodGet, path+"/abc", nil, bearer(adminAccess.Value))
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "Invalid url param.", env.Error.Message)
		})
	}
}

func TestTenantAndUserLifecycle(t *testing.T) {
	s := newTestServer(t)
	access, _ := s.login(t, adminEmail, adminPassword)
	auth := bearer(access.Value)

	resp, env := s.do(t, http.MethodPost, "/tenants", map[string]string{"name": "Acme", "address": "1 Main St"}, auth)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	tenantID := decodeID(t, env)

	resp, env = s.do(t, http.MethodPost, "/users", map[string]any{
		"first_name": "Mia",
		"last_name":  "Manager",
		"email":      "mia@example.com",
		"password":   "password123",
		"role":       "manager",
		"tenant_id":  tenantID,
	}, auth)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	userID := decodeID(t, env)
	userPath := "/users/" + strconv.FormatInt(userID, 10)

	resp, env = s.do(t, http.MethodGet, "/users", nil, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 2, env.Meta.Total)

	resp, env = s.do(t, http.MethodPatch, userPath, map[string]string{
		"first_name": "Mia",
		"last_name":  "Lead",
		"role":       "admin",
	}, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, userID, decodeID(t, env))

	updated, err := s.users.FindByID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, updated.Role)
	assert.Equal(t, "Lead", updated.LastName)

	resp, _ = s.do(t, http.MethodDelete, userPath, nil, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = s.do(t, http.MethodGet, userPath, nil, auth)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	tenantPath := "/tenants/" + strconv.FormatInt(tenantID, 10)
	resp, _ = s.do(t, http.MethodDelete, tenantPath, nil, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, tenantPath, nil, auth)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPublicEndpoints(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.URL + "/.well-known/jwks.json")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var set keys.JWKS
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&set))
	require.Len(t, set.Keys, 1)
	assert.Equal(t, "test-key", set.Keys[0].Kid)
	assert.Equal(t, "RS256", set.Keys[0].Alg)

	resp, err = http.Get(s.URL + "/health")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp, err = http.Get(s.URL + "/metrics")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
