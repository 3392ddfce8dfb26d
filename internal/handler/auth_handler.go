package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"auth-service/internal/middleware"
	"auth-service/internal/model"
	"auth-service/internal/service"
	"auth-service/pkg/apierror"
)

const RefreshTokenCookie = "refreshToken"

// CookieConfig scopes the token cookies. Lifetimes match the token TTLs.
type CookieConfig struct {
	Domain     string
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type AuthHandler struct {
	service *service.AuthService
	cookies CookieConfig
}

func NewAuthHandler(service *service.AuthService, cookies CookieConfig) *AuthHandler {
	return &AuthHandler{service: service, cookies: cookies}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload model.RegisterRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	payload.Email = strings.TrimSpace(payload.Email)
	payload.FirstName = strings.TrimSpace(payload.FirstName)
	payload.LastName = strings.TrimSpace(payload.LastName)
	if err := validateStruct(payload); err != nil {
		writeError(w, err)
		return
	}

	user, pair, err := h.service.Register(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setTokenCookies(w, pair)
	writeSuccess(w, http.StatusCreated, model.IDResponse{ID: user.ID}, nil)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	payload.Email = strings.TrimSpace(payload.Email)
	if err := validateStruct(payload); err != nil {
		writeError(w, err)
		return
	}

	user, pair, err := h.service.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setTokenCookies(w, pair)
	writeSuccess(w, http.StatusOK, model.IDResponse{ID: user.ID}, nil)
}

func (h *AuthHandler) Self(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthorized(model.ErrUnauthenticated, "authentication required"))
		return
	}

	user, err := h.service.Self(r.Context(), *identity)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}

// Refresh reads the refresh token from its cookie, or from the JSON body for
// clients that do not keep cookies.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	user, pair, err := h.service.Refresh(r.Context(), refreshTokenFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}

	h.setTokenCookies(w, pair)
	writeSuccess(w, http.StatusOK, model.IDResponse{ID: user.ID}, nil)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthorized(model.ErrUnauthenticated, "authentication required"))
		return
	}

	if err := h.service.Logout(r.Context(), *identity, refreshTokenFrom(r)); err != nil {
		writeError(w, err)
		return
	}

	h.clearTokenCookies(w)
	writeSuccess(w, http.StatusOK, map[string]any{"logged_out": true}, nil)
}

func refreshTokenFrom(r *http.Request) string {
	if cookie, err := r.Cookie(RefreshTokenCookie); err == nil {
		if token := strings.TrimSpace(cookie.Value); token != "" {
			return token
		}
	}

	if r.Body == nil {
		return ""
	}
	defer r.Body.Close()

	var payload model.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.RefreshToken)
}

func (h *AuthHandler) setTokenCookies(w http.ResponseWriter, pair model.TokenPair) {
	http.SetCookie(w, h.cookie(middleware.AccessTokenCookie, pair.AccessToken, h.cookies.AccessTTL))
	http.SetCookie(w, h.cookie(RefreshTokenCookie, pair.RefreshToken, h.cookies.RefreshTTL))
}

func (h *AuthHandler) clearTokenCookies(w http.ResponseWriter) {
	for _, name := range []string{middleware.AccessTokenCookie, RefreshTokenCookie} {
		c := h.cookie(name, "", 0)
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func (h *AuthHandler) cookie(name string, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.cookies.Domain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}
