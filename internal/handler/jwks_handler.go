package handler

import (
	"encoding/json"
	"net/http"

	"auth-service/internal/keys"
)

type keySetPublisher interface {
	PublicJWKS() keys.JWKS
}

// JWKSHandler publishes the public verification keys so other services can
// resolve access-token signatures by kid.
type JWKSHandler struct {
	keys keySetPublisher
}

func NewJWKSHandler(keys keySetPublisher) *JWKSHandler {
	return &JWKSHandler{keys: keys}
}

// Serve writes a bare RFC 7517 key set, not the usual response envelope.
func (h *JWKSHandler) Serve(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(h.keys.PublicJWKS())
}
