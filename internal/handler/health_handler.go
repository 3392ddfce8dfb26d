package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"auth-service/internal/model"
)

// HealthCheck reports whether a backing dependency is usable.
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	check HealthCheck
}

// NewHealthHandler accepts a nil check for deployments without external
// dependencies.
func NewHealthHandler(check HealthCheck) *HealthHandler {
	return &HealthHandler{check: check}
}

func (h *HealthHandler) Serve(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	if h.check != nil {
		if err := h.check(r.Context()); err != nil {
			slog.Warn("health check failed", "error", err)
			status = "unavailable"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: code == http.StatusOK,
		Data:    map[string]string{"status": status},
	})
}
