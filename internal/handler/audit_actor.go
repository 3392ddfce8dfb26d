package handler

import (
	"net/http"
	"strconv"

	"auth-service/internal/middleware"
)

// actorID is the authenticated caller's user id, or 0 when unknown.
func actorID(r *http.Request) int64 {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		return 0
	}

	id, err := strconv.ParseInt(identity.Subject, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
