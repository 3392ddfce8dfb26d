package model

import "errors"

var (
	// Key material
	ErrConfiguration       = errors.New("configuration error")
	ErrKeyNotFound         = errors.New("verification key not found")
	ErrKeyFetchRateLimited = errors.New("key set fetch rate limited")

	// Authentication / authorization
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// User related errors
	ErrUserNotFound  = errors.New("user not found")
	ErrDuplicateUser = errors.New("user with this email already exists")

	// Token related errors
	ErrRefreshTokenNotFound = errors.New("refresh token not found")

	// Tenant related errors
	ErrTenantNotFound = errors.New("tenant not found")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
