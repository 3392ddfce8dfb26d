package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"auth-service/internal/event"
	"auth-service/internal/model"
)

type tenantStore interface {
	Create(ctx context.Context, t model.Tenant) (model.Tenant, error)
	FindByID(ctx context.Context, id int64) (model.Tenant, error)
	Update(ctx context.Context, t model.Tenant) (model.Tenant, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]model.Tenant, error)
}

type tokenRevoker interface {
	RevokeAllForUser(ctx context.Context, userID int64) (int64, error)
}

// UserService is the admin-facing user management surface.
type UserService struct {
	users   userStore
	tenants tenantStore
	revoker tokenRevoker
	hasher  PasswordHasher
	bus     event.Bus
}

func NewUserService(users userStore, tenants tenantStore, revoker tokenRevoker, hasher PasswordHasher, bus event.Bus) *UserService {
	return &UserService{
		users:   users,
		tenants: tenants,
		revoker: revoker,
		hasher:  hasher,
		bus:     bus,
	}
}

func (s *UserService) Create(ctx context.Context, actorID int64, req model.CreateUserRequest) (model.User, error) {
	role, err := model.ParseRole(req.Role)
	if err != nil {
		return model.User{}, err
	}

	if req.TenantID != nil {
		if _, err := s.tenants.FindByID(ctx, *req.TenantID); err != nil {
			return model.User{}, err
		}
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return model.User{}, err
	}

	user, err := s.users.Create(ctx, model.User{
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hash,
		Role:         role,
		TenantID:     req.TenantID,
	})
	if err != nil {
		return model.User{}, err
	}

	publish(s.bus, event.TypeUserCreated, user.ID, actorID, map[string]any{"role": user.Role})
	return user, nil
}

func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	return s.users.List(ctx)
}

func (s *UserService) Get(ctx context.Context, id int64) (model.User, error) {
	return s.users.FindByID(ctx, id)
}

// Update changes a user's names and role. A role change revokes the user's
// refresh tokens so the next refresh cannot carry the old role forward.
func (s *UserService) Update(ctx context.Context, actorID int64, id int64, req model.UpdateUserRequest) (model.User, error) {
	role, err := model.ParseRole(req.Role)
	if err != nil {
		return model.User{}, err
	}

	current, err := s.users.FindByID(ctx, id)
	if err != nil {
		return model.User{}, err
	}

	updated, err := s.users.Update(ctx, model.User{
		ID:        id,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Role:      role,
	})
	if err != nil {
		return model.User{}, err
	}

	if current.Role != updated.Role {
		if _, err := s.revoker.RevokeAllForUser(ctx, id); err != nil {
			return model.User{}, fmt.Errorf("user %d updated but sessions not revoked: %w", id, err)
		}
	}

	publish(s.bus, event.TypeUserUpdated, id, actorID, map[string]any{"role": updated.Role})
	return updated, nil
}

func (s *UserService) Delete(ctx context.Context, actorID int64, id int64) error {
	if _, err := s.users.FindByID(ctx, id); err != nil {
		return err
	}

	n, err := s.revoker.RevokeAllForUser(ctx, id)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}

	slog.Debug("user deleted", "user_id", id, "revoked_tokens", n)
	publish(s.bus, event.TypeUserDeleted, id, actorID, nil)
	return nil
}
