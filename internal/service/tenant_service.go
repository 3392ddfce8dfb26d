package service

import (
	"context"
	"strings"

	"auth-service/internal/event"
	"auth-service/internal/model"
)

type TenantService struct {
	tenants tenantStore
	bus     event.Bus
}

func NewTenantService(tenants tenantStore, bus event.Bus) *TenantService {
	return &TenantService{tenants: tenants, bus: bus}
}

func (s *TenantService) Create(ctx context.Context, actorID int64, req model.TenantRequest) (model.Tenant, error) {
	tenant, err := s.tenants.Create(ctx, model.Tenant{
		Name:    strings.TrimSpace(req.Name),
		Address: strings.TrimSpace(req.Address),
	})
	if err != nil {
		return model.Tenant{}, err
	}

	publish(s.bus, event.TypeTenantCreated, tenant.ID, actorID, map[string]any{"name": tenant.Name})
	return tenant, nil
}

func (s *TenantService) List(ctx context.Context) ([]model.Tenant, error) {
	return s.tenants.List(ctx)
}

func (s *TenantService) Get(ctx context.Context, id int64) (model.Tenant, error) {
	return s.tenants.FindByID(ctx, id)
}

func (s *TenantService) Update(ctx context.Context, actorID int64, id int64, req model.TenantRequest) (model.Tenant, error) {
	tenant, err := s.tenants.Update(ctx, model.Tenant{
		ID:      id,
		Name:    strings.TrimSpace(req.Name),
		Address: strings.TrimSpace(req.Address),
	})
	if err != nil {
		return model.Tenant{}, err
	}

	publish(s.bus, event.TypeTenantUpdated, id, actorID, nil)
	return tenant, nil
}

func (s *TenantService) Delete(ctx context.Context, actorID int64, id int64) error {
	if err := s.tenants.Delete(ctx, id); err != nil {
		return err
	}
	publish(s.bus, event.TypeTenantDeleted, id, actorID, nil)
	return nil
}
