package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"auth-service/internal/model"
)

// MemoryUserRepository is a process-local user store used when STORE_DRIVER=memory.
type MemoryUserRepository struct {
	mu     sync.RWMutex
	nextID int64
	users  map[int64]model.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[int64]model.User)}
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id int64) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	email = strings.TrimSpace(email)
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (r *MemoryUserRepository) Create(_ context.Context, u model.User) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return model.User{}, model.ErrDuplicateUser
		}
	}

	r.nextID++
	now := time.Now().UTC()
	u.ID = r.nextID
	u.CreatedAt, u.UpdatedAt = now, now
	r.users[u.ID] = u
	return u, nil
}

func (r *MemoryUserRepository) Update(_ context.Context, u model.User) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[u.ID]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	existing.FirstName = u.FirstName
	existing.LastName = u.LastName
	existing.Role = u.Role
	existing.UpdatedAt = time.Now().UTC()
	r.users[u.ID] = existing
	return existing, nil
}

func (r *MemoryUserRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return model.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *MemoryUserRepository) List(_ context.Context) ([]model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

type MemoryRefreshTokenRepository struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]model.RefreshTokenRecord
}

func NewMemoryRefreshTokenRepository() *MemoryRefreshTokenRepository {
	return &MemoryRefreshTokenRepository{records: make(map[int64]model.RefreshTokenRecord)}
}

func (r *MemoryRefreshTokenRepository) Create(_ context.Context, userID int64, expiresAt time.Time) (model.RefreshTokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := time.Now().UTC()
	record := model.RefreshTokenRecord{
		ID:        r.nextID,
		UserID:    userID,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.records[record.ID] = record
	return record, nil
}

func (r *MemoryRefreshTokenRepository) FindByID(_ context.Context, id int64) (model.RefreshTokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return model.RefreshTokenRecord{}, model.ErrRefreshTokenNotFound
	}
	return record, nil
}

func (r *MemoryRefreshTokenRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return model.ErrRefreshTokenNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *MemoryRefreshTokenRepository) DeleteAllForUser(_ context.Context, userID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, record := range r.records {
		if record.UserID == userID {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRefreshTokenRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, record := range r.records {
		if !record.ExpiresAt.After(now) {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

// Len reports how many records are stored.
func (r *MemoryRefreshTokenRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type MemoryTenantRepository struct {
	mu      sync.RWMutex
	nextID  int64
	tenants map[int64]model.Tenant
}

func NewMemoryTenantRepository() *MemoryTenantRepository {
	return &MemoryTenantRepository{tenants: make(map[int64]model.Tenant)}
}

func (r *MemoryTenantRepository) Create(_ context.Context, t model.Tenant) (model.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := time.Now().UTC()
	t.ID = r.nextID
	t.CreatedAt, t.UpdatedAt = now, now
	r.tenants[t.ID] = t
	return t, nil
}

func (r *MemoryTenantRepository) FindByID(_ context.Context, id int64) (model.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tenants[id]
	if !ok {
		return model.Tenant{}, model.ErrTenantNotFound
	}
	return t, nil
}

func (r *MemoryTenantRepository) Update(_ context.Context, t model.Tenant) (model.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.tenants[t.ID]
	if !ok {
		return model.Tenant{}, model.ErrTenantNotFound
	}
	existing.Name = t.Name
	existing.Address = t.Address
	existing.UpdatedAt = time.Now().UTC()
	r.tenants[t.ID] = existing
	return existing, nil
}

func (r *MemoryTenantRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tenants[id]; !ok {
		return model.ErrTenantNotFound
	}
	delete(r.tenants, id)
	return nil
}

func (r *MemoryTenantRepository) List(_ context.Context) ([]model.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tenants := make([]model.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		tenants = append(tenants, t)
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].ID < tenants[j].ID })
	return tenants, nil
}
