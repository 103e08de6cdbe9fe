package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AlpinDale/waifu/src/models"
	"github.com/AlpinDale/waifu/src/repositories"
)

// KeyRepository is an in-memory key store for tests.
type KeyRepository struct {
	mu   sync.RWMutex
	keys map[string]*models.ApiKey // by key value
}

// NewKeyRepository creates an empty in-memory key store.
func NewKeyRepository() *KeyRepository {
	return &KeyRepository{keys: make(map[string]*models.ApiKey)}
}

// GetByKey is a pure lookup by key value.
func (m *KeyRepository) GetByKey(_ context.Context, key string) (*models.ApiKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.keys[key]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// GetByUsername looks a record up by username.
func (m *KeyRepository) GetByUsername(_ context.Context, username string) (*models.ApiKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.keys {
		if rec.Username == username {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

// Create stores a record; duplicate usernames or key values conflict.
func (m *KeyRepository) Create(_ context.Context, rec *models.ApiKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[rec.Key]; ok {
		return repositories.ErrConflict
	}
	for _, existing := range m.keys {
		if existing.Username == rec.Username {
			return repositories.ErrConflict
		}
	}
	cp := *rec
	m.keys[rec.Key] = &cp
	return nil
}

// DeleteByUsername removes the record for a username.
func (m *KeyRepository) DeleteByUsername(_ context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, rec := range m.keys {
		if rec.Username == username {
			delete(m.keys, key)
			return nil
		}
	}
	return repositories.ErrNotFound
}

// SetActive toggles the active flag by username.
func (m *KeyRepository) SetActive(_ context.Context, username string, active bool) (*models.ApiKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.keys {
		if rec.Username == username {
			rec.IsActive = active
			cp := *rec
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

// SetRateLimit changes requests_per_second by username.
func (m *KeyRepository) SetRateLimit(_ context.Context, username string, rps *int) (*models.ApiKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.keys {
		if rec.Username == username {
			rec.RequestsPerSecond = rps
			cp := *rec
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

// TouchLastUsed stamps last_used_at.
func (m *KeyRepository) TouchLastUsed(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.keys[key]
	if !ok {
		return repositories.ErrNotFound
	}
	now := time.Now()
	rec.LastUsedAt = &now
	return nil
}

// List returns all records, newest first.
func (m *KeyRepository) List(_ context.Context) ([]models.ApiKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ApiKey, 0, len(m.keys))
	for _, rec := range m.keys {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
