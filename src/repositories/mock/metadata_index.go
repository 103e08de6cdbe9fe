package mock

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/AlpinDale/waifu/src/models"
	"github.com/AlpinDale/waifu/src/repositories"
)

// MetadataIndex is an in-memory metadata index for tests. It implements the
// same subset/bounds matching as the Postgres index.
type MetadataIndex struct {
	mu      sync.RWMutex
	records map[string]*models.ImageRecord

	// QueryErr, when set, is returned by Query to simulate upstream failure
	QueryErr error
	// QueryCount tracks how many Query calls reached the index (cache misses)
	QueryCount int
}

// NewMetadataIndex creates an empty in-memory index.
func NewMetadataIndex() *MetadataIndex {
	return &MetadataIndex{records: make(map[string]*models.ImageRecord)}
}

// Query returns matching filenames in sorted order.
func (m *MetadataIndex) Query(_ context.Context, filters *models.Filters) ([]string, error) {
	m.mu.Lock()
	m.QueryCount++
	err := m.QueryErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for fn, rec := range m.records {
		if filters.Matches(rec) {
			out = append(out, fn)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Get returns one record by filename.
func (m *MetadataIndex) Get(_ context.Context, filename string) (*models.ImageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[filename]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// Insert stores a record; duplicate filenames conflict.
func (m *MetadataIndex) Insert(_ context.Context, rec *models.ImageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.Filename]; ok {
		return repositories.ErrConflict
	}
	cp := *rec
	cp.Tags = models.NormalizeTags(rec.Tags)
	m.records[rec.Filename] = &cp
	return nil
}

// Delete removes a record.
func (m *MetadataIndex) Delete(_ context.Context, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[filename]; !ok {
		return repositories.ErrNotFound
	}
	delete(m.records, filename)
	return nil
}

// AddTags associates tags with an image.
func (m *MetadataIndex) AddTags(_ context.Context, filename string, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[filename]
	if !ok {
		return repositories.ErrNotFound
	}
	rec.Tags = models.NormalizeTags(append(rec.Tags, tags...))
	return nil
}

// RemoveTags drops tag associations.
func (m *MetadataIndex) RemoveTags(_ context.Context, filename string, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[filename]
	if !ok {
		return repositories.ErrNotFound
	}
	drop := models.NormalizeTags(tags)
	rec.Tags = slices.DeleteFunc(rec.Tags, func(t string) bool {
		return slices.Contains(drop, t)
	})
	return nil
}

// AllTags returns tag counts across all records.
func (m *MetadataIndex) AllTags(_ context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, rec := range m.records {
		for _, t := range rec.Tags {
			counts[t]++
		}
	}
	return counts, nil
}
