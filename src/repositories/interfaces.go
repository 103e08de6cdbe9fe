package repositories

import (
	"context"

	"github.com/AlpinDale/waifu/src/models"
)

// MetadataIndex is the queryable store of image records. The selection
// engine only reads from it; ingestion and admin operations write through
// the same contract. Implementations may block on I/O, so callers must not
// hold engine locks across these calls.
type MetadataIndex interface {
	// Query returns the filenames of every record matching the normalized
	// filter spec: all tags present, each dimension within bounds.
	Query(ctx context.Context, filters *models.Filters) ([]string, error)

	// Get returns one record by filename.
	Get(ctx context.Context, filename string) (*models.ImageRecord, error)

	// Insert stores a new record; duplicate filenames conflict.
	Insert(ctx context.Context, rec *models.ImageRecord) error

	// Delete removes a record and its tag associations.
	Delete(ctx context.Context, filename string) error

	// AddTags associates tags with an image, creating them as needed.
	AddTags(ctx context.Context, filename string, tags []string) error

	// RemoveTags drops tag associations; unknown tags are ignored.
	RemoveTags(ctx context.Context, filename string, tags []string) error

	// AllTags returns every known tag with its image count.
	AllTags(ctx context.Context) (map[string]int, error)
}

// KeyRepository is the storage contract behind the key registry.
type KeyRepository interface {
	// GetByKey is a pure lookup; it never mutates the record.
	GetByKey(ctx context.Context, key string) (*models.ApiKey, error)

	// GetByUsername looks a record up by its unique username.
	GetByUsername(ctx context.Context, username string) (*models.ApiKey, error)

	// Create stores a new key record; usernames are unique.
	Create(ctx context.Context, rec *models.ApiKey) error

	// DeleteByUsername removes the record for a username.
	DeleteByUsername(ctx context.Context, username string) error

	// SetActive toggles a key's active flag by username.
	SetActive(ctx context.Context, username string, active bool) (*models.ApiKey, error)

	// SetRateLimit changes a key's requests-per-second; nil clears it.
	SetRateLimit(ctx context.Context, username string, rps *int) (*models.ApiKey, error)

	// TouchLastUsed stamps last_used_at; called only after admission.
	TouchLastUsed(ctx context.Context, key string) error

	// List returns all key records, newest first.
	List(ctx context.Context) ([]models.ApiKey, error)
}
