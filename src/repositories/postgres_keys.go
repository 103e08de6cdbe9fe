package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AlpinDale/waifu/src/models"
)

const apiKeyColumns = "key, username, is_admin, is_active, requests_per_second, max_batch_size, created_at, last_used_at"

// PostgresKeys is the pgx-backed key repository.
type PostgresKeys struct {
	pool *pgxpool.Pool
}

// NewPostgresKeys creates a key repository over the given pool.
func NewPostgresKeys(pool *pgxpool.Pool) *PostgresKeys {
	return &PostgresKeys{pool: pool}
}

func scanApiKey(row pgx.Row) (*models.ApiKey, error) {
	rec := &models.ApiKey{}
	err := row.Scan(&rec.Key, &rec.Username, &rec.IsAdmin, &rec.IsActive,
		&rec.RequestsPerSecond, &rec.MaxBatchSize, &rec.CreatedAt, &rec.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan api key: %w", err)
	}
	return rec, nil
}

// GetByKey is a pure lookup by key value; no mutation.
func (r *PostgresKeys) GetByKey(ctx context.Context, key string) (*models.ApiKey, error) {
	return scanApiKey(r.pool.QueryRow(ctx,
		"SELECT "+apiKeyColumns+" FROM api_keys WHERE key = $1", key))
}

// GetByUsername looks a record up by its unique username.
func (r *PostgresKeys) GetByUsername(ctx context.Context, username string) (*models.ApiKey, error) {
	return scanApiKey(r.pool.QueryRow(ctx,
		"SELECT "+apiKeyColumns+" FROM api_keys WHERE username = $1", username))
}

// Create stores a new key record. Duplicate usernames (or key values)
// conflict.
func (r *PostgresKeys) Create(ctx context.Context, rec *models.ApiKey) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO api_keys (key, username, is_admin, is_active, requests_per_second, max_batch_size, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.Key, rec.Username, rec.IsAdmin, rec.IsActive,
		rec.RequestsPerSecond, rec.MaxBatchSize, rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

// DeleteByUsername removes the record for a username.
func (r *PostgresKeys) DeleteByUsername(ctx context.Context, username string) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM api_keys WHERE username = $1", username)
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive toggles the active flag and returns the updated record.
func (r *PostgresKeys) SetActive(ctx context.Context, username string, active bool) (*models.ApiKey, error) {
	return scanApiKey(r.pool.QueryRow(ctx,
		"UPDATE api_keys SET is_active = $1 WHERE username = $2 RETURNING "+apiKeyColumns,
		active, username))
}

// SetRateLimit changes requests_per_second; nil clears the limit.
func (r *PostgresKeys) SetRateLimit(ctx context.Context, username string, rps *int) (*models.ApiKey, error) {
	return scanApiKey(r.pool.QueryRow(ctx,
		"UPDATE api_keys SET requests_per_second = $1 WHERE username = $2 RETURNING "+apiKeyColumns,
		rps, username))
}

// TouchLastUsed stamps last_used_at for an admitted request.
func (r *PostgresKeys) TouchLastUsed(ctx context.Context, key string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE api_keys SET last_used_at = NOW() WHERE key = $1", key)
	if err != nil {
		return fmt.Errorf("failed to update last_used_at: %w", err)
	}
	return nil
}

// List returns all key records, newest first.
func (r *PostgresKeys) List(ctx context.Context) ([]models.ApiKey, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+apiKeyColumns+" FROM api_keys ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query api keys: %w", err)
	}
	defer rows.Close()

	var keys []models.ApiKey
	for rows.Next() {
		rec, err := scanApiKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *rec)
	}
	return keys, rows.Err()
}
