package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlpinDale/waifu/src/logging"
	"github.com/AlpinDale/waifu/src/models"
	"github.com/AlpinDale/waifu/src/repositories"
)

// AdminUsername is the username reported for the configured admin key.
const AdminUsername = "admin"

// KeyService is the key registry plus the admission path: it resolves keys,
// distinguishes unknown from suspended keys, runs the rate-limit check, and
// owns the admin management operations. Registry writes keep the limiter's
// per-key state in sync so a removed key leaves no bucket behind.
type KeyService struct {
	repo     repositories.KeyRepository
	limiter  *RateLimiter
	adminKey string
	log      zerolog.Logger
}

// NewKeyService creates the key registry. adminKey may be empty, which
// disables the virtual admin record (stored is_admin keys still work).
func NewKeyService(repo repositories.KeyRepository, limiter *RateLimiter, adminKey string) *KeyService {
	return &KeyService{
		repo:     repo,
		limiter:  limiter,
		adminKey: adminKey,
		log:      logging.NewLogger("keys"),
	}
}

// truncateKey renders a key safe for logs.
func truncateKey(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8] + "..."
}

// adminRecord synthesizes the virtual record for the configured admin key.
// It carries no limits and is never stored.
func (ks *KeyService) adminRecord() *models.ApiKey {
	return &models.ApiKey{
		Key:       ks.adminKey,
		Username:  AdminUsername,
		IsAdmin:   true,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
}

// Resolve is a pure lookup: it returns the record for a key without
// touching limiter state or last_used_at.
func (ks *KeyService) Resolve(ctx context.Context, key string) (*models.ApiKey, error) {
	if ks.adminKey != "" && key == ks.adminKey {
		return ks.adminRecord(), nil
	}
	rec, err := ks.repo.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, Unauthorized("unknown api key")
		}
		return nil, fmt.Errorf("key lookup failed: %w", err)
	}
	return rec, nil
}

// Authorize runs the full admission path for one request: resolve the key,
// reject suspended keys, run the rate-limit check, and stamp last_used_at
// on admission. Admin and unlimited keys skip the bucket entirely.
// Suspended keys surface a distinct message so the boundary can tell
// "unknown key" from "suspended key" in logs.
func (ks *KeyService) Authorize(ctx context.Context, key string) (*models.ApiKey, error) {
	if key == "" {
		return nil, Unauthorized("missing api key")
	}

	rec, err := ks.Resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	if !rec.IsActive {
		return nil, Unauthorized("api key is suspended")
	}

	if !rec.Unlimited() {
		if !ks.limiter.Allow(rec.Key, *rec.RequestsPerSecond) {
			ks.log.Warn().
				Str("api_key", truncateKey(rec.Key)).
				Int("requests_per_second", *rec.RequestsPerSecond).
				Msg("rate limit exceeded")
			return nil, RateLimited("rate limit exceeded for api key")
		}
	}

	if !rec.IsAdmin {
		if err := ks.repo.TouchLastUsed(ctx, rec.Key); err != nil {
			// Admission already happened; a failed timestamp update is not
			// worth failing the request over.
			ks.log.Warn().
				Str("api_key", truncateKey(rec.Key)).
				Err(err).
				Msg("failed to update last_used_at")
		}
	}
	return rec, nil
}

// Create issues a new key for a username. A nil requests_per_second or
// max_batch_size means unlimited.
func (ks *KeyService) Create(ctx context.Context, username string, rps, maxBatch *int) (*models.ApiKey, error) {
	if username == "" {
		return nil, Invalid("username is required")
	}
	if username == AdminUsername {
		return nil, Invalid("username %q is reserved", AdminUsername)
	}
	if rps != nil && *rps <= 0 {
		return nil, Invalid("requests_per_second must be positive")
	}
	if maxBatch != nil && *maxBatch <= 0 {
		return nil, Invalid("max_batch_size must be positive")
	}

	key, err := generateKey()
	if err != nil {
		return nil, err
	}
	rec := &models.ApiKey{
		Key:               key,
		Username:          username,
		IsActive:          true,
		RequestsPerSecond: rps,
		MaxBatchSize:      maxBatch,
		CreatedAt:         time.Now().UTC(),
	}
	if err := ks.repo.Create(ctx, rec); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, AlreadyExists("api key for username %q already exists", username)
		}
		return nil, fmt.Errorf("failed to create api key: %w", err)
	}
	ks.log.Info().Str("username", username).Msg("api key created")
	return rec, nil
}

// Remove deletes the registry entry and its limiter bucket together.
func (ks *KeyService) Remove(ctx context.Context, username string) error {
	rec, err := ks.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return NotFound("no api key for username %q", username)
		}
		return fmt.Errorf("key lookup failed: %w", err)
	}
	if err := ks.repo.DeleteByUsername(ctx, username); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return NotFound("no api key for username %q", username)
		}
		return fmt.Errorf("failed to remove api key: %w", err)
	}
	ks.limiter.Forget(rec.Key)
	ks.log.Info().Str("username", username).Msg("api key removed")
	return nil
}

// SetActive toggles a key's active flag.
func (ks *KeyService) SetActive(ctx context.Context, username string, active bool) (*models.ApiKey, error) {
	rec, err := ks.repo.SetActive(ctx, username, active)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFound("no api key for username %q", username)
		}
		return nil, fmt.Errorf("failed to update api key status: %w", err)
	}
	ks.log.Info().Str("username", username).Bool("is_active", active).Msg("api key status updated")
	return rec, nil
}

// SetRateLimit changes a key's requests_per_second. The existing bucket is
// dropped so the next admission uses the new rate.
func (ks *KeyService) SetRateLimit(ctx context.Context, username string, rps *int) (*models.ApiKey, error) {
	if rps != nil && *rps <= 0 {
		return nil, Invalid("requests_per_second must be positive")
	}
	rec, err := ks.repo.SetRateLimit(ctx, username, rps)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFound("no api key for username %q", username)
		}
		return nil, fmt.Errorf("failed to update rate limit: %w", err)
	}
	ks.limiter.Forget(rec.Key)
	ks.log.Info().Str("username", username).Msg("api key rate limit updated")
	return rec, nil
}

// List returns all key records, newest first.
func (ks *KeyService) List(ctx context.Context) ([]models.ApiKey, error) {
	keys, err := ks.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, nil
}

// generateKey produces an opaque key value: a prefix plus 32 random bytes
// hex encoded.
func generateKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return "ak_" + hex.EncodeToString(buf), nil
}
