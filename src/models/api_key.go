package models

import "time"

// ApiKey represents an API key record. RequestsPerSecond and MaxBatchSize
// are nil for unlimited keys; the admin key is never stored and is
// synthesized by the auth layer from configuration.
type ApiKey struct {
	Key               string     `json:"key"`
	Username          string     `json:"username"`
	IsAdmin           bool       `json:"is_admin"`
	IsActive          bool       `json:"is_active"`
	RequestsPerSecond *int       `json:"requests_per_second,omitempty"`
	MaxBatchSize      *int       `json:"max_batch_size,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	LastUsedAt        *time.Time `json:"last_used_at,omitempty"`
}

// Unlimited reports whether the key has no rate limit configured.
func (k *ApiKey) Unlimited() bool {
	return k.IsAdmin || k.RequestsPerSecond == nil
}

// AllowsBatch reports whether a batch of the given size fits the key's
// ceiling. Admin keys and keys without a configured ceiling allow any size.
func (k *ApiKey) AllowsBatch(size int) bool {
	if k.IsAdmin || k.MaxBatchSize == nil {
		return true
	}
	return size <= *k.MaxBatchSize
}
