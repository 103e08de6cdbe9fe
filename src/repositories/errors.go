package repositories

import "errors"

// Sentinel errors shared by all storage implementations. Services translate
// these into the engine's error taxonomy; handlers never see them directly.
var (
	// ErrNotFound indicates the requested record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates a unique constraint (filename, username) was hit
	ErrConflict = errors.New("record already exists")
)
