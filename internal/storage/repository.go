package storage

import (
	"context"
	"errors"

	"dramadesk/internal/domain"
)

// ErrQueryTimeout marks a repository operation that exceeded its query
// deadline. It is reported distinctly from a hard failure because the data
// may still be intact; callers word their user-facing messages accordingly.
var ErrQueryTimeout = errors.New("query timed out")

// ErrNotConfigured marks an operation that failed because a required
// connection option is absent. Surfaced to the admin as a configuration
// error rather than a generic storage failure.
var ErrNotConfigured = errors.New("storage is not configured")

// PostRepository defines the interface for post persistence.
// This allows us to swap storage implementations (e.g., MongoDB, an
// in-memory fake in tests) without changing the core application logic.
type PostRepository interface {
	// Insert stores a new post and returns the assigned ID. CreatedAt is
	// set server-side when the caller left it zero.
	Insert(ctx context.Context, post domain.Post) (string, error)

	// ListAll returns every post ordered by CreatedAt descending.
	ListAll(ctx context.Context) ([]domain.Post, error)

	// DeleteAll removes every post and returns how many were deleted.
	DeleteAll(ctx context.Context) (int64, error)

	// Close gracefully shuts down the repository connection.
	Close(ctx context.Context) error
}
