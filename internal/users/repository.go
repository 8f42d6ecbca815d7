package users

import (
	"context"
	"errors"

	"github.com/usersearch/go-services/internal/models"
)

var (
	// ErrNotFound is returned by stores when a document (or its index) does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrIndexMisconfigured means the index exists but lacks the autocomplete analyzer.
	ErrIndexMisconfigured = errors.New("index exists with a different configuration")
)

// Store is the search engine capability the service depends on.
type Store interface {
	// EnsureIndex creates the index with the autocomplete analyzer, or verifies
	// an existing one carries it.
	EnsureIndex(ctx context.Context) error
	// Put writes the full document under u.Username, overwriting any previous one.
	Put(ctx context.Context, u *models.User) error
	Get(ctx context.Context, username string) (*models.User, error)
	UpdateEmail(ctx context.Context, username, email string) error
	Delete(ctx context.Context, username string) error
	List(ctx context.Context, limit int) ([]models.Hit, error)
	// Suggest returns usernames matching text as a prefix, best match first.
	Suggest(ctx context.Context, text string, limit int) ([]string, error)
	Ping(ctx context.Context) error
}

// Cache is an optional read-through cache for point lookups.
// Get returns (nil, nil) on a miss.
type Cache interface {
	Get(ctx context.Context, username string) (*models.User, error)
	Set(ctx context.Context, u *models.User) error
	Delete(ctx context.Context, username string) error
}
