package domain

import "context"

// CharacterRepository persists cameo records. Insert must reject a username
// that already exists in any status with ErrDuplicateUsername.
type CharacterRepository interface {
	Insert(ctx context.Context, c *Character) error
	Activate(ctx context.Context, cameoID, sourceVideoRef string) (*Character, error)
	Delete(ctx context.Context, cameoID string) error
	GetByUsername(ctx context.Context, username string) (*Character, error)
	UpdateDisplayName(ctx context.Context, cameoID, displayName string) (*Character, error)
	Search(ctx context.Context, query string, limit int) ([]Character, error)
	HasActiveForOwner(ctx context.Context, ownerID string) (bool, error)
}

// PostRepository stores feed items. Create assigns ID, CreatedAt and Score
// under a single writer so that IDs sort in assignment order and CreatedAt
// never decreases in ID order.
type PostRepository interface {
	Create(ctx context.Context, p *Post) (*Post, error)
	List(ctx context.Context, q PostQuery) ([]Post, error)
	HighWater(ctx context.Context) (string, error)
	IncrementRemixCount(ctx context.Context, postID string) error
	Stats(ctx context.Context, authorID string) (PostStats, error)
}

// UserRepository reads profile owners.
type UserRepository interface {
	Upsert(ctx context.Context, u *User) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Search(ctx context.Context, query string, limit int) ([]User, error)
}

// TokenRepository resolves API keys.
type TokenRepository interface {
	Create(ctx context.Context, t *APIToken) (*APIToken, error)
	GetByID(ctx context.Context, id int64) (*APIToken, error)
	GetByKeyHash(ctx context.Context, keyHash string) (*APIToken, error)
}

// JobRepository persists job lifecycle records.
type JobRepository interface {
	Create(ctx context.Context, job *JobRecord) error
	Update(ctx context.Context, job *JobRecord) error
	GetByID(ctx context.Context, id string) (*JobRecord, error)
}
