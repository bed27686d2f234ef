package repo

import (
	"context"

	"github.com/jackc/pgx/v5"

	"gengateway/internal/domain"
	"gengateway/internal/infra"
	"gengateway/internal/sqlinline"
)

// UserRepositoryPG implements domain.UserRepository backed by PostgreSQL.
type UserRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewUserRepository creates a new UserRepositoryPG.
func NewUserRepository(sql infra.SQLExecutor) *UserRepositoryPG {
	return &UserRepositoryPG{sql: sql}
}

// Upsert inserts or updates a user by ID.
func (r *UserRepositoryPG) Upsert(ctx context.Context, u *domain.User) (*domain.User, error) {
	var createdAt any
	if !u.CreatedAt.IsZero() {
		createdAt = u.CreatedAt
	}
	row := r.sql.QueryRow(ctx, sqlinline.QUpsertUser,
		u.ID,
		u.Username,
		u.DisplayName,
		u.ProfilePictureURL,
		u.FollowerCount,
		u.FollowingCount,
		u.Verified,
		createdAt,
	)
	out, err := scanUser(row)
	if err != nil && infra.IsUniqueViolation(err, "users_username_key") {
		return nil, domain.WrapError(domain.KindDuplicateUsername, domain.FieldUsername, "username is already taken", err)
	}
	return out, err
}

// GetByID fetches a user by identifier.
func (r *UserRepositoryPG) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return scanUser(r.sql.QueryRow(ctx, sqlinline.QSelectUserByID, id))
}

// GetByUsername fetches a user by case-insensitive username.
func (r *UserRepositoryPG) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return scanUser(r.sql.QueryRow(ctx, sqlinline.QSelectUserByUsername, username))
}

func (r *UserRepositoryPG) Search(ctx context.Context, query string, limit int) ([]domain.User, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSearchUsers, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.ProfilePictureURL, &u.FollowerCount, &u.FollowingCount, &u.Verified, &u.CreatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// TokenRepositoryPG implements domain.TokenRepository.
type TokenRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewTokenRepository(sql infra.SQLExecutor) *TokenRepositoryPG {
	return &TokenRepositoryPG{sql: sql}
}

// Create stores t; a zero ID takes the next sequence value.
func (r *TokenRepositoryPG) Create(ctx context.Context, t *domain.APIToken) (*domain.APIToken, error) {
	out := *t
	if err := r.sql.QueryRow(ctx, sqlinline.QInsertAPIToken, t.ID, t.Name, t.UserID, t.KeyHash).Scan(&out.ID); err != nil {
		if infra.IsUniqueViolation(err, "") {
			return nil, domain.WrapError(domain.KindInvalidValue, "token_id", "token already exists", err)
		}
		return nil, err
	}
	return &out, nil
}

func (r *TokenRepositoryPG) GetByID(ctx context.Context, id int64) (*domain.APIToken, error) {
	return scanToken(r.sql.QueryRow(ctx, sqlinline.QSelectAPITokenByID, id))
}

func (r *TokenRepositoryPG) GetByKeyHash(ctx context.Context, keyHash string) (*domain.APIToken, error) {
	return scanToken(r.sql.QueryRow(ctx, sqlinline.QSelectAPITokenByHash, keyHash))
}

func scanToken(row pgx.Row) (*domain.APIToken, error) {
	var t domain.APIToken
	if err := row.Scan(&t.ID, &t.Name, &t.UserID, &t.KeyHash); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}
