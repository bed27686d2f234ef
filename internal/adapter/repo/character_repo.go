package repo

import (
	"context"

	"github.com/jackc/pgx/v5"

	"gengateway/internal/domain"
	"gengateway/internal/infra"
	"gengateway/internal/sqlinline"
)

const characterUsernameIndex = "characters_username_key"

// CharacterRepositoryPG implements domain.CharacterRepository. Username
// uniqueness is enforced by a unique index on lower(username).
type CharacterRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewCharacterRepository(sql infra.SQLExecutor) *CharacterRepositoryPG {
	return &CharacterRepositoryPG{sql: sql}
}

func (r *CharacterRepositoryPG) Insert(ctx context.Context, c *domain.Character) error {
	row := r.sql.QueryRow(ctx, sqlinline.QInsertCharacter,
		c.CameoID,
		c.OwnerID,
		c.Username,
		c.DisplayName,
		c.Token,
		c.SourceVideoRef,
		c.Timestamps.Start,
		c.Timestamps.End,
		string(c.Status),
	)
	if err := row.Scan(&c.CreatedAt, &c.UpdatedAt); err != nil {
		if infra.IsUniqueViolation(err, characterUsernameIndex) {
			return domain.WrapError(domain.KindDuplicateUsername, domain.FieldUsername, "username is already taken", err)
		}
		return err
	}
	return nil
}

func (r *CharacterRepositoryPG) Activate(ctx context.Context, cameoID, sourceVideoRef string) (*domain.Character, error) {
	return scanCharacter(r.sql.QueryRow(ctx, sqlinline.QActivateCharacter, cameoID, sourceVideoRef))
}

func (r *CharacterRepositoryPG) Delete(ctx context.Context, cameoID string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QDeleteCharacter, cameoID)
	return err
}

func (r *CharacterRepositoryPG) GetByUsername(ctx context.Context, username string) (*domain.Character, error) {
	return scanCharacter(r.sql.QueryRow(ctx, sqlinline.QSelectCharacterByUsername, username))
}

func (r *CharacterRepositoryPG) UpdateDisplayName(ctx context.Context, cameoID, displayName string) (*domain.Character, error) {
	return scanCharacter(r.sql.QueryRow(ctx, sqlinline.QUpdateCharacterDisplayName, cameoID, displayName))
}

func (r *CharacterRepositoryPG) Search(ctx context.Context, query string, limit int) ([]domain.Character, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSearchCharacters, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Character
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *CharacterRepositoryPG) HasActiveForOwner(ctx context.Context, ownerID string) (bool, error) {
	var ok bool
	err := r.sql.QueryRow(ctx, sqlinline.QOwnerHasActiveCharacter, ownerID).Scan(&ok)
	return ok, err
}

func scanCharacter(row pgx.Row) (*domain.Character, error) {
	var (
		c      domain.Character
		status string
	)
	if err := row.Scan(
		&c.CameoID,
		&c.OwnerID,
		&c.Username,
		&c.DisplayName,
		&c.Token,
		&c.SourceVideoRef,
		&c.Timestamps.Start,
		&c.Timestamps.End,
		&status,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	c.Status = domain.CharacterStatus(status)
	return &c, nil
}
