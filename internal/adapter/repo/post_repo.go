package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"gengateway/internal/domain"
	"gengateway/internal/infra"
	"gengateway/internal/sqlinline"
)

// PostRepositoryPG implements domain.PostRepository backed by PostgreSQL.
type PostRepositoryPG struct {
	sql     infra.SQLExecutor
	weights domain.ScoreWeights
}

// NewPostRepository creates a new PostRepositoryPG.
func NewPostRepository(sql infra.SQLExecutor, weights domain.ScoreWeights) *PostRepositoryPG {
	return &PostRepositoryPG{sql: sql, weights: weights}
}

// Create inserts a post. The database assigns ID, CreatedAt and Score.
func (r *PostRepositoryPG) Create(ctx context.Context, p *domain.Post) (*domain.Post, error) {
	attachments, err := json.Marshal(nonNilAttachments(p.Attachments))
	if err != nil {
		return nil, fmt.Errorf("encode attachments: %w", err)
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertPost,
		p.Text,
		p.Author.UserID,
		p.Author.Username,
		p.Author.DisplayName,
		p.TokenID,
		p.LikeCount,
		p.ViewCount,
		attachments,
		p.RemixTargetID,
		r.weights.Likes,
		r.weights.Views,
	)
	return scanPost(row)
}

// List reads one page in the requested order, strictly after q.After.
func (r *PostRepositoryPG) List(ctx context.Context, q domain.PostQuery) ([]domain.Post, error) {
	query := sqlinline.QListPostsLatest
	if q.Order == domain.OrderTop {
		query = sqlinline.QListPostsTop
	}
	var (
		hasAfter bool
		afterTS  any
		afterID  string
	)
	if q.After != nil {
		hasAfter = true
		afterID = q.After.ID
		if q.Order == domain.OrderTop {
			afterTS = q.After.Score
		} else {
			afterTS = q.After.CreatedAt
		}
	}
	var limit any
	if q.Limit > 0 {
		limit = q.Limit
	}
	rows, err := r.sql.Query(ctx, query, q.MaxID, q.AuthorID, q.TokenID, hasAfter, afterTS, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}

// HighWater returns the greatest post ID, or "" for an empty table.
func (r *PostRepositoryPG) HighWater(ctx context.Context) (string, error) {
	var id string
	if err := r.sql.QueryRow(ctx, sqlinline.QPostHighWater).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (r *PostRepositoryPG) IncrementRemixCount(ctx context.Context, postID string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QIncrementRemixCount, postID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostRepositoryPG) Stats(ctx context.Context, authorID string) (domain.PostStats, error) {
	var st domain.PostStats
	err := r.sql.QueryRow(ctx, sqlinline.QPostStats, authorID).Scan(&st.PostCount, &st.LikeCount)
	return st, err
}

func scanPost(row pgx.Row) (*domain.Post, error) {
	var (
		p   domain.Post
		raw []byte
	)
	if err := row.Scan(
		&p.ID,
		&p.Text,
		&p.Author.UserID,
		&p.Author.Username,
		&p.Author.DisplayName,
		&p.TokenID,
		&p.LikeCount,
		&p.ViewCount,
		&p.RemixCount,
		&raw,
		&p.RemixTargetID,
		&p.Score,
		&p.CreatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments of %s: %w", p.ID, err)
		}
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func nonNilAttachments(a []domain.Attachment) []domain.Attachment {
	if a == nil {
		return []domain.Attachment{}
	}
	return a
}
