package feed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gengateway/internal/domain"
	"gengateway/internal/infra"
)

// Page size bounds.
const (
	DefaultLimit = 12
	MaxLimit     = 100
)

// Page is one slice of a listing. Cursor is nil at end of stream.
type Page struct {
	Items  []domain.Post
	Cursor *string
}

// Engine serves the global, per-user and per-token listings.
type Engine struct {
	posts      domain.PostRepository
	users      domain.UserRepository
	tokens     domain.TokenRepository
	characters domain.CharacterRepository
	metrics    *infra.Metrics
	baseURL    string
}

func NewEngine(posts domain.PostRepository, users domain.UserRepository, tokens domain.TokenRepository,
	characters domain.CharacterRepository, metrics *infra.Metrics, publicBaseURL string) *Engine {
	return &Engine{
		posts:      posts,
		users:      users,
		tokens:     tokens,
		characters: characters,
		metrics:    metrics,
		baseURL:    strings.TrimRight(publicBaseURL, "/"),
	}
}

// ParseCut maps the cut query value to an ordering.
func ParseCut(cut string) (domain.FeedOrder, error) {
	switch strings.ToLower(strings.TrimSpace(cut)) {
	case "", "nf2_latest", "latest":
		return domain.OrderLatest, nil
	case "nf2_top", "top":
		return domain.OrderTop, nil
	}
	return "", domain.NewError(domain.KindInvalidValue, "cut", "cut must be nf2_latest or nf2_top")
}

// ClampLimit applies the default and maximum page sizes.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Page lists every post by the requested cut.
func (e *Engine) Page(ctx context.Context, cut string, limit int, token string) (*Page, error) {
	order, err := ParseCut(cut)
	if err != nil {
		return nil, err
	}
	return e.list(ctx, "global", string(order), domain.PostQuery{Order: order}, limit, token)
}

// UserPage lists the posts of one author, newest first.
func (e *Engine) UserPage(ctx context.Context, userID string, limit int, token string) (*Page, error) {
	if _, err := e.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return e.list(ctx, "user", "user:"+userID, domain.PostQuery{Order: domain.OrderLatest, AuthorID: userID}, limit, token)
}

// TokenPage lists the posts created with one API token. An unknown token is
// NotFound, never an empty page.
func (e *Engine) TokenPage(ctx context.Context, tokenID int64, limit int, token string) (*Page, error) {
	if _, err := e.tokens.GetByID(ctx, tokenID); err != nil {
		return nil, err
	}
	mode := "token:" + strconv.FormatInt(tokenID, 10)
	return e.list(ctx, "token", mode, domain.PostQuery{Order: domain.OrderLatest, TokenID: tokenID}, limit, token)
}

func (e *Engine) list(ctx context.Context, scope, mode string, q domain.PostQuery, limit int, token string) (*Page, error) {
	limit = ClampLimit(limit)
	if token != "" {
		after, snapshot, err := decodeCursor(token, mode, q.Order)
		if err != nil {
			return nil, err
		}
		q.After, q.MaxID = after, snapshot
	} else {
		hw, err := e.posts.HighWater(ctx)
		if err != nil {
			return nil, fmt.Errorf("feed high water: %w", err)
		}
		if hw == "" {
			// Nothing existed when the walk started.
			return &Page{Items: []domain.Post{}}, nil
		}
		q.MaxID = hw
	}
	q.Limit = limit + 1

	items, err := e.posts.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	if e.metrics != nil {
		e.metrics.FeedPages.WithLabelValues(scope).Inc()
	}
	page := &Page{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		next := encodeCursor(mode, q.Order, page.Items[limit-1], q.MaxID)
		page.Cursor = &next
	}
	return page, nil
}

// Permalink returns the public URL of a post.
func (e *Engine) Permalink(postID string) string {
	return e.baseURL + "/p/" + postID
}

// Profile assembles the profile aggregate of a user.
func (e *Engine) Profile(ctx context.Context, username string) (*domain.Profile, error) {
	u, err := e.users.GetByUsername(ctx, strings.TrimPrefix(strings.TrimSpace(username), "@"))
	if err != nil {
		return nil, err
	}
	stats, err := e.posts.Stats(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("post stats: %w", err)
	}
	p := &domain.Profile{
		User:      *u,
		PostCount: stats.PostCount,
		LikeCount: stats.LikeCount,
		Permalink: e.baseURL + "/profile/" + u.Username,
	}
	if !p.CanCameo {
		has, err := e.characters.HasActiveForOwner(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("cameo lookup: %w", err)
		}
		p.CanCameo = has
	}
	return p, nil
}

// Search intents.
const (
	IntentUsers = "users"
	IntentCameo = "cameo"
)

// SearchResult is one match of a profile or cameo search.
type SearchResult struct {
	UserID            string
	Username          string
	DisplayName       string
	ProfilePictureURL string
	CanCameo          bool
	Token             string
}

// Search finds users by name, or cameo characters when intent is cameo.
func (e *Engine) Search(ctx context.Context, query, intent string, limit int) ([]SearchResult, error) {
	query = strings.TrimPrefix(strings.TrimSpace(query), "@")
	if query == "" {
		return nil, domain.NewError(domain.KindMissingField, "username", "field is required")
	}
	if limit <= 0 {
		limit = 10
	}
	limit = min(limit, MaxLimit)

	switch strings.ToLower(strings.TrimSpace(intent)) {
	case "", IntentUsers:
		users, err := e.users.Search(ctx, query, limit)
		if err != nil {
			return nil, fmt.Errorf("search users: %w", err)
		}
		out := make([]SearchResult, 0, len(users))
		for _, u := range users {
			out = append(out, SearchResult{
				UserID:            u.ID,
				Username:          u.Username,
				DisplayName:       u.DisplayName,
				ProfilePictureURL: u.ProfilePictureURL,
				CanCameo:          u.CanCameo,
			})
		}
		return out, nil
	case IntentCameo:
		chars, err := e.characters.Search(ctx, query, limit)
		if err != nil {
			return nil, fmt.Errorf("search characters: %w", err)
		}
		out := make([]SearchResult, 0, len(chars))
		for _, c := range chars {
			r := SearchResult{
				UserID:      c.OwnerID,
				Username:    c.Username,
				DisplayName: c.DisplayName,
				CanCameo:    true,
				Token:       c.Token,
			}
			if owner, err := e.users.GetByID(ctx, c.OwnerID); err == nil {
				r.ProfilePictureURL = owner.ProfilePictureURL
			} else if !errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("character owner: %w", err)
			}
			out = append(out, r)
		}
		return out, nil
	}
	return nil, domain.NewError(domain.KindInvalidValue, "intent", "intent must be users or cameo")
}
