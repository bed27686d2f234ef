package memory

import (
	"context"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"gengateway/internal/domain"
)

// PostStore keeps posts in ID order. Create holds the write lock while it
// assigns ID, CreatedAt and Score, so both orders agree.
type PostStore struct {
	mu      sync.RWMutex
	posts   []domain.Post
	byID    map[string]int
	weights domain.ScoreWeights
	now     func() time.Time
	last    time.Time
}

func NewPostStore(weights domain.ScoreWeights) *PostStore {
	return &PostStore{byID: map[string]int{}, weights: weights, now: time.Now}
}

func (s *PostStore) Create(_ context.Context, p *domain.Post) (*domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	createdAt = createdAt.UTC().Truncate(time.Microsecond)
	if createdAt.Before(s.last) {
		createdAt = s.last
	}
	s.last = createdAt

	stored := *p
	stored.ID = "s_" + hex.EncodeToString(id[:])
	stored.CreatedAt = createdAt
	stored.Score = s.weights.Score(createdAt, p.LikeCount, p.ViewCount)
	stored.Attachments = append([]domain.Attachment(nil), p.Attachments...)
	s.byID[stored.ID] = len(s.posts)
	s.posts = append(s.posts, stored)
	out := stored
	return &out, nil
}

func (s *PostStore) HighWater(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.posts) == 0 {
		return "", nil
	}
	return s.posts[len(s.posts)-1].ID, nil
}

func (s *PostStore) List(_ context.Context, q domain.PostQuery) ([]domain.Post, error) {
	s.mu.RLock()
	matched := make([]domain.Post, 0, len(s.posts))
	for _, p := range s.posts {
		if q.MaxID != "" && p.ID > q.MaxID {
			continue
		}
		if q.AuthorID != "" && p.Author.UserID != q.AuthorID {
			continue
		}
		if q.TokenID != 0 && p.TokenID != q.TokenID {
			continue
		}
		matched = append(matched, p)
	}
	s.mu.RUnlock()

	less := latestBefore
	if q.Order == domain.OrderTop {
		less = topBefore
	}
	sort.Slice(matched, func(i, j int) bool { return less(matched[i], keyOf(matched[j])) })

	out := make([]domain.Post, 0, q.Limit)
	for _, p := range matched {
		if q.After != nil && !after(less, p, *q.After) {
			continue
		}
		out = append(out, p)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func keyOf(p domain.Post) domain.FeedKey {
	return domain.FeedKey{CreatedAt: p.CreatedAt, Score: p.Score, ID: p.ID}
}

// after reports whether p sorts strictly after k in the listing.
func after(less func(domain.Post, domain.FeedKey) bool, p domain.Post, k domain.FeedKey) bool {
	return !less(p, k) && p.ID != k.ID
}

// latestBefore reports whether p precedes k in newest-first order.
func latestBefore(p domain.Post, k domain.FeedKey) bool {
	if !p.CreatedAt.Equal(k.CreatedAt) {
		return p.CreatedAt.After(k.CreatedAt)
	}
	return p.ID > k.ID
}

// topBefore reports whether p precedes k in highest-score-first order.
func topBefore(p domain.Post, k domain.FeedKey) bool {
	if p.Score != k.Score {
		return p.Score > k.Score
	}
	return p.ID > k.ID
}

func (s *PostStore) IncrementRemixCount(_ context.Context, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[postID]
	if !ok {
		return domain.ErrNotFound
	}
	s.posts[idx].RemixCount++
	return nil
}

func (s *PostStore) Stats(_ context.Context, authorID string) (domain.PostStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st domain.PostStats
	for _, p := range s.posts {
		if p.Author.UserID == authorID {
			st.PostCount++
			st.LikeCount += p.LikeCount
		}
	}
	return st, nil
}
