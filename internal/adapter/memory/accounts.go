package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gengateway/internal/domain"
)

// UserStore holds profile owners.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: map[string]domain.User{}}
}

func (s *UserStore) Upsert(_ context.Context, u *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.users {
		if id != u.ID && strings.EqualFold(existing.Username, u.Username) {
			return nil, domain.ErrDuplicateUsername
		}
	}
	cp := *u
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.users[cp.ID] = cp
	return &cp, nil
}

func (s *UserStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (s *UserStore) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			out := u
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *UserStore) Search(_ context.Context, query string, limit int) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(query)
	var out []domain.User
	for _, u := range s.users {
		if strings.Contains(strings.ToLower(u.Username), q) || strings.Contains(strings.ToLower(u.DisplayName), q) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TokenStore holds API tokens keyed by id and key hash.
type TokenStore struct {
	mu     sync.RWMutex
	byID   map[int64]domain.APIToken
	byHash map[string]int64
	nextID int64
}

func NewTokenStore() *TokenStore {
	return &TokenStore{byID: map[int64]domain.APIToken{}, byHash: map[string]int64{}, nextID: 1}
}

// Create stores t, assigning an id when t.ID is zero.
func (s *TokenStore) Create(_ context.Context, t *domain.APIToken) (*domain.APIToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	if cp.ID == 0 {
		cp.ID = s.nextID
	}
	if cp.ID >= s.nextID {
		s.nextID = cp.ID + 1
	}
	if _, exists := s.byID[cp.ID]; exists {
		return nil, domain.NewError(domain.KindInvalidValue, "token_id", "token id already exists")
	}
	s.byID[cp.ID] = cp
	if cp.KeyHash != "" {
		s.byHash[cp.KeyHash] = cp.ID
	}
	return &cp, nil
}

func (s *TokenStore) GetByID(_ context.Context, id int64) (*domain.APIToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (s *TokenStore) GetByKeyHash(_ context.Context, keyHash string) (*domain.APIToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[keyHash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	t := s.byID[id]
	return &t, nil
}

// JobStore holds job records.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]domain.JobRecord
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: map[string]domain.JobRecord{}}
}

func (s *JobStore) Create(_ context.Context, job *domain.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *JobStore) Update(_ context.Context, job *domain.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return domain.ErrNotFound
	}
	s.jobs[job.ID] = *job
	return nil
}

func (s *JobStore) GetByID(_ context.Context, id string) (*domain.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &j, nil
}
