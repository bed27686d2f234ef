package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gengateway/internal/domain"
)

// CharacterStore indexes characters by lowercased username. Insert is the
// uniqueness check.
type CharacterStore struct {
	mu         sync.RWMutex
	byUsername map[string]*domain.Character
	byID       map[string]string
}

func NewCharacterStore() *CharacterStore {
	return &CharacterStore{byUsername: map[string]*domain.Character{}, byID: map[string]string{}}
}

func usernameKey(u string) string { return strings.ToLower(strings.TrimSpace(u)) }

func (s *CharacterStore) Insert(_ context.Context, c *domain.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := usernameKey(c.Username)
	if _, exists := s.byUsername[key]; exists {
		return domain.ErrDuplicateUsername
	}
	cp := *c
	s.byUsername[key] = &cp
	s.byID[c.CameoID] = key
	return nil
}

func (s *CharacterStore) Activate(_ context.Context, cameoID, sourceVideoRef string) (*domain.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.lookupID(cameoID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	c.Status = domain.CharacterActive
	c.SourceVideoRef = sourceVideoRef
	c.UpdatedAt = time.Now().UTC()
	out := *c
	return &out, nil
}

func (s *CharacterStore) Delete(_ context.Context, cameoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[cameoID]
	if !ok {
		return domain.ErrNotFound
	}
	delete(s.byID, cameoID)
	delete(s.byUsername, key)
	return nil
}

func (s *CharacterStore) GetByUsername(_ context.Context, username string) (*domain.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byUsername[usernameKey(username)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (s *CharacterStore) UpdateDisplayName(_ context.Context, cameoID, displayName string) (*domain.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.lookupID(cameoID)
	if !ok || !c.Active() {
		return nil, domain.ErrNotFound
	}
	c.DisplayName = displayName
	c.UpdatedAt = time.Now().UTC()
	out := *c
	return &out, nil
}

func (s *CharacterStore) Search(_ context.Context, query string, limit int) ([]domain.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(query)
	var out []domain.Character
	for _, c := range s.byUsername {
		if !c.Active() {
			continue
		}
		if strings.Contains(strings.ToLower(c.Username), q) || strings.Contains(strings.ToLower(c.DisplayName), q) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *CharacterStore) HasActiveForOwner(_ context.Context, ownerID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.byUsername {
		if c.OwnerID == ownerID && c.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (s *CharacterStore) lookupID(cameoID string) (*domain.Character, bool) {
	key, ok := s.byID[cameoID]
	if !ok {
		return nil, false
	}
	c, ok := s.byUsername[key]
	return c, ok
}
