package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"gengateway/internal/infra"
	"gengateway/internal/sqlinline"
)

const (
	ProviderBackend = "generation_backend"
)

// Store keeps upstream credentials in the integration_tokens table so keys can
// rotate without a redeploy.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// BackendAPIKey returns the stored generation backend key, or "" when none is set.
func (s *Store) BackendAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderBackend)
}

// ResolveBackendAPIKey prefers a non-empty configured key over the stored one.
func (s *Store) ResolveBackendAPIKey(ctx context.Context, configured string) (string, error) {
	if key := strings.TrimSpace(configured); key != "" {
		return key, nil
	}
	return s.BackendAPIKey(ctx)
}

func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// SetBackendAPIKey stores key and records the base URL it was issued for.
func (s *Store) SetBackendAPIKey(ctx context.Context, key, baseURL string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("backend api key is required")
	}
	var props map[string]any
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		props = map[string]any{"base_url": baseURL}
	}
	return s.upsert(ctx, ProviderBackend, key, props)
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}
