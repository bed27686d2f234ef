package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"gengateway/internal/domain"
	"gengateway/internal/feed"
	"gengateway/internal/generation"
	"gengateway/internal/infra"
)

// App carries the collaborators of every HTTP handler.
type App struct {
	Config  *infra.Config
	Logger  infra.Logger
	Gateway *generation.Gateway
	Feed    *feed.Engine
	Jobs    domain.JobRepository
	Metrics *infra.Metrics
	// Ready reports dependency health for /v1/healthz. Nil means always ready.
	Ready func(ctx context.Context) error
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) uploadLimit() int64 {
	if a.Config == nil || a.Config.MaxUploadBytes <= 0 {
		return 32 << 20
	}
	return a.Config.MaxUploadBytes
}

// queryLimit reads ?limit. Absent means zero, which the feed engine replaces
// with its default.
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewError(domain.KindInvalidValue, "limit", "limit must be an integer")
	}
	return n, nil
}
