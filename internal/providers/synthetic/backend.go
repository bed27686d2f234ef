// Package synthetic provides an offline generation backend for local
// development, seeded demos and tests.
package synthetic

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"gengateway/internal/domain"
	"gengateway/internal/generation"
)

// Backend fabricates artifacts after a fixed delay. URLs are derived from a
// hash of the request so identical prompts map to identical assets.
type Backend struct {
	CDNBase string
	Delay   time.Duration
}

func New(cdnBase string, delay time.Duration) *Backend {
	if cdnBase == "" {
		cdnBase = "https://cdn.example.com"
	}
	return &Backend{CDNBase: strings.TrimRight(cdnBase, "/"), Delay: delay}
}

func (b *Backend) wait(ctx context.Context) error {
	if b.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(b.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:8])
}

func dims(size, orientation string) (int, int) {
	var w, h int
	if _, err := fmt.Sscanf(size, "%dx%d", &w, &h); err == nil {
		return w, h
	}
	if orientation == "portrait" {
		return 720, 1280
	}
	return 1280, 720
}

func (b *Backend) GenerateVideo(ctx context.Context, req *generation.ValidatedRequest) ([]domain.Artifact, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	w, h := dims(req.Size, req.Orientation)
	id := digest(req.Model, req.Prompt, req.RemixTargetID, req.StyleID, req.Seconds)
	return []domain.Artifact{{
		URL:   fmt.Sprintf("%s/%s/%s.mp4", b.CDNBase, req.Model, id),
		Width: w, Height: h,
	}}, nil
}

func (b *Backend) GenerateImage(ctx context.Context, req *generation.ValidatedRequest) ([]domain.Artifact, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	w, h := dims(req.Size, req.Orientation)
	count := max(req.Count, 1)
	out := make([]domain.Artifact, 0, count)
	for i := range count {
		id := digest(req.Model, req.Prompt, req.StyleID, fmt.Sprint(i))
		a := domain.Artifact{Width: w, Height: h}
		if req.ResponseFormat == "base64" || req.ResponseFormat == "b64_json" {
			a.B64JSON = base64.StdEncoding.EncodeToString([]byte(id))
		} else {
			a.URL = fmt.Sprintf("%s/%s/%s.png", b.CDNBase, req.Model, id)
		}
		out = append(out, a)
	}
	return out, nil
}

func (b *Backend) CreateCharacter(ctx context.Context, req *generation.ValidatedRequest) (*generation.CharacterOutcome, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	return &generation.CharacterOutcome{
		BackendID: "cameo_" + digest(req.Username, fmt.Sprint(len(req.Video))),
		Message:   fmt.Sprintf("character @%s created", req.Username),
	}, nil
}

var _ generation.Backend = (*Backend)(nil)
