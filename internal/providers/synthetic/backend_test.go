package synthetic

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gengateway/internal/domain"
	"gengateway/internal/generation"
)

func TestGenerateVideoIsDeterministic(t *testing.T) {
	b := New("https://cdn.test/", 0)
	req := &generation.ValidatedRequest{GenerationJobRequest: domain.GenerationJobRequest{
		Prompt: "waves", Model: "sora-video-10s", Orientation: "portrait",
	}}
	first, err := b.GenerateVideo(context.Background(), req)
	if err != nil {
		t.Fatalf("GenerateVideo: %v", err)
	}
	second, _ := b.GenerateVideo(context.Background(), req)
	if first[0].URL != second[0].URL {
		t.Fatalf("urls differ: %q vs %q", first[0].URL, second[0].URL)
	}
	if !strings.HasPrefix(first[0].URL, "https://cdn.test/sora-video-10s/") {
		t.Fatalf("url = %q", first[0].URL)
	}
	if first[0].Width != 720 || first[0].Height != 1280 {
		t.Fatalf("dimensions = %dx%d, want 720x1280", first[0].Width, first[0].Height)
	}
}

func TestGenerateImageHonorsCountAndFormat(t *testing.T) {
	b := New("", 0)
	arts, err := b.GenerateImage(context.Background(), &generation.ValidatedRequest{
		GenerationJobRequest: domain.GenerationJobRequest{Prompt: "p", Model: "sora-image", ResponseFormat: "base64"},
		Count:                3,
	})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if len(arts) != 3 {
		t.Fatalf("len = %d, want 3", len(arts))
	}
	for _, a := range arts {
		if a.B64JSON == "" || a.URL != "" {
			t.Fatalf("artifact = %+v, want base64 only", a)
		}
	}
}

func TestDelayRespectsContext(t *testing.T) {
	b := New("", time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := b.CreateCharacter(ctx, &generation.ValidatedRequest{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}
