// Package seed provisions configured API keys and, for demos, fake content.
package seed

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/brianvoe/gofakeit/v6"

	"gengateway/internal/domain"
	"gengateway/internal/infra"
)

// Seeder writes through the same repositories the gateway serves from.
type Seeder struct {
	Users  domain.UserRepository
	Tokens domain.TokenRepository
	Posts  domain.PostRepository
	Logger infra.Logger
}

// Bootstrap makes every configured static key usable: it creates the owning
// user and the token row when they do not exist yet.
func (s *Seeder) Bootstrap(ctx context.Context, keys []infra.StaticKey) error {
	for _, k := range keys {
		user, err := s.Users.GetByUsername(ctx, k.Username)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			user, err = s.Users.Upsert(ctx, &domain.User{
				ID:          "user_" + strings.ToLower(k.Username),
				Username:    k.Username,
				DisplayName: k.Username,
			})
			if err != nil {
				return fmt.Errorf("create user %s: %w", k.Username, err)
			}
		case err != nil:
			return fmt.Errorf("load user %s: %w", k.Username, err)
		}

		if _, err := s.Tokens.GetByID(ctx, k.TokenID); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("load token %d: %w", k.TokenID, err)
		}
		if _, err := s.Tokens.Create(ctx, &domain.APIToken{
			ID:      k.TokenID,
			Name:    k.Username,
			UserID:  user.ID,
			KeyHash: domain.HashAPIKey(k.Key),
		}); err != nil {
			return fmt.Errorf("create token %d: %w", k.TokenID, err)
		}
		s.Logger.Info().Int64("token_id", k.TokenID).Str("username", k.Username).Msg("seed: api key provisioned")
	}
	return nil
}

var handleCleaner = regexp.MustCompile(`[^a-z0-9_]`)

// FakeContent creates users and posts with deterministic fake data for the
// given seed and returns the created posts.
func (s *Seeder) FakeContent(ctx context.Context, users, posts int, seed int64) ([]domain.Post, error) {
	if users <= 0 || posts <= 0 {
		return nil, nil
	}
	f := gofakeit.New(seed)
	authors := make([]domain.User, 0, users)
	for i := 0; i < users; i++ {
		handle := handleCleaner.ReplaceAllString(strings.ToLower(f.Username()), "")
		if len(handle) < 3 {
			handle += "usr"
		}
		u, err := s.Users.Upsert(ctx, &domain.User{
			ID:                fmt.Sprintf("user_fake_%d_%d", seed, i),
			Username:          fmt.Sprintf("%s_%d", handle, i),
			DisplayName:       f.Name(),
			ProfilePictureURL: fmt.Sprintf("https://cdn.example.com/avatars/%d.png", f.Number(1, 9999)),
			FollowerCount:     int64(f.Number(0, 5000)),
			FollowingCount:    int64(f.Number(0, 500)),
			Verified:          f.Bool(),
		})
		if err != nil {
			return nil, fmt.Errorf("fake user: %w", err)
		}
		authors = append(authors, *u)
	}

	out := make([]domain.Post, 0, posts)
	for i := 0; i < posts; i++ {
		author := authors[f.Number(0, len(authors)-1)]
		clip := f.UUID()
		p, err := s.Posts.Create(ctx, &domain.Post{
			Text:      f.Sentence(f.Number(4, 12)),
			Author:    domain.Author{UserID: author.ID, Username: author.Username, DisplayName: author.DisplayName},
			LikeCount: int64(f.Number(0, 2000)),
			ViewCount: int64(f.Number(0, 50000)),
			Attachments: []domain.Attachment{{
				Kind:            "video",
				URL:             "https://cdn.example.com/seed/" + clip + ".mp4",
				DownloadableURL: "https://cdn.example.com/seed/" + clip + ".mp4",
				Width:           1280,
				Height:          720,
			}},
		})
		if err != nil {
			return nil, fmt.Errorf("fake post: %w", err)
		}
		out = append(out, *p)
	}
	s.Logger.Info().Int("users", users).Int("posts", posts).Msg("seed: fake content created")
	return out, nil
}
