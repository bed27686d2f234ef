package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"gengateway/internal/domain"
	"gengateway/internal/feed"
)

type authorView struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
}

type feedItem struct {
	ID              string              `json:"id"`
	Text            string              `json:"text"`
	Permalink       string              `json:"permalink"`
	PreviewImageURL string              `json:"preview_image_url,omitempty"`
	PostedAt        float64             `json:"posted_at"`
	LikeCount       int64               `json:"like_count"`
	ViewCount       int64               `json:"view_count"`
	RemixCount      int64               `json:"remix_count"`
	RemixTargetID   string              `json:"remix_target_post_id,omitempty"`
	Attachments     []domain.Attachment `json:"attachments"`
	Author          authorView          `json:"author"`
}

type feedResponse struct {
	Success bool       `json:"success"`
	Cut     string     `json:"cut,omitempty"`
	UserID  string     `json:"user_id,omitempty"`
	TokenID int64      `json:"token_id,omitempty"`
	Count   int        `json:"count"`
	Cursor  *string    `json:"cursor"`
	Items   []feedItem `json:"items"`
}

func (a *App) feedItems(posts []domain.Post) []feedItem {
	out := make([]feedItem, 0, len(posts))
	for _, p := range posts {
		item := feedItem{
			ID:            p.ID,
			Text:          p.Text,
			Permalink:     a.Feed.Permalink(p.ID),
			PostedAt:      unixSeconds(p.CreatedAt),
			LikeCount:     p.LikeCount,
			ViewCount:     p.ViewCount,
			RemixCount:    p.RemixCount,
			RemixTargetID: p.RemixTargetID,
			Attachments:   p.Attachments,
			Author: authorView{
				UserID:      p.Author.UserID,
				Username:    p.Author.Username,
				DisplayName: p.Author.DisplayName,
			},
		}
		if item.Attachments == nil {
			item.Attachments = []domain.Attachment{}
		}
		for _, att := range p.Attachments {
			if att.Kind == "image" {
				item.PreviewImageURL = att.URL
				break
			}
		}
		out = append(out, item)
	}
	return out
}

// GlobalFeed handles GET /api/feed.
func (a *App) GlobalFeed(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	cut := q.Get("cut")
	page, err := a.Feed.Page(r.Context(), cut, limit, q.Get("cursor"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if cut == "" {
		cut = "nf2_latest"
	}
	items := a.feedItems(page.Items)
	a.json(w, http.StatusOK, feedResponse{Success: true, Cut: cut, Count: len(items), Cursor: page.Cursor, Items: items})
}

// UserFeed handles GET /api/user/{user_id}/feed.
func (a *App) UserFeed(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	userID := chi.URLParam(r, "user_id")
	page, err := a.Feed.UserPage(r.Context(), userID, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := a.feedItems(page.Items)
	a.json(w, http.StatusOK, feedResponse{Success: true, UserID: userID, Count: len(items), Cursor: page.Cursor, Items: items})
}

// TokenFeed handles GET /api/tokens/{token_id}/profile-feed. A token id that
// does not parse cannot exist, so it is reported the same as an unknown one.
func (a *App) TokenFeed(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	tokenID, perr := strconv.ParseInt(chi.URLParam(r, "token_id"), 10, 64)
	if perr != nil || tokenID <= 0 {
		a.fail(w, r, domain.NewError(domain.KindNotFound, "", "token not found"))
		return
	}
	page, err := a.Feed.TokenPage(r.Context(), tokenID, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := a.feedItems(page.Items)
	a.json(w, http.StatusOK, feedResponse{Success: true, TokenID: tokenID, Count: len(items), Cursor: page.Cursor, Items: items})
}

type profileView struct {
	UserID            string  `json:"user_id"`
	Username          string  `json:"username"`
	DisplayName       string  `json:"display_name"`
	ProfilePictureURL string  `json:"profile_picture_url,omitempty"`
	FollowerCount     int64   `json:"follower_count"`
	FollowingCount    int64   `json:"following_count"`
	PostCount         int64   `json:"post_count"`
	LikesReceived     int64   `json:"likes_received_count"`
	Verified          bool    `json:"verified"`
	CanCameo          bool    `json:"can_cameo"`
	Permalink         string  `json:"permalink"`
	CreatedAt         float64 `json:"created_at"`
}

// Profile handles GET /api/profile/{username}.
func (a *App) Profile(w http.ResponseWriter, r *http.Request) {
	p, err := a.Feed.Profile(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"success": true,
		"profile": profileView{
			UserID:            p.ID,
			Username:          p.Username,
			DisplayName:       p.DisplayName,
			ProfilePictureURL: p.ProfilePictureURL,
			FollowerCount:     p.FollowerCount,
			FollowingCount:    p.FollowingCount,
			PostCount:         p.PostCount,
			LikesReceived:     p.LikeCount,
			Verified:          p.Verified,
			CanCameo:          p.CanCameo,
			Permalink:         p.Permalink,
			CreatedAt:         unixSeconds(p.CreatedAt),
		},
	})
}

type searchItem struct {
	UserID            string `json:"user_id"`
	Username          string `json:"username"`
	DisplayName       string `json:"display_name,omitempty"`
	ProfilePictureURL string `json:"profile_picture_url,omitempty"`
	CanCameo          bool   `json:"can_cameo"`
	Token             string `json:"token,omitempty"`
}

// SearchCharacters handles GET /api/characters/search.
func (a *App) SearchCharacters(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	intent := strings.ToLower(strings.TrimSpace(q.Get("intent")))
	if intent == "" {
		intent = feed.IntentUsers
	}
	results, err := a.Feed.Search(r.Context(), q.Get("username"), intent, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]searchItem, 0, len(results))
	for _, res := range results {
		items = append(items, searchItem(res))
	}
	a.json(w, http.StatusOK, map[string]any{
		"success": true,
		"intent":  intent,
		"count":   len(items),
		"results": items,
	})
}
