package domain

import (
	"math"
	"time"
)

// Attachment is one rendered artifact of a post.
type Attachment struct {
	Kind            string `json:"kind"`
	URL             string `json:"url,omitempty"`
	DownloadableURL string `json:"downloadable_url"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
}

// Author is a snapshot of the posting user taken at write time.
type Author struct {
	UserID      string
	Username    string
	DisplayName string
}

// Post is the feed read model of a generated artifact.
type Post struct {
	ID            string
	Text          string
	Author        Author
	TokenID       int64
	LikeCount     int64
	ViewCount     int64
	RemixCount    int64
	Attachments   []Attachment
	RemixTargetID string
	Score         float64
	CreatedAt     time.Time
}

// FeedOrder selects the ordering of a listing.
type FeedOrder string

const (
	OrderLatest FeedOrder = "latest"
	OrderTop    FeedOrder = "top"
)

// FeedKey is the position of an item inside an ordering. Latest orderings use
// CreatedAt, top orderings use Score; ID breaks ties in both.
type FeedKey struct {
	CreatedAt time.Time
	Score     float64
	ID        string
}

// PostQuery filters and positions a page read. MaxID bounds the read to
// posts that existed when pagination started.
type PostQuery struct {
	Order    FeedOrder
	AuthorID string
	TokenID  int64
	After    *FeedKey
	MaxID    string
	Limit    int
}

// PostStats aggregates a user's posts for profile rendering.
type PostStats struct {
	PostCount int64
	LikeCount int64
}

// ScoreWeights parameterize the popularity score of the top ordering.
type ScoreWeights struct {
	Likes float64
	Views float64
}

// DefaultScoreWeights make one like worth an hour of recency at the first
// engagement and one view worth a minute.
var DefaultScoreWeights = ScoreWeights{Likes: 3600, Views: 60}

// Score is createdAt in unix seconds plus log-damped engagement. It is
// deterministic and monotone in likes, views and recency.
func (w ScoreWeights) Score(createdAt time.Time, likes, views int64) float64 {
	base := float64(createdAt.Unix())
	return base + w.Likes*math.Log1p(float64(max(likes, 0))) + w.Views*math.Log1p(float64(max(views, 0)))
}
