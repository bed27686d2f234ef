package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// User is a profile owner that posts can be attributed to.
type User struct {
	ID                string
	Username          string
	DisplayName       string
	ProfilePictureURL string
	FollowerCount     int64
	FollowingCount    int64
	Verified          bool
	CanCameo          bool
	CreatedAt         time.Time
}

// Profile is the aggregate served by the profile endpoint.
type Profile struct {
	User
	PostCount int64
	LikeCount int64
	Permalink string
}

// APIToken is a bearer key issued to a client. Posts record the token that
// created them.
type APIToken struct {
	ID      int64
	Name    string
	UserID  string
	KeyHash string
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID  string
	TokenID int64
}

// HashAPIKey is the at-rest form of an API key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}
