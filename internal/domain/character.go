package domain

import "time"

// CharacterStatus tracks whether a cameo is resolvable.
type CharacterStatus string

const (
	CharacterPending CharacterStatus = "pending"
	CharacterActive  CharacterStatus = "active"
)

// Character is a reusable identity referenced in prompts as @username.
type Character struct {
	CameoID        string
	OwnerID        string
	Username       string
	DisplayName    string
	Token          string
	SourceVideoRef string
	Timestamps     Timestamps
	Status         CharacterStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Active reports whether the record has committed.
func (c Character) Active() bool {
	return c.Status == CharacterActive
}
