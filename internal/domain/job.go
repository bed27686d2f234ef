package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Artifact is one produced output of a generation job.
type Artifact struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	Permalink     string `json:"permalink,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
	Width         int    `json:"-"`
	Height        int    `json:"-"`
}

// CharacterResult describes a committed cameo.
type CharacterResult struct {
	CameoID     string `json:"cameo_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Message     string `json:"message,omitempty"`
}

// JobResult is the outcome payload of a succeeded job.
type JobResult struct {
	Artifacts []Artifact       `json:"artifacts,omitempty"`
	Character *CharacterResult `json:"character,omitempty"`
	PostID    string           `json:"post_id,omitempty"`
}

// JobRecord tracks a dispatched generation job.
type JobRecord struct {
	ID        string
	Kind      Kind
	Model     string
	Status    JobStatus
	UserID    string
	TokenID   int64
	Result    *JobResult
	ErrorKind ErrorKind
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Terminal reports whether the job has finished.
func (j JobRecord) Terminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}
