package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"gengateway/internal/domain"
	"gengateway/internal/infra"
)

// BlobStore keeps the source video a character owns.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
}

// Reservation holds a username between validation and backend completion.
type Reservation struct {
	CameoID     string
	OwnerID     string
	Username    string
	DisplayName string
	Window      domain.Timestamps
}

// Registry records cameo characters. A username is claimed by Reserve and
// becomes resolvable only once Commit succeeds.
type Registry struct {
	repo   domain.CharacterRepository
	blobs  BlobStore
	locks  Locker
	logger infra.Logger
	now    func() time.Time
}

func New(repo domain.CharacterRepository, blobs BlobStore, locks Locker, logger infra.Logger) *Registry {
	if locks == nil {
		locks = NewKeyedMutex()
	}
	return &Registry{repo: repo, blobs: blobs, locks: locks, logger: logger, now: time.Now}
}

func lockKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Reserve claims username for owner. The registry lock is released before
// returning so that no lock is held while the backend runs.
func (r *Registry) Reserve(ctx context.Context, ownerID, username, displayName string, window domain.Timestamps) (*Reservation, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, domain.NewError(domain.KindMissingField, domain.FieldUsername, "field is required")
	}
	// NaN offsets must fail this check too.
	if !(window.Start >= 0 && window.Start < window.End) || math.IsInf(window.End, 1) {
		return nil, domain.NewError(domain.KindInvalidTimestampRange, domain.FieldTimestamps,
			fmt.Sprintf("timestamps must satisfy 0 <= start < end, got %g,%g", window.Start, window.End))
	}

	unlock, err := r.locks.Lock(ctx, lockKey(username))
	if err != nil {
		return nil, fmt.Errorf("lock username: %w", err)
	}
	defer unlock()

	existing, err := r.repo.GetByUsername(ctx, username)
	switch {
	case err == nil && existing != nil:
		return nil, duplicate(username)
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("lookup username: %w", err)
	}

	if displayName = strings.TrimSpace(displayName); displayName == "" {
		displayName = username
	}
	now := r.now().UTC()
	c := &domain.Character{
		CameoID:     "cameo_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		OwnerID:     ownerID,
		Username:    username,
		DisplayName: displayName,
		Timestamps:  window,
		Status:      domain.CharacterPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	c.Token = IdentityToken(c.CameoID, c.Username)
	if err := r.repo.Insert(ctx, c); err != nil {
		if errors.Is(err, domain.ErrDuplicateUsername) {
			return nil, duplicate(username)
		}
		return nil, fmt.Errorf("reserve username: %w", err)
	}
	return &Reservation{
		CameoID:     c.CameoID,
		OwnerID:     ownerID,
		Username:    username,
		DisplayName: displayName,
		Window:      window,
	}, nil
}

// Commit stores the source video and activates the record in one write.
func (r *Registry) Commit(ctx context.Context, res *Reservation, sourceVideo []byte) (*domain.Character, error) {
	if res == nil {
		return nil, errors.New("registry: nil reservation")
	}
	ref := ""
	if r.blobs != nil && len(sourceVideo) > 0 {
		key := fmt.Sprintf("characters/%s/source.mp4", res.CameoID)
		stored, err := r.blobs.Put(ctx, key, "video/mp4", sourceVideo)
		if err != nil {
			return nil, fmt.Errorf("store source video: %w", err)
		}
		ref = stored
	}
	c, err := r.repo.Activate(ctx, res.CameoID, ref)
	if err != nil {
		if ref != "" {
			if derr := r.blobs.Delete(ctx, ref); derr != nil {
				r.logger.Warn().Err(derr).Str("key", ref).Msg("registry: orphaned source video")
			}
		}
		return nil, fmt.Errorf("activate character: %w", err)
	}
	r.logger.Info().Str("cameo_id", c.CameoID).Str("username", c.Username).Msg("registry: character committed")
	return c, nil
}

// Release frees a reservation that will never commit.
func (r *Registry) Release(ctx context.Context, res *Reservation) {
	if res == nil {
		return
	}
	if err := r.repo.Delete(ctx, res.CameoID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		r.logger.Error().Err(err).Str("cameo_id", res.CameoID).Msg("registry: release reservation failed")
	}
}

// Create reserves and commits in one call.
func (r *Registry) Create(ctx context.Context, ownerID, username, displayName string, sourceVideo []byte, window domain.Timestamps) (*domain.Character, error) {
	res, err := r.Reserve(ctx, ownerID, username, displayName, window)
	if err != nil {
		return nil, err
	}
	c, err := r.Commit(ctx, res, sourceVideo)
	if err != nil {
		r.Release(ctx, res)
		return nil, err
	}
	return c, nil
}

// Resolve returns the committed character for a handle.
func (r *Registry) Resolve(ctx context.Context, username string) (*domain.Character, error) {
	c, err := r.repo.GetByUsername(ctx, strings.TrimPrefix(strings.TrimSpace(username), "@"))
	if err != nil {
		return nil, err
	}
	if !c.Active() {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

// Rename changes the mutable display name of a committed character.
func (r *Registry) Rename(ctx context.Context, cameoID, displayName string) (*domain.Character, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, domain.NewError(domain.KindMissingField, domain.FieldDisplayName, "field is required")
	}
	return r.repo.UpdateDisplayName(ctx, cameoID, displayName)
}

// Search lists committed characters whose username or display name contains query.
func (r *Registry) Search(ctx context.Context, query string, limit int) ([]domain.Character, error) {
	return r.repo.Search(ctx, strings.TrimSpace(query), limit)
}

// IdentityToken derives the public token of a character.
func IdentityToken(cameoID, username string) string {
	sum := sha256.Sum256([]byte(cameoID + "|" + strings.ToLower(username)))
	return "ch_" + hex.EncodeToString(sum[:])[:24]
}

func duplicate(username string) error {
	return domain.NewError(domain.KindDuplicateUsername, domain.FieldUsername,
		fmt.Sprintf("username %q is already taken", username))
}
