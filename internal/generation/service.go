package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gengateway/internal/domain"
	"gengateway/internal/events"
	"gengateway/internal/infra"
	"gengateway/internal/registry"
)

// CharacterRegistry is the slice of the registry the gateway drives.
type CharacterRegistry interface {
	CharacterResolver
	Reserve(ctx context.Context, ownerID, username, displayName string, window domain.Timestamps) (*registry.Reservation, error)
	Commit(ctx context.Context, res *registry.Reservation, sourceVideo []byte) (*domain.Character, error)
	Release(ctx context.Context, res *registry.Reservation)
	Rename(ctx context.Context, cameoID, displayName string) (*domain.Character, error)
}

// Gateway runs a submission through normalization, validation, reservation
// and dispatch. Every check that can reject a request runs before the
// backend is called.
type Gateway struct {
	validator  *Validator
	dispatcher *Dispatcher
	registry   CharacterRegistry
	posts      domain.PostRepository
	users      domain.UserRepository
	publisher  events.Publisher
	logger     infra.Logger
	baseURL    string
	maxMemory  int64
}

// GatewayDeps collects the collaborators of a Gateway.
type GatewayDeps struct {
	Dispatcher    *Dispatcher
	Registry      CharacterRegistry
	Posts         domain.PostRepository
	Users         domain.UserRepository
	Publisher     events.Publisher
	Logger        infra.Logger
	PublicBaseURL string
	MaxMemory     int64
}

func NewGateway(deps GatewayDeps) *Gateway {
	pub := deps.Publisher
	if pub == nil {
		pub = events.LogPublisher{Logger: deps.Logger}
	}
	return &Gateway{
		validator:  &Validator{Characters: deps.Registry},
		dispatcher: deps.Dispatcher,
		registry:   deps.Registry,
		posts:      deps.Posts,
		users:      deps.Users,
		publisher:  pub,
		logger:     deps.Logger,
		baseURL:    strings.TrimRight(deps.PublicBaseURL, "/"),
		maxMemory:  deps.MaxMemory,
	}
}

// Submission is an admitted request.
type Submission struct {
	Ticket *Ticket
	Async  bool
}

// Submit accepts a raw request body of the given kind.
func (g *Gateway) Submit(ctx context.Context, p domain.Principal, kind domain.Kind, body io.Reader, contentType string) (*Submission, error) {
	req, err := Normalize(kind, body, contentType, g.maxMemory)
	if err != nil {
		return nil, err
	}
	return g.SubmitRequest(ctx, p, req)
}

// SubmitRequest accepts an already normalized request.
func (g *Gateway) SubmitRequest(ctx context.Context, p domain.Principal, req *domain.GenerationJobRequest) (*Submission, error) {
	v, err := g.validator.Validate(ctx, req)
	if err != nil {
		return nil, err
	}

	job := Job{Request: v, Principal: p}
	if v.Kind == domain.KindCharacter {
		res, err := g.registry.Reserve(ctx, p.UserID, v.Username, v.DisplayName, v.Window)
		if err != nil {
			return nil, err
		}
		job.Commit = g.commitCharacter(res, v.Video)
		job.Abort = func(ctx context.Context, cause error) {
			g.registry.Release(ctx, res)
		}
	} else {
		job.Commit = g.commitPost(v, p)
	}

	ticket, err := g.dispatcher.Dispatch(ctx, job)
	if err != nil {
		return nil, err
	}
	return &Submission{Ticket: ticket, Async: req.Async}, nil
}

// RenameCharacter changes the display name of a character the principal owns.
// Characters owned by someone else are reported as missing.
func (g *Gateway) RenameCharacter(ctx context.Context, p domain.Principal, username, displayName string) (*domain.Character, error) {
	c, err := g.registry.Resolve(ctx, username)
	if err != nil {
		return nil, err
	}
	if p.UserID == "" || c.OwnerID != p.UserID {
		return nil, domain.NewError(domain.KindNotFound, domain.FieldUsername, "character not found")
	}
	return g.registry.Rename(ctx, c.CameoID, displayName)
}

func (g *Gateway) commitCharacter(res *registry.Reservation, video []byte) func(context.Context, *domain.JobResult) (*domain.JobResult, error) {
	return func(ctx context.Context, out *domain.JobResult) (*domain.JobResult, error) {
		c, err := g.registry.Commit(ctx, res, video)
		if err != nil {
			return nil, err
		}
		msg := ""
		if out.Character != nil {
			msg = out.Character.Message
		}
		if msg == "" {
			msg = fmt.Sprintf("character @%s is ready", c.Username)
		}
		out.Character = &domain.CharacterResult{
			CameoID:     c.CameoID,
			Username:    c.Username,
			DisplayName: c.DisplayName,
			Message:     msg,
		}
		g.publish(ctx, events.Event{Type: events.TypeCharacterCreated, Key: c.CameoID, Payload: out.Character})
		return out, nil
	}
}

func (g *Gateway) commitPost(v *ValidatedRequest, p domain.Principal) func(context.Context, *domain.JobResult) (*domain.JobResult, error) {
	return func(ctx context.Context, out *domain.JobResult) (*domain.JobResult, error) {
		author := domain.Author{UserID: p.UserID}
		if p.UserID != "" {
			u, err := g.users.GetByID(ctx, p.UserID)
			switch {
			case err == nil:
				author.Username, author.DisplayName = u.Username, u.DisplayName
			case !errors.Is(err, domain.ErrNotFound):
				return nil, fmt.Errorf("load author: %w", err)
			}
		}
		kind := "video"
		if v.Kind == domain.KindImage {
			kind = "image"
		}
		post := &domain.Post{
			Text:          v.Prompt,
			Author:        author,
			TokenID:       p.TokenID,
			RemixTargetID: v.RemixTargetID,
		}
		for _, a := range out.Artifacts {
			if a.URL == "" {
				continue
			}
			post.Attachments = append(post.Attachments, domain.Attachment{
				Kind:            kind,
				URL:             a.URL,
				DownloadableURL: a.URL,
				Width:           a.Width,
				Height:          a.Height,
			})
		}
		created, err := g.posts.Create(ctx, post)
		if err != nil {
			return nil, fmt.Errorf("persist post: %w", err)
		}
		if v.RemixTargetID != "" {
			if err := g.posts.IncrementRemixCount(ctx, v.RemixTargetID); err != nil && !errors.Is(err, domain.ErrNotFound) {
				g.logger.Warn().Err(err).Str("post_id", v.RemixTargetID).Msg("gateway: remix count update failed")
			}
		}
		permalink := g.baseURL + "/p/" + created.ID
		for i := range out.Artifacts {
			out.Artifacts[i].Permalink = permalink
		}
		out.PostID = created.ID
		g.publish(ctx, events.Event{Type: events.TypePostCreated, Key: created.ID, Payload: map[string]any{
			"post_id":  created.ID,
			"user_id":  author.UserID,
			"token_id": p.TokenID,
			"kind":     kind,
		}})
		return out, nil
	}
}

func (g *Gateway) publish(ctx context.Context, ev events.Event) {
	if err := g.publisher.Publish(ctx, ev); err != nil {
		g.logger.Warn().Err(err).Str("event", ev.Type).Str("key", ev.Key).Msg("gateway: publish event failed")
	}
}
