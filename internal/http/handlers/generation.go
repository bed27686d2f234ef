package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"gengateway/internal/domain"
	"gengateway/internal/middleware"
)

type acceptedResponse struct {
	Success bool             `json:"success"`
	JobID   string           `json:"job_id"`
	Status  domain.JobStatus `json:"status"`
	PollURL string           `json:"poll_url"`
}

type artifactsResponse struct {
	Success bool              `json:"success"`
	JobID   string            `json:"job_id"`
	PostID  string            `json:"post_id,omitempty"`
	Data    []domain.Artifact `json:"data"`
}

type characterResponse struct {
	Success bool                    `json:"success"`
	JobID   string                  `json:"job_id"`
	Data    *domain.CharacterResult `json:"data"`
}

type jobView struct {
	ID        string            `json:"id"`
	Object    string            `json:"object"`
	Kind      domain.Kind       `json:"kind"`
	Model     string            `json:"model"`
	Status    domain.JobStatus  `json:"status"`
	Result    *domain.JobResult `json:"result,omitempty"`
	Error     *errorBody        `json:"error,omitempty"`
	CreatedAt int64             `json:"created_at"`
	UpdatedAt int64             `json:"updated_at"`
}

// CreateVideo handles POST /v1/videos.
func (a *App) CreateVideo(w http.ResponseWriter, r *http.Request) {
	a.submit(w, r, domain.KindVideo)
}

// CreateImage handles POST /v1/images/generations.
func (a *App) CreateImage(w http.ResponseWriter, r *http.Request) {
	a.submit(w, r, domain.KindImage)
}

// CreateCharacter handles POST /v1/characters.
func (a *App) CreateCharacter(w http.ResponseWriter, r *http.Request) {
	a.submit(w, r, domain.KindCharacter)
}

func (a *App) submit(w http.ResponseWriter, r *http.Request, kind domain.Kind) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		a.fail(w, r, domain.NewError(domain.KindUnauthorized, "", "missing credentials"))
		return
	}
	limit := a.uploadLimit()
	body := http.MaxBytesReader(w, r.Body, limit+limit/2)

	sub, err := a.Gateway.Submit(r.Context(), p, kind, body, r.Header.Get("Content-Type"))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = domain.WrapError(domain.KindInvalidValue, "", "request body too large", err)
		}
		a.fail(w, r, err)
		return
	}

	if sub.Async {
		a.json(w, http.StatusAccepted, acceptedResponse{
			Success: true,
			JobID:   sub.Ticket.Record.ID,
			Status:  sub.Ticket.Record.Status,
			PollURL: "/v1/jobs/" + sub.Ticket.Record.ID,
		})
		return
	}

	rec, err := sub.Ticket.Wait(r.Context())
	if err != nil {
		if r.Context().Err() != nil {
			// The job keeps running; its outcome stays readable via /v1/jobs.
			zerolog.Ctx(r.Context()).Info().Str("job_id", sub.Ticket.Record.ID).Msg("client left before job finished")
			return
		}
		a.fail(w, r, err)
		return
	}

	switch kind {
	case domain.KindCharacter:
		a.json(w, http.StatusOK, characterResponse{Success: true, JobID: rec.ID, Data: rec.Result.Character})
	default:
		a.json(w, http.StatusOK, artifactsResponse{
			Success: true,
			JobID:   rec.ID,
			PostID:  rec.Result.PostID,
			Data:    rec.Result.Artifacts,
		})
	}
}

// JobStatus handles GET /v1/jobs/{job_id}. Jobs are only visible to the
// user or token that submitted them.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !ownsJob(p, job) {
		a.fail(w, r, domain.NewError(domain.KindNotFound, "", "job not found"))
		return
	}
	view := jobView{
		ID:        job.ID,
		Object:    "generation.job",
		Kind:      job.Kind,
		Model:     job.Model,
		Status:    job.Status,
		Result:    job.Result,
		CreatedAt: job.CreatedAt.Unix(),
		UpdatedAt: job.UpdatedAt.Unix(),
	}
	if job.Status == domain.JobStatusFailed {
		view.Error = &errorBody{
			Kind:    job.ErrorKind,
			Message: job.Error,
			Hint:    hintFor(job.ErrorKind, middleware.LocaleFromContext(r.Context())),
		}
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "job": view})
}

func ownsJob(p domain.Principal, job *domain.JobRecord) bool {
	if p.UserID != "" && p.UserID == job.UserID {
		return true
	}
	return p.TokenID != 0 && p.TokenID == job.TokenID
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}
