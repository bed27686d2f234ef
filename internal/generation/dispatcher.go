package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"gengateway/internal/domain"
	"gengateway/internal/infra"
)

// Backend is the external generation service.
type Backend interface {
	GenerateVideo(ctx context.Context, req *ValidatedRequest) ([]domain.Artifact, error)
	GenerateImage(ctx context.Context, req *ValidatedRequest) ([]domain.Artifact, error)
	CreateCharacter(ctx context.Context, req *ValidatedRequest) (*CharacterOutcome, error)
}

// CharacterOutcome is what the backend reports for a cameo extraction.
type CharacterOutcome struct {
	BackendID string
	Message   string
}

// Job is one unit of dispatch. Commit persists the backend outcome and runs
// before the job is reported as succeeded. Abort runs once on any failure,
// including rejection at admission.
type Job struct {
	Request   *ValidatedRequest
	Principal domain.Principal
	Commit    func(ctx context.Context, res *domain.JobResult) (*domain.JobResult, error)
	Abort     func(ctx context.Context, cause error)
}

// Ticket is returned once a job is admitted.
type Ticket struct {
	Record domain.JobRecord
	done   chan struct{}
	final  *domain.JobRecord
	err    error
}

// Wait blocks until the job finishes or ctx ends. Abandoning the wait does
// not cancel the job.
func (t *Ticket) Wait(ctx context.Context) (*domain.JobRecord, error) {
	select {
	case <-t.done:
		return t.final, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DispatcherConfig bounds backend usage.
type DispatcherConfig struct {
	MaxInFlight int
	Timeout     time.Duration
}

// Dispatcher hands validated requests to the backend on background goroutines.
type Dispatcher struct {
	backend Backend
	jobs    domain.JobRepository
	logger  infra.Logger
	metrics *infra.Metrics
	timeout time.Duration
	slots   chan struct{}
	wg      sync.WaitGroup
	now     func() time.Time
}

// NewDispatcher builds a dispatcher. metrics may be nil.
func NewDispatcher(backend Backend, jobs domain.JobRepository, logger infra.Logger, metrics *infra.Metrics, cfg DispatcherConfig) *Dispatcher {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 16
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &Dispatcher{
		backend: backend,
		jobs:    jobs,
		logger:  logger,
		metrics: metrics,
		timeout: cfg.Timeout,
		slots:   make(chan struct{}, cfg.MaxInFlight),
		now:     time.Now,
	}
}

// Dispatch admits a job and starts it. Admission fails with
// BackendUnavailable when every slot is taken; nothing is retried.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) (*Ticket, error) {
	kind := string(job.Request.Kind)
	select {
	case d.slots <- struct{}{}:
	default:
		err := domain.NewError(domain.KindBackendUnavailable, "", "generation capacity exhausted, retry later")
		if d.metrics != nil {
			d.metrics.JobsRejected.WithLabelValues(kind).Inc()
		}
		d.abort(ctx, job, err)
		return nil, err
	}

	now := d.now().UTC()
	record := domain.JobRecord{
		ID:        "job_" + uuid.NewString(),
		Kind:      job.Request.Kind,
		Model:     job.Request.Model,
		Status:    domain.JobStatusQueued,
		UserID:    job.Principal.UserID,
		TokenID:   job.Principal.TokenID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.jobs.Create(ctx, &record); err != nil {
		<-d.slots
		d.abort(ctx, job, err)
		return nil, fmt.Errorf("record job: %w", err)
	}

	ticket := &Ticket{Record: record, done: make(chan struct{})}
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	d.wg.Add(1)
	if d.metrics != nil {
		d.metrics.JobsDispatched.WithLabelValues(kind).Inc()
		d.metrics.JobsInFlight.Inc()
	}
	go func() {
		defer d.wg.Done()
		defer cancel()
		final, err := d.run(runCtx, job, record)
		<-d.slots
		if d.metrics != nil {
			d.metrics.JobsInFlight.Dec()
		}
		ticket.final, ticket.err = final, err
		close(ticket.done)
	}()
	return ticket, nil
}

func (d *Dispatcher) run(ctx context.Context, job Job, record domain.JobRecord) (*domain.JobRecord, error) {
	log := d.logger.With().Str("job_id", record.ID).Str("kind", string(record.Kind)).Logger()
	record.Status = domain.JobStatusRunning
	record.UpdatedAt = d.now().UTC()
	if err := d.jobs.Update(ctx, &record); err != nil {
		log.Warn().Err(err).Msg("dispatcher: mark running failed")
	}

	started := time.Now()
	result, err := d.call(ctx, job.Request)
	if d.metrics != nil {
		d.metrics.BackendLatency.WithLabelValues(string(record.Kind)).Observe(time.Since(started).Seconds())
	}
	if err != nil {
		err = ClassifyBackendError(ctx, err)
	} else if job.Commit != nil {
		result, err = job.Commit(ctx, result)
	}
	if err != nil {
		d.abort(ctx, job, err)
		record.Status = domain.JobStatusFailed
		record.ErrorKind = domain.KindOf(err)
		record.Error = publicMessage(err)
		record.UpdatedAt = d.now().UTC()
		if uerr := d.jobs.Update(ctx, &record); uerr != nil {
			log.Error().Err(uerr).Msg("dispatcher: mark failed failed")
		}
		if d.metrics != nil {
			d.metrics.JobsFailed.WithLabelValues(string(record.Kind), string(record.ErrorKind)).Inc()
		}
		log.Error().Err(err).Msg("dispatcher: job failed")
		return &record, err
	}

	record.Status = domain.JobStatusSucceeded
	record.Result = result
	record.UpdatedAt = d.now().UTC()
	if uerr := d.jobs.Update(ctx, &record); uerr != nil {
		log.Error().Err(uerr).Msg("dispatcher: mark succeeded failed")
	}
	log.Info().Dur("elapsed", time.Since(started)).Msg("dispatcher: job succeeded")
	return &record, nil
}

func (d *Dispatcher) call(ctx context.Context, req *ValidatedRequest) (*domain.JobResult, error) {
	switch req.Kind {
	case domain.KindVideo:
		artifacts, err := d.backend.GenerateVideo(ctx, req)
		if err != nil {
			return nil, err
		}
		return artifactResult(artifacts)
	case domain.KindImage:
		artifacts, err := d.backend.GenerateImage(ctx, req)
		if err != nil {
			return nil, err
		}
		return artifactResult(artifacts)
	case domain.KindCharacter:
		outcome, err := d.backend.CreateCharacter(ctx, req)
		if err != nil {
			return nil, err
		}
		return &domain.JobResult{Character: &domain.CharacterResult{
			Username:    req.Username,
			DisplayName: req.DisplayName,
			Message:     outcome.Message,
		}}, nil
	}
	return nil, fmt.Errorf("unsupported kind %q", req.Kind)
}

func artifactResult(artifacts []domain.Artifact) (*domain.JobResult, error) {
	if len(artifacts) == 0 {
		return nil, domain.NewError(domain.KindBackendUnavailable, "", "backend returned no artifacts")
	}
	return &domain.JobResult{Artifacts: artifacts}, nil
}

func (d *Dispatcher) abort(ctx context.Context, job Job, cause error) {
	if job.Abort != nil {
		job.Abort(context.WithoutCancel(ctx), cause)
	}
}

// Drain waits for in-flight jobs, or until ctx ends.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClassifyBackendError maps transport failures to dispatch error kinds.
func ClassifyBackendError(ctx context.Context, err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.WrapError(domain.KindBackendTimeout, "", "generation backend timed out", err)
	}
	return domain.WrapError(domain.KindBackendUnavailable, "", "generation backend unavailable", err)
}

func publicMessage(err error) string {
	var de *domain.Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return "generation failed"
}
