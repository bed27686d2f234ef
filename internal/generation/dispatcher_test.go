package generation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gengateway/internal/adapter/memory"
	"gengateway/internal/domain"
	"gengateway/internal/infra"
)

// blockingBackend holds every call until release is closed or the call's
// context ends.
type blockingBackend struct {
	release chan struct{}
	calls   atomic.Int32
	err     error
}

func newBlockingBackend() *blockingBackend {
	return &blockingBackend{release: make(chan struct{})}
}

func (b *blockingBackend) wait(ctx context.Context) error {
	b.calls.Add(1)
	select {
	case <-b.release:
		return b.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *blockingBackend) GenerateVideo(ctx context.Context, _ *ValidatedRequest) ([]domain.Artifact, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	return []domain.Artifact{{URL: "https://cdn.example/v.mp4"}}, nil
}

func (b *blockingBackend) GenerateImage(ctx context.Context, _ *ValidatedRequest) ([]domain.Artifact, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	return []domain.Artifact{{URL: "https://cdn.example/i.png"}}, nil
}

func (b *blockingBackend) CreateCharacter(ctx context.Context, req *ValidatedRequest) (*CharacterOutcome, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	return &CharacterOutcome{BackendID: "be_1"}, nil
}

func videoJob() Job {
	return Job{
		Request:   &ValidatedRequest{GenerationJobRequest: domain.GenerationJobRequest{Kind: domain.KindVideo, Prompt: "x", Model: DefaultVideoModel}},
		Principal: domain.Principal{UserID: "u_1", TokenID: 1},
	}
}

func newTestDispatcher(b Backend, cfg DispatcherConfig) (*Dispatcher, *memory.JobStore, *infra.Metrics) {
	jobs := memory.NewJobStore()
	metrics := infra.NewMetrics()
	return NewDispatcher(b, jobs, zerolog.Nop(), metrics, cfg), jobs, metrics
}

func TestDispatchSucceedsAndCommits(t *testing.T) {
	b := newBlockingBackend()
	close(b.release)
	d, jobs, _ := newTestDispatcher(b, DispatcherConfig{MaxInFlight: 1, Timeout: time.Second})

	job := videoJob()
	job.Commit = func(_ context.Context, res *domain.JobResult) (*domain.JobResult, error) {
		res.PostID = "s_1"
		return res, nil
	}
	ticket, err := d.Dispatch(context.Background(), job)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if ticket.Record.Status != domain.JobStatusQueued {
		t.Fatalf("Status = %s, want queued", ticket.Record.Status)
	}
	final, err := ticket.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if final.Status != domain.JobStatusSucceeded || final.Result.PostID != "s_1" {
		t.Fatalf("final = %+v", final)
	}
	stored, err := jobs.GetByID(context.Background(), ticket.Record.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != domain.JobStatusSucceeded {
		t.Fatalf("stored status = %s, want succeeded", stored.Status)
	}
}

func TestDispatchRejectsWhenFull(t *testing.T) {
	b := newBlockingBackend()
	d, _, _ := newTestDispatcher(b, DispatcherConfig{MaxInFlight: 1, Timeout: time.Second})

	first, err := d.Dispatch(context.Background(), videoJob())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	var aborted error
	job := videoJob()
	job.Abort = func(_ context.Context, cause error) { aborted = cause }
	if _, err := d.Dispatch(context.Background(), job); !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("err = %v, want backend unavailable", err)
	}
	if !errors.Is(aborted, domain.ErrBackendUnavailable) {
		t.Fatalf("abort cause = %v, want backend unavailable", aborted)
	}

	close(b.release)
	if _, err := first.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if _, err := d.Dispatch(context.Background(), videoJob()); err != nil {
		t.Fatalf("slot not released: %v", err)
	}
	if err := d.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}

func TestDispatchTimeout(t *testing.T) {
	b := newBlockingBackend()
	d, jobs, _ := newTestDispatcher(b, DispatcherConfig{MaxInFlight: 1, Timeout: 20 * time.Millisecond})

	aborts := 0
	job := videoJob()
	job.Abort = func(context.Context, error) { aborts++ }
	ticket, err := d.Dispatch(context.Background(), job)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	final, err := ticket.Wait(context.Background())
	if !errors.Is(err, domain.ErrBackendTimeout) {
		t.Fatalf("err = %v, want backend timeout", err)
	}
	if final.Status != domain.JobStatusFailed || final.ErrorKind != domain.KindBackendTimeout {
		t.Fatalf("final = %+v", final)
	}
	if aborts != 1 {
		t.Fatalf("aborts = %d, want 1", aborts)
	}
	stored, _ := jobs.GetByID(context.Background(), ticket.Record.ID)
	if stored.Status != domain.JobStatusFailed {
		t.Fatalf("stored status = %s, want failed", stored.Status)
	}
}

func TestAbandonedWaitDoesNotCancelJob(t *testing.T) {
	b := newBlockingBackend()
	d, _, _ := newTestDispatcher(b, DispatcherConfig{MaxInFlight: 1, Timeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	ticket, err := d.Dispatch(ctx, videoJob())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	waitCtx, waitCancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer waitCancel()
	if _, err := ticket.Wait(waitCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait err = %v, want deadline exceeded", err)
	}
	cancel()

	close(b.release)
	final, err := ticket.Wait(context.Background())
	if err != nil {
		t.Fatalf("job was cancelled with its caller: %v", err)
	}
	if final.Status != domain.JobStatusSucceeded {
		t.Fatalf("Status = %s, want succeeded", final.Status)
	}
}

func TestCommitFailureAbortsJob(t *testing.T) {
	b := newBlockingBackend()
	close(b.release)
	d, _, _ := newTestDispatcher(b, DispatcherConfig{MaxInFlight: 2, Timeout: time.Second})

	var aborted error
	job := videoJob()
	job.Commit = func(context.Context, *domain.JobResult) (*domain.JobResult, error) {
		return nil, domain.NewError(domain.KindDuplicateUsername, domain.FieldUsername, "taken")
	}
	job.Abort = func(_ context.Context, cause error) { aborted = cause }
	ticket, err := d.Dispatch(context.Background(), job)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	final, err := ticket.Wait(context.Background())
	if !errors.Is(err, domain.ErrDuplicateUsername) {
		t.Fatalf("err = %v, want duplicate username", err)
	}
	if final.Error != "taken" {
		t.Fatalf("Error = %q, want taken", final.Error)
	}
	if !errors.Is(aborted, domain.ErrDuplicateUsername) {
		t.Fatalf("abort cause = %v", aborted)
	}
}

func TestClassifyBackendError(t *testing.T) {
	ctx := context.Background()
	if err := ClassifyBackendError(ctx, errors.New("connection refused")); !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("err = %v, want backend unavailable", err)
	}
	if err := ClassifyBackendError(ctx, context.DeadlineExceeded); !errors.Is(err, domain.ErrBackendTimeout) {
		t.Fatalf("err = %v, want backend timeout", err)
	}
	invalid := domain.NewError(domain.KindInvalidValue, domain.FieldSize, "bad size")
	if err := ClassifyBackendError(ctx, invalid); err != invalid {
		t.Fatalf("domain errors should pass through, got %v", err)
	}
}

func TestDrainWaitsForJobs(t *testing.T) {
	b := newBlockingBackend()
	d, _, _ := newTestDispatcher(b, DispatcherConfig{MaxInFlight: 1, Timeout: time.Second})
	if _, err := d.Dispatch(context.Background(), videoJob()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := d.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Drain err = %v, want deadline exceeded", err)
	}
	close(b.release)
	if err := d.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}
