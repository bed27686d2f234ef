package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"gengateway/internal/domain"
	"gengateway/internal/infra"
	"gengateway/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.JobRecord) error {
	result, err := encodeResult(job.Result)
	if err != nil {
		return err
	}
	_, err = r.sql.Exec(ctx, sqlinline.QInsertJob,
		job.ID,
		string(job.Kind),
		job.Model,
		string(job.Status),
		job.UserID,
		job.TokenID,
		result,
		string(job.ErrorKind),
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

// Update writes the mutable lifecycle columns of job.
func (r *JobRepositoryPG) Update(ctx context.Context, job *domain.JobRecord) error {
	result, err := encodeResult(job.Result)
	if err != nil {
		return err
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateJob,
		job.ID,
		string(job.Status),
		result,
		string(job.ErrorKind),
		job.Error,
		job.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, id string) (*domain.JobRecord, error) {
	var (
		job                   domain.JobRecord
		kind, status, errKind string
		result                []byte
	)
	row := r.sql.QueryRow(ctx, sqlinline.QSelectJob, id)
	if err := row.Scan(
		&job.ID,
		&kind,
		&job.Model,
		&status,
		&job.UserID,
		&job.TokenID,
		&result,
		&errKind,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.Kind = domain.Kind(kind)
	job.Status = domain.JobStatus(status)
	job.ErrorKind = domain.ErrorKind(errKind)
	if len(result) > 0 {
		job.Result = &domain.JobResult{}
		if err := json.Unmarshal(result, job.Result); err != nil {
			return nil, fmt.Errorf("decode job result: %w", err)
		}
	}
	return &job, nil
}

func encodeResult(res *domain.JobResult) ([]byte, error) {
	if res == nil {
		return nil, nil
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode job result: %w", err)
	}
	return raw, nil
}
