package repo

import (
	"context"
	"fmt"
	"time"

	"gengateway/internal/infra"
	"gengateway/internal/sqlinline"
)

// Sweeper clears work left behind by gateway instances that stopped while
// jobs were in flight.
type Sweeper struct {
	sql infra.SQLExecutor
}

func NewSweeper(sql infra.SQLExecutor) *Sweeper {
	return &Sweeper{sql: sql}
}

// SweepResult counts the rows a sweep touched.
type SweepResult struct {
	FailedJobs        int64
	ReleasedUsernames int64
}

// Sweep fails unfinished jobs and frees pending usernames last touched before
// cutoff. cutoff must lie further back than the dispatch timeout, otherwise
// live jobs are reaped.
func (s *Sweeper) Sweep(ctx context.Context, cutoff time.Time) (SweepResult, error) {
	var res SweepResult
	tag, err := s.sql.Exec(ctx, sqlinline.QFailStaleJobs, cutoff.UTC())
	if err != nil {
		return res, fmt.Errorf("fail stale jobs: %w", err)
	}
	res.FailedJobs = tag.RowsAffected()

	tag, err = s.sql.Exec(ctx, sqlinline.QDeleteStalePendingCharacters, cutoff.UTC())
	if err != nil {
		return res, fmt.Errorf("release stale characters: %w", err)
	}
	res.ReleasedUsernames = tag.RowsAffected()
	return res, nil
}
