package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"gengateway/internal/sqlinline"
)

func TestSweepRunsBothStatements(t *testing.T) {
	exec := &stubExecutor{tag: pgconn.NewCommandTag("UPDATE 2")}
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.FixedZone("WIB", 7*3600))

	res, err := NewSweeper(exec).Sweep(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(exec.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(exec.calls))
	}
	if exec.calls[0].query != sqlinline.QFailStaleJobs || exec.calls[1].query != sqlinline.QDeleteStalePendingCharacters {
		t.Fatalf("unexpected query order")
	}
	if got := exec.calls[0].args[0].(time.Time); got.Location() != time.UTC || !got.Equal(cutoff) {
		t.Fatalf("cutoff arg = %v, want %v in UTC", got, cutoff)
	}
	if res.FailedJobs != 2 || res.ReleasedUsernames != 2 {
		t.Fatalf("res = %+v", res)
	}
}

func TestSweepStopsOnError(t *testing.T) {
	exec := &stubExecutor{err: errors.New("connection reset")}
	if _, err := NewSweeper(exec).Sweep(context.Background(), time.Now()); err == nil {
		t.Fatalf("expected error")
	}
	if len(exec.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(exec.calls))
	}
}
