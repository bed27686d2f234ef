package infra

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLExecutor is what repositories need from the database. Every query text
// starts with a "--sql <uuid>" marker line that identifies it in logs.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

var markerRegexp = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// ErrMissingMarker rejects query text without a valid marker line.
var ErrMissingMarker = errors.New("sql marker missing or invalid")

// SQLRunner strips markers before handing queries to the pool and logs each
// statement by marker at debug level.
type SQLRunner struct {
	Pool   *pgxpool.Pool
	Logger Logger
}

func NewSQLRunner(pool *pgxpool.Pool, logger Logger) *SQLRunner {
	return &SQLRunner{Pool: pool, Logger: logger}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	marker, stmt, err := extractMarker(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	started := time.Now()
	tag, err := r.Pool.Exec(ctx, stmt, args...)
	r.done(marker, "exec", started, err)
	return tag, err
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	marker, stmt, err := extractMarker(query)
	if err != nil {
		return errorRow{err: err}
	}
	return loggingRow{
		row:     r.Pool.QueryRow(ctx, stmt, args...),
		runner:  r,
		marker:  marker,
		started: time.Now(),
	}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	marker, stmt, err := extractMarker(query)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	rows, err := r.Pool.Query(ctx, stmt, args...)
	if err != nil {
		r.done(marker, "query", started, err)
		return nil, err
	}
	return &loggingRows{Rows: rows, runner: r, marker: marker, started: started}, nil
}

func (r *SQLRunner) done(marker, op string, started time.Time, err error) {
	elapsed := time.Since(started)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		r.Logger.Error().Err(err).Str("sql", marker).Str("op", op).Dur("elapsed", elapsed).Msg("sql failed")
		return
	}
	r.Logger.Debug().Str("sql", marker).Str("op", op).Dur("elapsed", elapsed).Msg("sql ok")
}

type loggingRow struct {
	row     pgx.Row
	runner  *SQLRunner
	marker  string
	started time.Time
}

func (l loggingRow) Scan(dest ...any) error {
	err := l.row.Scan(dest...)
	l.runner.done(l.marker, "query_row", l.started, err)
	return err
}

type loggingRows struct {
	pgx.Rows
	runner  *SQLRunner
	marker  string
	started time.Time
	closed  bool
}

func (l *loggingRows) Close() {
	l.Rows.Close()
	if !l.closed {
		l.closed = true
		l.runner.done(l.marker, "query", l.started, l.Rows.Err())
	}
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(...any) error {
	return e.err
}

// extractMarker splits a query into its marker id and the statement text.
func extractMarker(query string) (string, string, error) {
	first, rest, _ := strings.Cut(strings.TrimSpace(query), "\n")
	first = strings.TrimSpace(first)
	if !markerRegexp.MatchString(first) {
		return "", "", ErrMissingMarker
	}
	return strings.TrimPrefix(first, "--sql "), rest, nil
}

var _ SQLExecutor = (*SQLRunner)(nil)
