package repo

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type simpleRow struct {
	vals []any
	err  error
}

func (r simpleRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if r.vals == nil {
		return pgx.ErrNoRows
	}
	return assign(dest, r.vals)
}

func assign(dest, vals []any) error {
	if len(dest) != len(vals) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(vals))
	}
	for i, v := range vals {
		target := reflect.ValueOf(dest[i]).Elem()
		src := reflect.ValueOf(v)
		if !src.Type().AssignableTo(target.Type()) {
			return fmt.Errorf("scan: column %d is %s, destination is %s", i, src.Type(), target.Type())
		}
		target.Set(src)
	}
	return nil
}

type sliceRows struct {
	rows [][]any
	pos  int
}

func (r *sliceRows) Close()                                       {}
func (r *sliceRows) Err() error                                   { return nil }
func (r *sliceRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *sliceRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *sliceRows) Conn() *pgx.Conn                              { return nil }
func (r *sliceRows) RawValues() [][]byte                          { return nil }

func (r *sliceRows) Values() ([]any, error) {
	return nil, errors.New("values not supported in test rows")
}

func (r *sliceRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *sliceRows) Scan(dest ...any) error {
	return assign(dest, r.rows[r.pos-1])
}

type call struct {
	query string
	args  []any
}

type stubExecutor struct {
	calls []call
	row   simpleRow
	rows  [][]any
	tag   pgconn.CommandTag
	err   error
}

func (s *stubExecutor) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.calls = append(s.calls, call{query, args})
	return s.tag, s.err
}

func (s *stubExecutor) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	s.calls = append(s.calls, call{query, args})
	return s.row
}

func (s *stubExecutor) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	s.calls = append(s.calls, call{query, args})
	if s.err != nil {
		return nil, s.err
	}
	return &sliceRows{rows: s.rows}, nil
}

func (s *stubExecutor) last() call {
	return s.calls[len(s.calls)-1]
}
