package registry

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gengateway/internal/adapter/memory"
	"gengateway/internal/domain"
)

type blobRecorder struct {
	mu      sync.Mutex
	puts    map[string][]byte
	deleted []string
	err     error
}

func (b *blobRecorder) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.puts == nil {
		b.puts = map[string][]byte{}
	}
	b.puts[key] = data
	return "blob://" + key, nil
}

func (b *blobRecorder) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, key)
	delete(b.puts, strings.TrimPrefix(key, "blob://"))
	return nil
}

var window = domain.Timestamps{Start: 0, End: 3}

func newTestRegistry() (*Registry, *blobRecorder) {
	blobs := &blobRecorder{}
	return New(memory.NewCharacterStore(), blobs, nil, zerolog.Nop()), blobs
}

func TestReserveCommitResolve(t *testing.T) {
	r, blobs := newTestRegistry()
	ctx := context.Background()

	res, err := r.Reserve(ctx, "u_1", "neo", "", window)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if res.DisplayName != "neo" {
		t.Fatalf("DisplayName = %q, want username fallback", res.DisplayName)
	}
	if _, err := r.Resolve(ctx, "neo"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("pending character resolved: %v", err)
	}

	c, err := r.Commit(ctx, res, []byte("mp4"))
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	wantKey := "characters/" + res.CameoID + "/source.mp4"
	if c.SourceVideoRef != "blob://"+wantKey || string(blobs.puts[wantKey]) != "mp4" {
		t.Fatalf("SourceVideoRef = %q, puts = %v", c.SourceVideoRef, blobs.puts)
	}
	if !strings.HasPrefix(c.Token, "ch_") || len(c.Token) != 27 {
		t.Fatalf("Token = %q", c.Token)
	}

	got, err := r.Resolve(ctx, "@NEO")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.CameoID != res.CameoID {
		t.Fatalf("CameoID = %q, want %q", got.CameoID, res.CameoID)
	}
}

func TestReserveRejectsDuplicates(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()
	if _, err := r.Reserve(ctx, "u_1", "neo", "", window); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	// A pending reservation still holds the name.
	if _, err := r.Reserve(ctx, "u_2", "Neo", "", window); !errors.Is(err, domain.ErrDuplicateUsername) {
		t.Fatalf("err = %v, want duplicate username", err)
	}
}

func TestReserveTimestampRange(t *testing.T) {
	r, _ := newTestRegistry()
	nan, inf := math.NaN(), math.Inf(1)
	cases := []domain.Timestamps{
		{Start: 3, End: 1},
		{Start: 2, End: 2},
		{Start: -1, End: 2},
		{Start: 0, End: nan},
		{Start: nan, End: 3},
		{Start: 0, End: inf},
	}
	for _, w := range cases {
		if _, err := r.Reserve(context.Background(), "u_1", "neo", "", w); !errors.Is(err, domain.ErrInvalidTimestampRange) {
			t.Fatalf("Reserve(%+v) err = %v, want invalid timestamp range", w, err)
		}
	}
}

func TestConcurrentReserveHasOneWinner(t *testing.T) {
	r, _ := newTestRegistry()
	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Reserve(context.Background(), "u_1", "morpheus", "", window)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins, dups := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrDuplicateUsername):
			dups++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || dups != n-1 {
		t.Fatalf("wins = %d, dups = %d", wins, dups)
	}
}

func TestReleaseFreesUsername(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()
	res, err := r.Reserve(ctx, "u_1", "neo", "", window)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	r.Release(ctx, res)
	r.Release(ctx, res)
	if _, err := r.Reserve(ctx, "u_2", "neo", "", window); err != nil {
		t.Fatalf("Reserve after release: %v", err)
	}
}

func TestCreateReleasesOnBlobFailure(t *testing.T) {
	blobs := &blobRecorder{err: errors.New("disk full")}
	r := New(memory.NewCharacterStore(), blobs, nil, zerolog.Nop())
	ctx := context.Background()
	if _, err := r.Create(ctx, "u_1", "neo", "", []byte("mp4"), window); err == nil {
		t.Fatalf("expected blob failure")
	}
	blobs.err = nil
	if _, err := r.Create(ctx, "u_1", "neo", "The One", []byte("mp4"), window); err != nil {
		t.Fatalf("Create after failure: %v", err)
	}
}

func TestCommitRemovesBlobWhenActivationFails(t *testing.T) {
	r, blobs := newTestRegistry()
	ctx := context.Background()
	res, err := r.Reserve(ctx, "u_1", "neo", "", window)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	r.Release(ctx, res)
	if _, err := r.Commit(ctx, res, []byte("mp4")); err == nil {
		t.Fatalf("Commit of a released reservation succeeded")
	}
	if len(blobs.deleted) != 1 || len(blobs.puts) != 0 {
		t.Fatalf("deleted = %v, puts = %v", blobs.deleted, blobs.puts)
	}
}

func TestRenameAndSearch(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()
	c, err := r.Create(ctx, "u_1", "neo", "", []byte("mp4"), window)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.Reserve(ctx, "u_1", "neon", "", window); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := r.Rename(ctx, c.CameoID, " "); !errors.Is(err, domain.ErrMissingField) {
		t.Fatalf("err = %v, want missing field", err)
	}
	renamed, err := r.Rename(ctx, c.CameoID, "Thomas Anderson")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if renamed.Username != "neo" || renamed.DisplayName != "Thomas Anderson" {
		t.Fatalf("renamed = %+v", renamed)
	}

	found, err := r.Search(ctx, "ne", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(found) != 1 || found[0].CameoID != c.CameoID {
		t.Fatalf("Search returned %+v, want only the committed character", found)
	}
}

func TestKeyedMutexHonoursContext(t *testing.T) {
	k := NewKeyedMutex()
	unlock, err := k.Lock(context.Background(), "neo")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := k.Lock(ctx, "neo"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	other, err := k.Lock(context.Background(), "trinity")
	if err != nil {
		t.Fatalf("independent key blocked: %v", err)
	}
	other()

	unlock()
	unlock()
	again, err := k.Lock(context.Background(), "neo")
	if err != nil {
		t.Fatalf("Lock after unlock: %v", err)
	}
	again()
	if len(k.locks) != 0 {
		t.Fatalf("locks = %d, want entries reclaimed", len(k.locks))
	}
}

func TestIdentityTokenStable(t *testing.T) {
	if IdentityToken("cameo_1", "Neo") != IdentityToken("cameo_1", "neo") {
		t.Fatalf("token should ignore username case")
	}
	if IdentityToken("cameo_1", "neo") == IdentityToken("cameo_2", "neo") {
		t.Fatalf("token should depend on cameo id")
	}
}
