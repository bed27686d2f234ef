package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStorePutAndOpen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	key, err := store.Put(context.Background(), "/characters/cameo_1/source.mp4", "video/mp4", []byte("mp4"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if key != "characters/cameo_1/source.mp4" {
		t.Fatalf("key = %q, want leading slash stripped", key)
	}
	data, err := store.Open(key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(data) != "mp4" {
		t.Fatalf("data = %q, want mp4", data)
	}
	if _, err := os.Stat(filepath.Join(dir, "characters", "cameo_1", "source.mp4.part")); !os.IsNotExist(err) {
		t.Fatalf("temporary file left behind: %v", err)
	}
}

func TestFileStoreDelete(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	key, err := store.Put(ctx, "characters/cameo_1/source.mp4", "video/mp4", []byte("mp4"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Open(key); !os.IsNotExist(err) {
		t.Fatalf("Open after delete err = %v, want not exist", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if err := store.Delete(ctx, "../outside"); err == nil {
		t.Fatalf("escaping key accepted")
	}
}

func TestFileStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	for _, key := range []string{"", "  ", "..", "../etc/passwd", "a/../../b", `..\windows`} {
		if _, err := store.Put(context.Background(), key, "", []byte("x")); err == nil {
			t.Fatalf("Put(%q) succeeded, want error", key)
		}
	}
}

func TestFileStoreHonoursContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Put(ctx, "a.bin", "", []byte("x")); err == nil {
		t.Fatalf("Put with cancelled context succeeded")
	}
}

func TestNewFileStoreRequiresPath(t *testing.T) {
	if _, err := NewFileStore(" "); err == nil {
		t.Fatalf("expected error for empty base path")
	}
}
