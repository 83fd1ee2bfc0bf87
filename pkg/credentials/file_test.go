package credentials

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestFileStore(t *testing.T) *File {
	t.Helper()
	store, err := NewFile(&Config{Path: t.TempDir()}, "authbridge-test")
	if err != nil {
		t.Fatalf("NewFile() failed: %v", err)
	}
	return store
}

func TestFile_SaveAndLoad(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	rec := &Record{
		AccessToken:  "file-access-token",
		RefreshToken: "file-refresh-token",
		TokenType:    "Bearer",
		ExpiresIn:    3600,
	}

	if err := store.Save(ctx, "tenant:abc", rec); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := store.Load(ctx, "tenant:abc")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.AccessToken != rec.AccessToken {
		t.Errorf("AccessToken = %v, want %v", loaded.AccessToken, rec.AccessToken)
	}
}

func TestFile_RestrictedPermissions(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "global", &Record{AccessToken: "secret"}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(store.Dir(), "global.json"))
	if err != nil {
		t.Fatalf("Stat() failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}

func TestFile_LazyExpiryRemovesFile(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	rec := &Record{
		AccessToken: "stale",
		CreatedAt:   time.Now().Add(-2 * time.Hour),
		ExpiresAt:   time.Now().Add(-1 * time.Hour),
	}
	if err := store.Save(ctx, "global", rec); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	if _, err := store.Load(ctx, "global"); err != ErrNotFound {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}

	// The expired record must not be left behind on disk.
	if _, err := os.Stat(filepath.Join(store.Dir(), "global.json")); !os.IsNotExist(err) {
		t.Errorf("expired record file still exists, stat error = %v", err)
	}
}

func TestFile_ExpiredRecordWithRefreshTokenStaysOnDisk(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	rec := &Record{
		AccessToken:  "stale",
		RefreshToken: "durable-refresh",
		CreatedAt:    time.Now().Add(-2 * time.Hour),
		ExpiresAt:    time.Now().Add(-1 * time.Hour),
	}
	if err := store.Save(ctx, "global", rec); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	if _, err := store.Load(ctx, "global"); err != ErrNotFound {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}

	// The file survives so a later process can refresh with the stored
	// refresh token.
	if _, err := os.Stat(filepath.Join(store.Dir(), "global.json")); err != nil {
		t.Fatalf("record file should still exist, stat error = %v", err)
	}

	kept, err := store.LoadAny(ctx, "global")
	if err != nil {
		t.Fatalf("LoadAny() failed: %v", err)
	}
	if kept.RefreshToken != "durable-refresh" {
		t.Errorf("RefreshToken = %v, want durable-refresh", kept.RefreshToken)
	}
}

func TestFile_DeleteMissingIsNoop(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	if err := store.Delete(ctx, "tenant:never-stored"); err != nil {
		t.Errorf("Delete() of missing record failed: %v", err)
	}
}

func TestFile_Clear(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	_ = store.Save(ctx, "global", &Record{AccessToken: "a"})
	_ = store.Save(ctx, "tenant:abc", &Record{AccessToken: "b"})

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}

	if _, err := store.Load(ctx, "global"); err != ErrNotFound {
		t.Errorf("Load(global) error = %v, want ErrNotFound", err)
	}
	if _, err := store.Load(ctx, "tenant:abc"); err != ErrNotFound {
		t.Errorf("Load(tenant:abc) error = %v, want ErrNotFound", err)
	}
}
