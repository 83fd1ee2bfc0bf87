package credentials

import (
	"context"
	"testing"
	"time"
)

func TestMemory_SaveAndLoad(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	rec := &Record{
		AccessToken:  "test-access-token",
		RefreshToken: "test-refresh-token",
		TokenType:    "Bearer",
		ExpiresIn:    3600,
		Scope:        "read write",
	}

	err := store.Save(ctx, "global", rec)
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := store.Load(ctx, "global")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if loaded.AccessToken != rec.AccessToken {
		t.Errorf("AccessToken = %v, want %v", loaded.AccessToken, rec.AccessToken)
	}
	if loaded.RefreshToken != rec.RefreshToken {
		t.Errorf("RefreshToken = %v, want %v", loaded.RefreshToken, rec.RefreshToken)
	}
	if loaded.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set on save")
	}
	want := loaded.CreatedAt.Add(3600 * time.Second)
	if !loaded.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", loaded.ExpiresAt, want)
	}
}

func TestMemory_LoadNotFound(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_, err := store.Load(ctx, "global")
	if err != ErrNotFound {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestMemory_LazyExpiryPurge(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	rec := &Record{
		AccessToken: "short-lived",
		CreatedAt:   time.Now().Add(-2 * time.Hour),
		ExpiresAt:   time.Now().Add(-1 * time.Hour),
	}

	if err := store.Save(ctx, "global", rec); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	// First read purges the expired record.
	_, err := store.Load(ctx, "global")
	if err != ErrNotFound {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}

	// Second read is idempotent: still absent, no error beyond not-found.
	_, err = store.Load(ctx, "global")
	if err != ErrNotFound {
		t.Errorf("second Load() error = %v, want ErrNotFound", err)
	}
}

func TestMemory_ExpiredRecordWithRefreshTokenIsRetained(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	rec := &Record{
		AccessToken:  "stale-access",
		RefreshToken: "still-good-refresh",
		CreatedAt:    time.Now().Add(-2 * time.Hour),
		ExpiresAt:    time.Now().Add(-1 * time.Hour),
	}

	if err := store.Save(ctx, "global", rec); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	if _, err := store.Load(ctx, "global"); err != ErrNotFound {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}

	// The record survives the expired read so the refresh flow can still
	// reach the refresh token.
	kept, err := store.LoadAny(ctx, "global")
	if err != nil {
		t.Fatalf("LoadAny() failed: %v", err)
	}
	if kept.RefreshToken != "still-good-refresh" {
		t.Errorf("RefreshToken = %v, want still-good-refresh", kept.RefreshToken)
	}
}

func TestMemory_LoadAnyNotFound(t *testing.T) {
	store := NewMemory()

	_, err := store.LoadAny(context.Background(), "global")
	if err != ErrNotFound {
		t.Errorf("LoadAny() error = %v, want ErrNotFound", err)
	}
}

func TestMemory_SaveReplacesRecord(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	first := &Record{AccessToken: "token-1", RefreshToken: "refresh-1"}
	second := &Record{AccessToken: "token-2"}

	_ = store.Save(ctx, "tenant:abc", first)
	_ = store.Save(ctx, "tenant:abc", second)

	loaded, err := store.Load(ctx, "tenant:abc")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.AccessToken != "token-2" {
		t.Errorf("AccessToken = %v, want token-2", loaded.AccessToken)
	}
	// Full replacement, no merge: the old refresh token must not survive.
	if loaded.RefreshToken != "" {
		t.Errorf("RefreshToken = %v, want empty", loaded.RefreshToken)
	}
}

func TestMemory_KeysAreIsolated(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_ = store.Save(ctx, "global", &Record{AccessToken: "global-token"})
	_ = store.Save(ctx, "tenant:abc", &Record{AccessToken: "tenant-token"})

	if err := store.Delete(ctx, "tenant:abc"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	loaded, err := store.Load(ctx, "global")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.AccessToken != "global-token" {
		t.Errorf("AccessToken = %v, want global-token", loaded.AccessToken)
	}
}

func TestMemory_SaveInvalid(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.Save(ctx, "global", nil); err == nil {
		t.Error("Save() should fail for nil record")
	}
	if err := store.Save(ctx, "global", &Record{}); err == nil {
		t.Error("Save() should fail for record without access token")
	}
}

func TestMemory_Clear(t *testing.T) {
	store := NewMemory()
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

func TestMemory_LoadReturnsCopy(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_ = store.Save(ctx, "global", &Record{AccessToken: "original"})

	loaded, _ := store.Load(ctx, "global")
	loaded.AccessToken = "mutated"

	again, _ := store.Load(ctx, "global")
	if again.AccessToken != "original" {
		t.Errorf("AccessToken = %v, want original", again.AccessToken)
	}
}
