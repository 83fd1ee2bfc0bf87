package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

// failingStore rejects every write, simulating a broken medium
// (quota exceeded, locked keyring, read-only filesystem).
type failingStore struct {
	saveErr error
}

func (s *failingStore) Save(ctx context.Context, key string, rec *Record) error {
	return s.saveErr
}

func (s *failingStore) Load(ctx context.Context, key string) (*Record, error) {
	return nil, ErrNotFound
}

func (s *failingStore) LoadAny(ctx context.Context, key string) (*Record, error) {
	return nil, ErrNotFound
}

func (s *failingStore) Delete(ctx context.Context, key string) error {
	return errors.New("medium rejected delete")
}

func (s *failingStore) Clear(ctx context.Context) error {
	return errors.New("medium rejected clear")
}

func TestFallback_SaveDegradesToMemory(t *testing.T) {
	primary := &failingStore{saveErr: errors.New("quota exceeded")}
	store := NewFallback(primary, zerolog.Nop())
	ctx := context.Background()

	rec := &Record{AccessToken: "degraded-token", ExpiresIn: 3600}
	if err := store.Save(ctx, "global", rec); err != nil {
		t.Fatalf("Save() should degrade, not fail: %v", err)
	}

	loaded, err := store.Load(ctx, "global")
	if err != nil {
		t.Fatalf("Load() failed after degraded save: %v", err)
	}
	if loaded.AccessToken != "degraded-token" {
		t.Errorf("AccessToken = %v, want degraded-token", loaded.AccessToken)
	}
}

func TestFallback_DeleteAndClearNeverFail(t *testing.T) {
	store := NewFallback(&failingStore{}, zerolog.Nop())
	ctx := context.Background()

	if err := store.Delete(ctx, "global"); err != nil {
		t.Errorf("Delete() = %v, want nil", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Errorf("Clear() = %v, want nil", err)
	}
}

func TestFallback_PrimaryPreferredWhenHealthy(t *testing.T) {
	primary := NewMemory()
	store := NewFallback(primary, zerolog.Nop())
	ctx := context.Background()

	if err := store.Save(ctx, "tenant:abc", &Record{AccessToken: "healthy"}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := primary.Load(ctx, "tenant:abc")
	if err != nil {
		t.Fatalf("record was not written to the primary store: %v", err)
	}
	if loaded.AccessToken != "healthy" {
		t.Errorf("AccessToken = %v, want healthy", loaded.AccessToken)
	}
}
