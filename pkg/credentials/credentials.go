// Package credentials stores one token record per session context key.
//
// A context key is either "global" or "tenant:<tenantId>". Writing a record
// for a key fully replaces any prior record; there is no merging. Expiry is
// lazy: an expired record is reported as absent on the read path, no
// background sweep runs. Expiry applies to the access token only — a record
// carrying a refresh token is kept in storage so the refresh flow can reach
// it through LoadAny; records without one are purged outright.
//
// # Backends
//
//   - File: JSON documents in an XDG-compliant directory
//   - Keyring: system keyring (macOS Keychain, GNOME Keyring, Windows Credential Manager)
//   - Memory: process-local only, lost on exit
//
// The backend is selected by explicit configuration at startup. Durable
// backends are wrapped so that a failing write degrades to an in-memory
// shadow instead of surfacing a storage error: login and logout flows must
// never be blocked by the credential medium.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when no usable record exists for a context key.
// An expired record counts as absent.
var ErrNotFound = errors.New("credentials: record not found")

// Record is a stored token set for one context key.
type Record struct {
	// AccessToken is the bearer token attached to outgoing requests.
	AccessToken string `json:"access_token"`
	// RefreshToken is used to obtain a new access token. Optional.
	RefreshToken string `json:"refresh_token,omitempty"`
	// TokenType is the authorization scheme, normally "Bearer".
	TokenType string `json:"token_type,omitempty"`
	// ExpiresIn is the lifetime in seconds reported by the backend.
	ExpiresIn int64 `json:"expires_in,omitempty"`
	// Scope is the space-separated granted scope string.
	Scope string `json:"scope,omitempty"`
	// CreatedAt is when the record was stored.
	CreatedAt time.Time `json:"created_at"`
	// ExpiresAt is derived as CreatedAt + ExpiresIn.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the record's lifetime has passed. Records without
// an expiry never expire.
func (r *Record) Expired() bool {
	if r.ExpiresAt.IsZero() {
		return false
	}
	return !time.Now().Before(r.ExpiresAt)
}

// Valid reports whether the record carries a usable access token.
func (r *Record) Valid() bool {
	return r != nil && r.AccessToken != "" && !r.Expired()
}

// BearerType returns the authorization scheme, defaulting to "Bearer".
func (r *Record) BearerType() string {
	if r.TokenType == "" {
		return "Bearer"
	}
	return r.TokenType
}

// Clone returns a copy so callers cannot mutate stored state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// prepare validates a record before storage and derives ExpiresAt.
func prepare(rec *Record) (*Record, error) {
	if rec == nil {
		return nil, fmt.Errorf("credentials: record is nil")
	}
	if rec.AccessToken == "" {
		return nil, fmt.Errorf("credentials: access token is required")
	}

	clone := rec.Clone()
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	if clone.ExpiresAt.IsZero() && clone.ExpiresIn > 0 {
		clone.ExpiresAt = clone.CreatedAt.Add(time.Duration(clone.ExpiresIn) * time.Second)
	}
	return clone, nil
}

// Store persists token records keyed by session context.
type Store interface {
	// Save stores a record for the key, replacing any prior record.
	Save(ctx context.Context, key string, rec *Record) error
	// Load returns the record for the key. Expired records are reported
	// as ErrNotFound; those without a refresh token are deleted as well.
	Load(ctx context.Context, key string) (*Record, error)
	// LoadAny returns the record for the key regardless of expiry, so the
	// refresh flow can reach the refresh token after the access token's
	// lifetime has passed. Absent keys return ErrNotFound.
	LoadAny(ctx context.Context, key string) (*Record, error)
	// Delete removes the record for the key, if any.
	Delete(ctx context.Context, key string) error
	// Clear removes every stored record.
	Clear(ctx context.Context) error
}

// BackendType selects the storage backend.
type BackendType string

const (
	// BackendFile stores records as files under an XDG config directory.
	BackendFile BackendType = "file"
	// BackendKeyring stores records in the OS keyring.
	BackendKeyring BackendType = "keyring"
	// BackendMemory keeps records in process memory only.
	BackendMemory BackendType = "memory"
)

// Config selects and parameterizes the storage backend.
type Config struct {
	// Type is the backend type. Defaults to file.
	Type BackendType `yaml:"type" json:"type"`
	// Path overrides the directory for file storage.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	// KeyringService is the keyring service name. Defaults to the app name.
	KeyringService string `yaml:"keyring_service,omitempty" json:"keyring_service,omitempty"`
}

// New creates a store from configuration. Durable backends are wrapped with
// an in-memory fallback so write failures degrade instead of surfacing.
func New(cfg *Config, appName string, logger zerolog.Logger) (Store, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	backendType := cfg.Type
	if backendType == "" {
		backendType = BackendFile
	}

	switch backendType {
	case BackendFile:
		fs, err := NewFile(cfg, appName)
		if err != nil {
			return nil, err
		}
		return NewFallback(fs, logger), nil
	case BackendKeyring:
		return NewFallback(NewKeyring(cfg, appName), logger), nil
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("credentials: unsupported backend type: %s", backendType)
	}
}

// fallbackStore degrades to an in-memory shadow when the primary medium
// rejects a write. Delete and Clear are best-effort: failures are logged,
// never returned, so logout flows always complete.
type fallbackStore struct {
	primary Store
	shadow  *Memory
	logger  zerolog.Logger
}

// NewFallback wraps a primary store with an in-memory write fallback.
func NewFallback(primary Store, logger zerolog.Logger) Store {
	return &fallbackStore{
		primary: primary,
		shadow:  NewMemory(),
		logger:  logger,
	}
}

func (f *fallbackStore) Save(ctx context.Context, key string, rec *Record) error {
	if err := f.primary.Save(ctx, key, rec); err != nil {
		f.logger.Warn().Err(err).Str("context_key", key).
			Msg("credential write failed, falling back to in-memory storage")
		return f.shadow.Save(ctx, key, rec)
	}
	// The primary copy is now authoritative.
	_ = f.shadow.Delete(ctx, key)
	return nil
}

func (f *fallbackStore) Load(ctx context.Context, key string) (*Record, error) {
	rec, err := f.primary.Load(ctx, key)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		f.logger.Warn().Err(err).Str("context_key", key).
			Msg("credential read failed, consulting in-memory fallback")
	}
	return f.shadow.Load(ctx, key)
}

func (f *fallbackStore) LoadAny(ctx context.Context, key string) (*Record, error) {
	rec, err := f.primary.LoadAny(ctx, key)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		f.logger.Warn().Err(err).Str("context_key", key).
			Msg("credential read failed, consulting in-memory fallback")
	}
	return f.shadow.LoadAny(ctx, key)
}

func (f *fallbackStore) Delete(ctx context.Context, key string) error {
	if err := f.primary.Delete(ctx, key); err != nil {
		f.logger.Warn().Err(err).Str("context_key", key).Msg("credential delete failed")
	}
	_ = f.shadow.Delete(ctx, key)
	return nil
}

func (f *fallbackStore) Clear(ctx context.Context) error {
	if err := f.primary.Clear(ctx); err != nil {
		f.logger.Warn().Err(err).Msg("credential clear failed")
	}
	_ = f.shadow.Clear(ctx)
	return nil
}
