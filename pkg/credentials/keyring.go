package credentials

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zalando/go-keyring"
)

// Keyring implements OS keyring-based record storage. Each context key maps
// to one keyring entry under the configured service name.
type Keyring struct {
	service string
}

// NewKeyring creates a keyring-based store. The service name defaults to
// the application name.
func NewKeyring(cfg *Config, appName string) *Keyring {
	service := cfg.KeyringService
	if service == "" {
		service = appName
	}
	return &Keyring{service: service}
}

// Save stores the record for the key in the OS keyring.
func (k *Keyring) Save(ctx context.Context, key string, rec *Record) error {
	prepared, err := prepare(rec)
	if err != nil {
		return err
	}

	data, err := json.Marshal(prepared)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := keyring.Set(k.service, key, string(data)); err != nil {
		return fmt.Errorf("failed to store record in keyring: %w", err)
	}

	return nil
}

// Load reads the record for the key. Expired records are absent; those
// without a refresh token are deleted from the keyring as well.
func (k *Keyring) Load(ctx context.Context, key string) (*Record, error) {
	rec, err := k.read(key)
	if err != nil {
		return nil, err
	}

	if rec.Expired() {
		if rec.RefreshToken == "" {
			_ = keyring.Delete(k.service, key)
		}
		return nil, ErrNotFound
	}

	return rec, nil
}

// LoadAny reads the record for the key regardless of expiry.
func (k *Keyring) LoadAny(ctx context.Context, key string) (*Record, error) {
	return k.read(key)
}

func (k *Keyring) read(key string) (*Record, error) {
	data, err := keyring.Get(k.service, key)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve record from keyring: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}

// Delete removes the keyring entry for the key.
func (k *Keyring) Delete(ctx context.Context, key string) error {
	if err := keyring.Delete(k.service, key); err != nil {
		if err == keyring.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete record from keyring: %w", err)
	}
	return nil
}

// Clear removes every entry stored under the service name.
func (k *Keyring) Clear(ctx context.Context) error {
	if err := keyring.DeleteAll(k.service); err != nil {
		return fmt.Errorf("failed to clear keyring entries: %w", err)
	}
	return nil
}

// Service returns the keyring service name.
func (k *Keyring) Service() string {
	return k.service
}
