package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

// File implements file-based record storage, one JSON document per context
// key, under an XDG-compliant directory.
type File struct {
	dir string
}

// NewFile creates a file-based store rooted at cfg.Path, or at the
// XDG config directory for the application when no path is configured.
func NewFile(cfg *Config, appName string) (*File, error) {
	dir := cfg.Path
	if dir == "" {
		dir = filepath.Join(xdg.ConfigHome, appName, "credentials")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}

	return &File{dir: dir}, nil
}

// Save writes the record for the key with restricted permissions.
func (f *File) Save(ctx context.Context, key string, rec *Record) error {
	prepared, err := prepare(rec)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(prepared, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := os.WriteFile(f.path(key), data, 0600); err != nil {
		return fmt.Errorf("failed to write record file: %w", err)
	}

	return nil
}

// Load reads the record for the key. Expired records are absent; those
// without a refresh token are deleted from disk as well.
func (f *File) Load(ctx context.Context, key string) (*Record, error) {
	rec, err := f.read(key)
	if err != nil {
		return nil, err
	}

	if rec.Expired() {
		if rec.RefreshToken == "" {
			_ = os.Remove(f.path(key))
		}
		return nil, ErrNotFound
	}

	return rec, nil
}

// LoadAny reads the record for the key regardless of expiry.
func (f *File) LoadAny(ctx context.Context, key string) (*Record, error) {
	return f.read(key)
}

func (f *File) read(key string) (*Record, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}

// Delete removes the record file for the key.
func (f *File) Delete(ctx context.Context, key string) error {
	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete record file: %w", err)
	}
	return nil
}

// Clear removes every record file in the storage directory.
func (f *File) Clear(ctx context.Context) error {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return fmt.Errorf("failed to read credentials directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(f.dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove record file %s: %w", entry.Name(), err)
		}
	}

	return nil
}

// Dir returns the storage directory.
func (f *File) Dir() string {
	return f.dir
}

// path maps a context key to a filename. Context keys contain ":" which is
// not portable across filesystems.
func (f *File) path(key string) string {
	safe := strings.NewReplacer(":", "-", "/", "_", string(filepath.Separator), "_").Replace(key)
	return filepath.Join(f.dir, safe+".json")
}
