package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/authbridge/authbridge/pkg/credentials"
)

// Snapshot is the durable shape of the manager: the active mode plus the
// non-secret state of each context. Tokens are never part of a snapshot,
// they live in the credential store and are reattached on restore.
type Snapshot struct {
	CurrentMode Mode                   `yaml:"current_mode"`
	Contexts    map[Mode]*ContextState `yaml:"contexts,omitempty"`
}

// ContextState is the persisted state of one context mode.
type ContextState struct {
	User          *User        `yaml:"user,omitempty"`
	Authenticated bool         `yaml:"authenticated"`
	TenantID      string       `yaml:"tenant_id,omitempty"`
	Roles         []string     `yaml:"roles,omitempty"`
	Permissions   []Permission `yaml:"permissions,omitempty"`
	Timestamp     time.Time    `yaml:"timestamp"`
}

// SnapshotStore persists snapshots across process restarts.
type SnapshotStore interface {
	Load() (*Snapshot, error)
	Save(snap *Snapshot) error
	Clear() error
}

// FileStore persists snapshots as a YAML file, one per application, under
// a state directory.
type FileStore struct {
	path string
}

// NewFileStore creates a snapshot store writing to dir/session.yaml.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, "session.yaml")}
}

// Load reads the snapshot from disk. A missing file yields a nil snapshot,
// not an error: first run has no session yet.
func (s *FileStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session state: %w", err)
	}

	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse session state: %w", err)
	}
	if snap.CurrentMode != ModeGlobal && snap.CurrentMode != ModeTenant {
		snap.CurrentMode = ModeGlobal
	}
	return &snap, nil
}

// Save writes the snapshot atomically: marshal to a temporary file, then
// rename over the target so a crash never leaves a torn state file.
func (s *FileStore) Save(snap *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace session state: %w", err)
	}
	return nil
}

// Clear removes the snapshot file, if any.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session state: %w", err)
	}
	return nil
}

// Path returns the snapshot file location.
func (s *FileStore) Path() string {
	return s.path
}

// Persist attaches a snapshot store. From now on every state mutation is
// written through, best-effort: a failing save is logged and never blocks
// the operation that caused it.
func (m *Manager) Persist(store SnapshotStore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persist = store
}

// Snapshot captures the manager's current durable state.
func (m *Manager) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Restore replaces the manager's state from a snapshot, as happens once at
// startup. tokens resolves the token record for a context; restored records
// may be expired, which keeps the context resumable through its refresh
// token rather than discarded. A context whose resolver yields no record at
// all is dropped: without credentials it could neither authenticate nor
// refresh. A nil snapshot is a no-op.
func (m *Manager) Restore(snap *Snapshot, tokens func(mode Mode, key string) *credentials.Record) {
	if snap == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = snap.CurrentMode
	if m.current != ModeGlobal && m.current != ModeTenant {
		m.current = ModeGlobal
	}

	m.states = make(map[Mode]*State)
	for mode, cs := range snap.Contexts {
		if cs == nil || (mode != ModeGlobal && mode != ModeTenant) {
			continue
		}
		st := &State{
			Authenticated: cs.Authenticated,
			TenantID:      cs.TenantID,
			Roles:         append([]string(nil), cs.Roles...),
			Permissions:   append([]Permission(nil), cs.Permissions...),
			Timestamp:     cs.Timestamp,
		}
		if cs.User != nil {
			user := *cs.User
			user.Roles = append([]string(nil), cs.User.Roles...)
			st.User = &user
		}
		if tokens != nil {
			rec := tokens(mode, Key(mode, cs.TenantID))
			if rec == nil {
				continue
			}
			st.Tokens = rec
		}
		m.states[mode] = st
	}
}

func (m *Manager) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		CurrentMode: m.current,
		Contexts:    make(map[Mode]*ContextState, len(m.states)),
	}
	for mode, st := range m.states {
		cs := &ContextState{
			Authenticated: st.Authenticated,
			TenantID:      st.TenantID,
			Roles:         append([]string(nil), st.Roles...),
			Permissions:   append([]Permission(nil), st.Permissions...),
			Timestamp:     st.Timestamp,
		}
		if st.User != nil {
			user := *st.User
			user.Roles = append([]string(nil), st.User.Roles...)
			cs.User = &user
		}
		snap.Contexts[mode] = cs
	}
	return snap
}

// saveLocked writes the current snapshot through the attached store. Callers
// must hold m.mu.
func (m *Manager) saveLocked() {
	if m.persist == nil {
		return
	}
	if err := m.persist.Save(m.snapshotLocked()); err != nil {
		m.logger.Warn().Err(err).Msg("failed to persist session state")
	}
}
