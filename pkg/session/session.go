// Package session tracks which authentication context is active and owns
// the per-context state.
//
// Two context modes exist: global and tenant. Each mode owns an independent
// token record, user identity, and permission snapshot; clearing or replacing
// one never touches the other. The Manager is the single source of truth for
// "which context is active" and is constructed once per application instance
// and injected, never reached through package-level globals. Attaching a
// SnapshotStore makes that truth durable: state survives process restarts,
// which is what lets consecutive CLI invocations share one session.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/authbridge/authbridge/pkg/credentials"
	"github.com/rs/zerolog"
)

// Mode identifies an authentication context.
type Mode string

const (
	// ModeGlobal is the tenant-independent context.
	ModeGlobal Mode = "global"
	// ModeTenant is a tenant-scoped context.
	ModeTenant Mode = "tenant"
)

// Key derives the credential-store context key for a mode.
func Key(mode Mode, tenantID string) string {
	if mode == ModeTenant {
		return "tenant:" + tenantID
	}
	return "global"
}

// Permission is one authorization decision subject: an object/action pair.
type Permission struct {
	Object string `json:"object" yaml:"object"`
	Action string `json:"action" yaml:"action"`
}

// User holds identity claims decoded from the access token.
type User struct {
	Subject  string   `json:"subject" yaml:"subject"`
	Username string   `json:"username,omitempty" yaml:"username,omitempty"`
	Email    string   `json:"email,omitempty" yaml:"email,omitempty"`
	Roles    []string `json:"roles,omitempty" yaml:"roles,omitempty"`
}

// State is the session state owned by one context mode.
//
// Lifecycle: created on login or context switch, tokens mutated on refresh,
// permissions mutated on permission refresh, destroyed on logout or clear.
type State struct {
	User          *User
	Authenticated bool
	TenantID      string
	Roles         []string
	Permissions   []Permission
	Tokens        *credentials.Record
	Timestamp     time.Time
}

// Clone returns a copy safe to hand to callers.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	clone := *s
	if s.User != nil {
		user := *s.User
		user.Roles = append([]string(nil), s.User.Roles...)
		clone.User = &user
	}
	clone.Roles = append([]string(nil), s.Roles...)
	clone.Permissions = append([]Permission(nil), s.Permissions...)
	clone.Tokens = s.Tokens.Clone()
	return &clone
}

// Manager tracks the active context mode and the state of each context.
type Manager struct {
	mu      sync.RWMutex
	current Mode
	states  map[Mode]*State
	persist SnapshotStore
	logger  zerolog.Logger
}

// NewManager creates a manager. The global context is active at startup.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		current: ModeGlobal,
		states:  make(map[Mode]*State),
		logger:  logger,
	}
}

// CurrentMode returns the active context mode.
func (m *Manager) CurrentMode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// SetCurrentMode switches the active context mode.
func (m *Manager) SetCurrentMode(mode Mode) error {
	if mode != ModeGlobal && mode != ModeTenant {
		return fmt.Errorf("session: unknown context mode: %s", mode)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != mode {
		m.logger.Debug().Str("from", string(m.current)).Str("to", string(mode)).
			Msg("switching context mode")
	}
	m.current = mode
	m.saveLocked()
	return nil
}

// State returns the state for a mode, or false when none exists.
func (m *Manager) State(mode Mode) (*State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[mode]
	if !ok {
		return nil, false
	}
	return st.Clone(), true
}

// SetState replaces the state for a mode. The other mode's state is
// unaffected: contexts are isolated.
func (m *Manager) SetState(mode Mode, st *State) {
	clone := st.Clone()
	if clone != nil && clone.Timestamp.IsZero() {
		clone.Timestamp = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[mode] = clone
	m.saveLocked()
}

// UpdateTokens replaces only the token record of an existing state, as
// happens after a transparent refresh. Missing state is a no-op.
func (m *Manager) UpdateTokens(mode Mode, rec *credentials.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[mode]
	if !ok {
		return
	}
	st.Tokens = rec.Clone()
	st.Timestamp = time.Now()
	m.saveLocked()
}

// UpdatePermissions replaces only the permission snapshot of an existing
// state. Missing state is a no-op.
func (m *Manager) UpdatePermissions(mode Mode, perms []Permission) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[mode]
	if !ok {
		return
	}
	st.Permissions = append([]Permission(nil), perms...)
	st.Timestamp = time.Now()
	m.saveLocked()
}

// ClearState destroys the state for one mode only.
func (m *Manager) ClearState(mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, mode)
	m.saveLocked()
}

// Reset destroys all context state and returns to the global mode.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = make(map[Mode]*State)
	m.current = ModeGlobal
	m.saveLocked()
}

// KeyFor derives the credential-store key for a mode from its state.
func (m *Manager) KeyFor(mode Mode) (string, error) {
	if mode == ModeGlobal {
		return Key(ModeGlobal, ""), nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[ModeTenant]
	if !ok || st.TenantID == "" {
		return "", fmt.Errorf("session: tenant context has no tenant id")
	}
	return Key(ModeTenant, st.TenantID), nil
}

// CurrentKey derives the credential-store key for the active context.
func (m *Manager) CurrentKey() (string, error) {
	return m.KeyFor(m.CurrentMode())
}

// TenantID returns the tenant id of the tenant context, if any.
func (m *Manager) TenantID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if st, ok := m.states[ModeTenant]; ok {
		return st.TenantID
	}
	return ""
}
