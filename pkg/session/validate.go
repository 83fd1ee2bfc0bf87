package session

import (
	"fmt"
	"strings"
)

// ValidationResult reports whether a context is usable. Failures carry
// human-readable error strings instead of an error value so callers can
// distinguish soft problems (no state yet, naturally expired token) from
// critical ones (corrupt state) and decide whether a switch should abort.
type ValidationResult struct {
	Valid bool
	// Soft is true when every failure is recoverable by logging in again;
	// a context switch may proceed past soft failures.
	Soft   bool
	Errors []string
}

// Validate checks whether the state for a mode is usable: state present,
// token present and not expired, tenant id present in tenant mode.
func (m *Manager) Validate(mode Mode) ValidationResult {
	m.mu.RLock()
	st, ok := m.states[mode]
	m.mu.RUnlock()

	if !ok {
		return ValidationResult{
			Soft:   true,
			Errors: []string{fmt.Sprintf("no session state for %s context", mode)},
		}
	}

	var errs []string
	critical := false

	if mode == ModeTenant && st.TenantID == "" {
		errs = append(errs, "tenant context has no tenant id")
		critical = true
	}
	switch {
	case st.Tokens == nil || st.Tokens.AccessToken == "":
		errs = append(errs, "session has no access token")
		critical = true
	case st.Tokens.Expired():
		errs = append(errs, "access token has expired")
	}

	return ValidationResult{
		Valid:  len(errs) == 0,
		Soft:   !critical,
		Errors: errs,
	}
}

// ValidationError is returned when a context switch aborts on a critical
// validation failure.
type ValidationError struct {
	Mode   Mode
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("session: %s context validation failed: %s",
		e.Mode, strings.Join(e.Errors, "; "))
}
