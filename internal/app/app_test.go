package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authbridge/authbridge/pkg/authclient"
	"github.com/authbridge/authbridge/pkg/config"
	"github.com/authbridge/authbridge/pkg/credentials"
	"github.com/authbridge/authbridge/pkg/session"
)

// testConfig isolates XDG state so each test gets its own session snapshot
// and credential directory. Every New call in one test shares them, which is
// exactly the situation of consecutive CLI invocations.
func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()

	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	xdg.Reload()

	return &config.Config{
		BaseURL: baseURL,
		Log:     config.Log{Level: "error"},
		Storage: credentials.Config{Type: credentials.BackendFile, Path: t.TempDir()},
	}
}

func writeTokens(w http.ResponseWriter, access, refresh string, expiresIn int64, user *session.User) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(authclient.AuthResponse{
		Auth: authclient.AuthTokens{
			AccessToken:  access,
			RefreshToken: refresh,
			TokenType:    "Bearer",
			ExpiresIn:    expiresIn,
		},
		User: user,
	})
}

func TestSessionSurvivesRestart(t *testing.T) {
	var refreshCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeTokens(w, "T1", "R1", 1, &session.User{Subject: "u-1", Username: "alice"})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "R1", body.RefreshToken)
		writeTokens(w, "T2", "R2", 3600, nil)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	ctx := context.Background()

	first, err := New(cfg)
	require.NoError(t, err)
	_, err = first.Client.Login(ctx, "alice", "secret")
	require.NoError(t, err)

	// A second instance, as the next CLI invocation would build, sees the
	// established session without talking to the backend.
	second, err := New(cfg)
	require.NoError(t, err)
	st, ok := second.Sessions.State(session.ModeGlobal)
	require.True(t, ok, "session state must survive the restart")
	assert.True(t, st.Authenticated)
	require.NotNil(t, st.User)
	assert.Equal(t, "alice", st.User.Username)
	assert.Equal(t, session.ModeGlobal, second.Sessions.CurrentMode())

	// Let the one-second access token lapse, then restart once more: the
	// refresh token must still be reachable.
	time.Sleep(1100 * time.Millisecond)

	third, err := New(cfg)
	require.NoError(t, err)
	rec, err := third.Client.RefreshToken(ctx)
	require.NoError(t, err, "refresh must work across restarts with an expired access token")
	assert.Equal(t, "T2", rec.AccessToken)
	assert.Equal(t, int32(1), refreshCalls.Load())
}

func TestTenantContextSurvivesRestart(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeTokens(w, "G1", "GR1", 3600, &session.User{Subject: "u-1"})
	})
	mux.HandleFunc("/auth/login-tenant", func(w http.ResponseWriter, r *http.Request) {
		writeTokens(w, "TT1", "TR1", 3600, nil)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	ctx := context.Background()

	first, err := New(cfg)
	require.NoError(t, err)
	_, err = first.Client.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	_, err = first.Client.SwitchToTenant(ctx, "acme")
	require.NoError(t, err)

	second, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, session.ModeTenant, second.Sessions.CurrentMode())
	assert.Equal(t, "acme", second.Sessions.TenantID())

	// Both contexts came back, isolated as before the restart.
	global, ok := second.Sessions.State(session.ModeGlobal)
	require.True(t, ok)
	assert.Equal(t, "G1", global.Tokens.AccessToken)
	tenant, ok := second.Sessions.State(session.ModeTenant)
	require.True(t, ok)
	assert.Equal(t, "TT1", tenant.Tokens.AccessToken)
}

func TestLogoutClearsPersistedSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeTokens(w, "T1", "R1", 3600, nil)
	})
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	ctx := context.Background()

	first, err := New(cfg)
	require.NoError(t, err)
	_, err = first.Client.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	require.NoError(t, first.Client.Logout(ctx, false))

	second, err := New(cfg)
	require.NoError(t, err)
	_, ok := second.Sessions.State(session.ModeGlobal)
	assert.False(t, ok, "logout must not leave a resumable session behind")
}

func TestFreshInstallHasNoSession(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cfg := testConfig(t, srv.URL)

	a, err := New(cfg)
	require.NoError(t, err)
	_, ok := a.Sessions.State(session.ModeGlobal)
	assert.False(t, ok)
	assert.Equal(t, session.ModeGlobal, a.Sessions.CurrentMode())
}
