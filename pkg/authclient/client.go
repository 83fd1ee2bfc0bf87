// Package authclient provides an authenticated HTTP client for a
// multi-tenant identity backend with context-aware, transparent token
// refresh.
//
// The client behaves like a normal *http.Client except that:
//
//   - every outgoing request carries the bearer token (and tenant header)
//     of whatever context is currently active
//   - a 401 response transparently triggers a token refresh and a single
//     replay of the failed request
//   - concurrent 401s share one in-flight refresh: at most one refresh
//     network call is outstanding at any time, and every waiter observes
//     the same outcome before being replayed
//
// A failed refresh is terminal for the affected context: its tokens are
// cleared, its session state invalidated, and the original 401 propagates
// so the application can prompt for re-authentication.
package authclient

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/authbridge/authbridge/pkg/credentials"
	"github.com/authbridge/authbridge/pkg/session"
)

const (
	// SkipAuthRefreshHeader opts a request out of token attachment and the
	// 401 refresh machinery. It exists for the refresh call itself, which
	// must never trigger a nested refresh.
	SkipAuthRefreshHeader = "X-Skip-Auth-Refresh"

	// TenantIDHeader carries the active tenant id in tenant mode.
	TenantIDHeader = "X-Tenant-ID"

	refreshPath = "/auth/refresh"

	// DefaultRefreshTimeout bounds the refresh round-trip so a hung
	// refresh cannot block queued requests indefinitely.
	DefaultRefreshTimeout = 30 * time.Second
)

// Config configures a Client.
type Config struct {
	// BaseURL is the backend root, e.g. "https://iam.example.com/api/v1".
	BaseURL string
	// HTTPClient is the underlying transport. Defaults to a client with a
	// 30 second timeout.
	HTTPClient *http.Client
	// Credentials stores token records per context key.
	Credentials credentials.Store
	// Sessions tracks the active context and per-context state.
	Sessions *session.Manager
	// Logger defaults to a nop logger.
	Logger zerolog.Logger
	// RefreshTimeout bounds the refresh call. Defaults to 30s.
	RefreshTimeout time.Duration
}

// Client is an authenticated HTTP client bound to one backend.
type Client struct {
	httpClient     *http.Client
	baseURL        *url.URL
	refreshURL     *url.URL
	creds          credentials.Store
	sessions       *session.Manager
	logger         zerolog.Logger
	refreshTimeout time.Duration

	// refreshGroup enforces the single-flight refresh invariant per
	// context mode.
	refreshGroup singleflight.Group

	hookMu       sync.Mutex
	expiredHooks []func(session.Mode)
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("authclient: base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("authclient: invalid base URL: %w", err)
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("authclient: credential store is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("authclient: session manager is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	refreshTimeout := cfg.RefreshTimeout
	if refreshTimeout <= 0 {
		refreshTimeout = DefaultRefreshTimeout
	}

	return &Client{
		httpClient:     httpClient,
		baseURL:        base,
		refreshURL:     base.JoinPath(refreshPath),
		creds:          cfg.Credentials,
		sessions:       cfg.Sessions,
		logger:         cfg.Logger,
		refreshTimeout: refreshTimeout,
	}, nil
}

// OnSessionExpired registers a hook invoked after a context is logged out
// because its refresh failed. Used to drop derived state such as cached
// permission decisions.
func (c *Client) OnSessionExpired(fn func(session.Mode)) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.expiredHooks = append(c.expiredHooks, fn)
}

// Sessions returns the session manager the client was built with.
func (c *Client) Sessions() *session.Manager {
	return c.sessions
}

// Do executes a request with authentication.
//
// The bearer token of the active context is attached before sending. On a
// 401 (other than from the refresh endpoint itself) the client joins the
// single in-flight refresh for the active mode and, on success, replays the
// request once with the new token. A request that 401s again after its one
// replay is returned as-is. When the refresh fails the original 401
// response propagates; the context logout has already happened.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get(SkipAuthRefreshHeader) != "" {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &TransportError{Err: err}
		}
		return resp, nil
	}

	mode := c.sessions.CurrentMode()
	c.authorize(req, mode)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	if resp.StatusCode != http.StatusUnauthorized || c.isRefreshEndpoint(req.URL) {
		return resp, nil
	}

	// A consumed, non-replayable body cannot be retried safely.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	rec, refreshErr := c.refreshContext(req.Context(), mode)
	if refreshErr != nil {
		// Logout side effects already applied by the refresh flight; the
		// caller sees the original 401.
		c.logger.Debug().Err(refreshErr).Str("mode", string(mode)).
			Msg("transparent refresh failed, propagating original 401")
		return resp, nil
	}

	// Clone before touching the original response: when the body cannot be
	// rewound the caller still gets a readable 401.
	retry, err := replayableClone(req)
	if err != nil {
		return resp, nil
	}
	retry.Header.Set("Authorization", rec.BearerType()+" "+rec.AccessToken)

	drainAndClose(resp)

	retried, err := c.httpClient.Do(retry)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return retried, nil
}

// authorize attaches the active context's bearer token and tenant header.
// Side effect only: a missing token leaves the request bare and lets the
// backend answer 401.
func (c *Client) authorize(req *http.Request, mode session.Mode) {
	key, err := c.sessions.KeyFor(mode)
	if err != nil {
		return
	}

	rec, err := c.creds.Load(req.Context(), key)
	if err != nil {
		return
	}

	req.Header.Set("Authorization", rec.BearerType()+" "+rec.AccessToken)
	if mode == session.ModeTenant {
		req.Header.Set(TenantIDHeader, c.sessions.TenantID())
	}
}

// isRefreshEndpoint is the recursion guard: a 401 from the refresh
// endpoint itself never starts another refresh.
func (c *Client) isRefreshEndpoint(u *url.URL) bool {
	return u.Path == c.refreshURL.Path
}

// replayableClone clones a request with a fresh body for replay.
func replayableClone(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		clone.Body = body
	}
	return clone, nil
}

// drainAndClose discards the remaining body so the connection can be
// reused.
func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
}
