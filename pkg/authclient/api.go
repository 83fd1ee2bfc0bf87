package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/authbridge/authbridge/pkg/credentials"
	"github.com/authbridge/authbridge/pkg/session"
)

// AuthTokens is the token set issued by the backend.
type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
}

// AuthResponse is the backend's response to login, tenant/global switch and
// refresh calls.
type AuthResponse struct {
	Auth    AuthTokens             `json:"auth"`
	User    *session.User          `json:"user,omitempty"`
	Profile map[string]interface{} `json:"profile,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type logoutRequest struct {
	ContextMode           string `json:"context_mode"`
	PreserveGlobalContext bool   `json:"preserve_global_context"`
}

type tenantLoginRequest struct {
	TenantID string `json:"tenant_id"`
}

type permissionsResponse struct {
	Permissions [][]string `json:"permissions"`
}

// recordFromAuth converts backend tokens into a storable record.
func recordFromAuth(a AuthTokens) *credentials.Record {
	return &credentials.Record{
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		TokenType:    a.TokenType,
		ExpiresIn:    a.ExpiresIn,
		Scope:        a.Scope,
		CreatedAt:    time.Now(),
	}
}

// Login authenticates with username and password against the global
// context and makes it the active context.
func (c *Client) Login(ctx context.Context, username, password string) (*session.State, error) {
	var ar AuthResponse
	if err := c.postJSON(ctx, "/auth/login", loginRequest{
		Username: username,
		Password: password,
	}, &ar); err != nil {
		return nil, err
	}

	return c.establishSession(ctx, session.ModeGlobal, "", &ar)
}

// Logout ends the active context. The backend notification is best-effort:
// a failure is logged and local state is torn down regardless, so logout
// always succeeds from the caller's point of view.
//
// When logging out of a tenant context with preserveGlobal set, the global
// context survives and becomes active again; otherwise every context is
// cleared.
func (c *Client) Logout(ctx context.Context, preserveGlobal bool) error {
	mode := c.sessions.CurrentMode()

	if err := c.postJSON(ctx, "/auth/logout", logoutRequest{
		ContextMode:           string(mode),
		PreserveGlobalContext: preserveGlobal,
	}, nil); err != nil {
		c.logger.Warn().Err(err).Str("mode", string(mode)).
			Msg("logout notification failed, clearing local state anyway")
	}

	if mode == session.ModeTenant && preserveGlobal {
		if key, err := c.sessions.KeyFor(session.ModeTenant); err == nil {
			_ = c.creds.Delete(ctx, key)
		}
		c.sessions.ClearState(session.ModeTenant)
		_ = c.sessions.SetCurrentMode(session.ModeGlobal)
		c.fireExpired(session.ModeTenant)
		return nil
	}

	_ = c.creds.Clear(ctx)
	c.sessions.Reset()
	c.fireExpired(session.ModeTenant)
	c.fireExpired(session.ModeGlobal)
	return nil
}

// RefreshToken forces a refresh of the active context's tokens, sharing
// any refresh already in flight.
func (c *Client) RefreshToken(ctx context.Context) (*credentials.Record, error) {
	return c.refreshContext(ctx, c.sessions.CurrentMode())
}

// SwitchToTenant makes the given tenant the active context.
//
// When that tenant is already the established tenant context with a valid
// token, the switch completes locally with no network call. A critical
// validation failure of existing tenant state aborts the switch; soft
// failures (no state yet, expired token) proceed through the backend.
func (c *Client) SwitchToTenant(ctx context.Context, tenantID string) (*session.State, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("authclient: tenant id is required")
	}

	if c.sessions.TenantID() == tenantID {
		if result := c.sessions.Validate(session.ModeTenant); result.Valid {
			_ = c.sessions.SetCurrentMode(session.ModeTenant)
			st, _ := c.sessions.State(session.ModeTenant)
			return st, nil
		}
	}

	if result := c.sessions.Validate(session.ModeTenant); !result.Valid && !result.Soft {
		return nil, &session.ValidationError{Mode: session.ModeTenant, Errors: result.Errors}
	}

	var ar AuthResponse
	if err := c.postJSON(ctx, "/auth/login-tenant", tenantLoginRequest{TenantID: tenantID}, &ar); err != nil {
		return nil, err
	}

	return c.establishSession(ctx, session.ModeTenant, tenantID, &ar)
}

// SwitchToGlobal makes the global context active, reusing existing valid
// global state without a network call when possible.
func (c *Client) SwitchToGlobal(ctx context.Context) (*session.State, error) {
	if result := c.sessions.Validate(session.ModeGlobal); result.Valid {
		_ = c.sessions.SetCurrentMode(session.ModeGlobal)
		st, _ := c.sessions.State(session.ModeGlobal)
		return st, nil
	} else if !result.Soft {
		return nil, &session.ValidationError{Mode: session.ModeGlobal, Errors: result.Errors}
	}

	var ar AuthResponse
	if err := c.postJSON(ctx, "/auth/login-global", struct{}{}, &ar); err != nil {
		return nil, err
	}

	return c.establishSession(ctx, session.ModeGlobal, "", &ar)
}

// FetchPermissions retrieves the authorization decisions for a context from
// the backend and records them on the session state.
func (c *Client) FetchPermissions(ctx context.Context, mode session.Mode, tenantID string) ([]session.Permission, error) {
	path := "/tenants/global/permissions"
	if mode == session.ModeTenant {
		if tenantID == "" {
			return nil, fmt.Errorf("authclient: tenant id is required for tenant permissions")
		}
		path = "/tenants/" + url.PathEscape(tenantID) + "/permissions"
	}

	var pr permissionsResponse
	if err := c.getJSON(ctx, path, &pr); err != nil {
		return nil, err
	}

	perms := make([]session.Permission, 0, len(pr.Permissions))
	for _, pair := range pr.Permissions {
		if len(pair) != 2 {
			continue
		}
		perms = append(perms, session.Permission{Object: pair[0], Action: pair[1]})
	}

	c.sessions.UpdatePermissions(mode, perms)
	return perms, nil
}

// establishSession persists the token set for a context, decodes the user
// identity, replaces the context state, and activates the context.
func (c *Client) establishSession(ctx context.Context, mode session.Mode, tenantID string, ar *AuthResponse) (*session.State, error) {
	if ar.Auth.AccessToken == "" {
		return nil, &APIError{
			Code:    CodeInvalidResponse,
			Status:  http.StatusOK,
			Message: "auth response contained no access token",
		}
	}

	rec := recordFromAuth(ar.Auth)
	key := session.Key(mode, tenantID)
	if err := c.creds.Save(ctx, key, rec); err != nil {
		c.logger.Warn().Err(err).Str("context_key", key).Msg("failed to persist token record")
	}

	user := ar.User
	if user == nil {
		if decoded, err := session.DecodeUser(rec.AccessToken); err == nil {
			user = decoded
		} else {
			c.logger.Debug().Err(err).Msg("access token is not a decodable JWT")
		}
	}

	if mode == session.ModeTenant && tenantID == "" {
		tenantID = session.TenantClaim(rec.AccessToken)
	}

	st := &session.State{
		User:          user,
		Authenticated: true,
		TenantID:      tenantID,
		Tokens:        rec,
		Timestamp:     time.Now(),
	}
	if user != nil {
		st.Roles = user.Roles
	}

	c.sessions.SetState(mode, st)
	_ = c.sessions.SetCurrentMode(mode)

	established, _ := c.sessions.State(mode)
	return established, nil
}

func (c *Client) fireExpired(mode session.Mode) {
	c.hookMu.Lock()
	hooks := make([]func(session.Mode), len(c.expiredHooks))
	copy(hooks, c.expiredHooks)
	c.hookMu.Unlock()
	for _, hook := range hooks {
		hook(mode)
	}
}

// newRequest builds a JSON request against the backend.
func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	u := c.baseURL.JoinPath(path)

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	var req *http.Request
	var err error
	if reader != nil {
		req, err = http.NewRequestWithContext(ctx, method, u.String(), reader)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u.String(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// postJSON executes an authenticated POST and decodes a JSON response into
// out when non-nil.
func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

// getJSON executes an authenticated GET and decodes a JSON response.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{
			Code:    CodeInvalidResponse,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("failed to decode response: %v", err),
		}
	}
	return nil
}
