package authclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/authbridge/authbridge/pkg/credentials"
	"github.com/authbridge/authbridge/pkg/redact"
	"github.com/authbridge/authbridge/pkg/session"
)

// refreshContext joins (or starts) the single in-flight refresh for a
// context mode and waits for its outcome.
//
// The flight itself runs detached from any caller's context, bounded only
// by the configured refresh timeout: waiters may come and go, the refresh
// outcome is shared by all of them. A caller whose own context is cancelled
// stops waiting but does not abort the flight.
func (c *Client) refreshContext(ctx context.Context, mode session.Mode) (*credentials.Record, error) {
	ch := c.refreshGroup.DoChan(string(mode), func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
		defer cancel()

		rec, err := c.refreshOnce(flightCtx, mode)
		if err != nil {
			// Terminal: the context is logged out before any waiter is
			// released, so nothing replays with stale tokens.
			c.expireSession(mode)
			return nil, err
		}
		return rec, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*credentials.Record), nil
	}
}

// refreshRequest is the refresh endpoint's request body.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	ContextMode  string `json:"context_mode"`
}

// refreshOnce performs one refresh round-trip for a mode and persists the
// outcome. It talks to the transport directly, marked with the skip
// header, so it can never re-enter the 401 machinery.
func (c *Client) refreshOnce(ctx context.Context, mode session.Mode) (*credentials.Record, error) {
	key, err := c.sessions.KeyFor(mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoRefreshToken, err)
	}

	// The session state is the primary source; the store is read without
	// the expiry check, since an expired access token is exactly when the
	// refresh token is needed.
	refreshToken := ""
	if st, ok := c.sessions.State(mode); ok && st.Tokens != nil {
		refreshToken = st.Tokens.RefreshToken
	}
	if refreshToken == "" {
		if current, err := c.creds.LoadAny(ctx, key); err == nil {
			refreshToken = current.RefreshToken
		}
	}
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	req, err := c.newRequest(ctx, http.MethodPost, refreshPath, refreshRequest{
		RefreshToken: refreshToken,
		ContextMode:  string(mode),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	req.Header.Set(SkipAuthRefreshHeader, "true")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, &TransportError{Err: err})
	}
	defer drainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		apiErr := decodeAPIError(resp)
		apiErr.Code = CodeRefreshFailed
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, apiErr)
	}

	var ar AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, fmt.Errorf("%w: failed to decode refresh response: %v", ErrRefreshFailed, err)
	}
	if ar.Auth.AccessToken == "" {
		return nil, fmt.Errorf("%w: refresh response contained no access token", ErrRefreshFailed)
	}

	rec := recordFromAuth(ar.Auth)
	if err := c.creds.Save(ctx, key, rec); err != nil {
		c.logger.Warn().Err(err).Str("context_key", key).
			Msg("failed to persist refreshed token")
	}
	c.sessions.UpdateTokens(mode, rec)

	// The fingerprint lets refresh cycles be correlated to a token in
	// backend logs without revealing it.
	c.logger.Debug().Str("mode", string(mode)).
		Str("token", redact.Token(rec.AccessToken)).
		Str("token_fp", redact.Fingerprint(rec.AccessToken)).
		Msg("token refreshed")

	return rec, nil
}

// expireSession logs out one context after a terminal refresh failure:
// tokens cleared, state invalidated, registered hooks fired.
func (c *Client) expireSession(mode session.Mode) {
	if key, err := c.sessions.KeyFor(mode); err == nil {
		_ = c.creds.Delete(context.Background(), key)
	}
	c.sessions.ClearState(mode)

	c.hookMu.Lock()
	hooks := make([]func(session.Mode), len(c.expiredHooks))
	copy(hooks, c.expiredHooks)
	c.hookMu.Unlock()
	for _, hook := range hooks {
		hook(mode)
	}

	c.logger.Warn().Str("mode", string(mode)).
		Msg("session expired, context logged out")
}
