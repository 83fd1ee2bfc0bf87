package authclient

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/skratchdot/open-golang/open"
	"golang.org/x/oauth2"

	"github.com/authbridge/authbridge/pkg/session"
)

// OAuth2Config configures the browser-based authorization code login.
type OAuth2Config struct {
	// ClientID is the OAuth2 client identifier.
	ClientID string `yaml:"client_id" json:"client_id"`
	// ClientSecret is optional for public clients using PKCE.
	ClientSecret string `yaml:"client_secret,omitempty" json:"client_secret,omitempty"`
	// AuthURL is the authorization endpoint.
	AuthURL string `yaml:"auth_url" json:"auth_url"`
	// TokenURL is the token endpoint.
	TokenURL string `yaml:"token_url" json:"token_url"`
	// Scopes are the requested scopes.
	Scopes []string `yaml:"scopes,omitempty" json:"scopes,omitempty"`
	// RedirectPort is the local callback port (default: 9998).
	RedirectPort int `yaml:"redirect_port,omitempty" json:"redirect_port,omitempty"`
	// PKCE enables Proof Key for Code Exchange (recommended for public clients).
	PKCE bool `yaml:"pkce,omitempty" json:"pkce,omitempty"`
	// AutoOpenBrowser launches the system browser automatically. When
	// false only the URL is printed, for headless environments.
	AutoOpenBrowser bool `yaml:"auto_open_browser,omitempty" json:"auto_open_browser,omitempty"`
}

func (cfg *OAuth2Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("oauth2 config is required")
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if cfg.AuthURL == "" {
		return fmt.Errorf("auth_url is required")
	}
	if cfg.TokenURL == "" {
		return fmt.Errorf("token_url is required")
	}
	return nil
}

// LoginWithBrowser performs the OAuth2 authorization code flow with PKCE
// against the identity provider and establishes the global session from the
// resulting token set.
func (c *Client) LoginWithBrowser(ctx context.Context, cfg *OAuth2Config) (*session.State, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	port := cfg.RedirectPort
	if port == 0 {
		port = 9998
	}
	redirectURL := fmt.Sprintf("http://localhost:%d/callback", port)

	oconf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
	}

	server, callbackChan, err := startCallbackServer(redirectURL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = server.Close() }()

	verifier, authURL := buildAuthCodeURL(oconf, cfg)

	fmt.Printf("Please visit this URL to authorize:\n\n%s\n\n", authURL)
	if cfg.AutoOpenBrowser {
		if err := open.Run(authURL); err != nil {
			fmt.Println("Failed to open browser automatically, please visit the URL manually.")
		}
	}

	select {
	case code := <-callbackChan:
		if code == "" {
			return nil, fmt.Errorf("authorization failed")
		}

		var opts []oauth2.AuthCodeOption
		if cfg.PKCE && verifier != "" {
			opts = append(opts, oauth2.VerifierOption(verifier))
		}

		token, err := oconf.Exchange(ctx, code, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to exchange code for token: %w", err)
		}

		ar := &AuthResponse{Auth: authTokensFromOAuth2(token)}
		return c.establishSession(ctx, session.ModeGlobal, "", ar)

	case <-ctx.Done():
		return nil, fmt.Errorf("authorization cancelled")
	case <-time.After(5 * time.Minute):
		return nil, fmt.Errorf("authorization timeout")
	}
}

// startCallbackServer starts a local HTTP server to receive the
// authorization callback.
func startCallbackServer(redirectURL string) (*http.Server, chan string, error) {
	callbackChan := make(chan string, 1)

	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redirect URL: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(u.Path, func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "No authorization code received", http.StatusBadRequest)
			callbackChan <- ""
			return
		}

		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprintf(w, "<html><body><h1>Authorization successful!</h1><p>You can close this window.</p></body></html>")
		callbackChan <- code
	})

	server := &http.Server{
		Addr:    u.Host,
		Handler: mux,
	}

	listener, err := net.Listen("tcp", u.Host)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start callback server: %w", err)
	}

	go func() { _ = server.Serve(listener) }()

	return server, callbackChan, nil
}

// buildAuthCodeURL builds the authorization URL, generating a PKCE
// verifier/challenge pair when enabled.
func buildAuthCodeURL(oconf *oauth2.Config, cfg *OAuth2Config) (string, string) {
	state := generateRandomString(32)

	var verifier string
	var opts []oauth2.AuthCodeOption
	if cfg.PKCE {
		verifier = generateRandomString(64)

		h := sha256.New()
		h.Write([]byte(verifier))
		challenge := base64.RawURLEncoding.EncodeToString(h.Sum(nil))

		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", challenge),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
	}

	return verifier, oconf.AuthCodeURL(state, opts...)
}

// authTokensFromOAuth2 converts an oauth2.Token into the backend token
// shape.
func authTokensFromOAuth2(token *oauth2.Token) AuthTokens {
	tokens := AuthTokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
	}
	if !token.Expiry.IsZero() {
		tokens.ExpiresIn = int64(time.Until(token.Expiry).Seconds())
	}
	if scope, ok := token.Extra("scope").(string); ok {
		tokens.Scope = strings.TrimSpace(scope)
	}
	return tokens
}

// generateRandomString generates a URL-safe random string of the given
// length.
func generateRandomString(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes)[:length]
}
