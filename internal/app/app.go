// Package app wires the configuration, logger, stores, and clients into one
// application instance. Everything is constructed once here and injected;
// no package-level singletons.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/authbridge/authbridge/pkg/authclient"
	"github.com/authbridge/authbridge/pkg/config"
	"github.com/authbridge/authbridge/pkg/credentials"
	"github.com/authbridge/authbridge/pkg/permissions"
	"github.com/authbridge/authbridge/pkg/session"
)

// App is the composed application.
type App struct {
	Config      *config.Config
	Logger      zerolog.Logger
	Credentials credentials.Store
	Sessions    *session.Manager
	Client      *authclient.Client
	Permissions *permissions.Service
}

// New builds an application from configuration.
func New(cfg *config.Config) (*App, error) {
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	store, err := credentials.New(&cfg.Storage, config.AppName, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential storage: %w", err)
	}

	sessions := session.NewManager(logger)

	// Rehydrate the session from the previous invocation. Token records come
	// back from the credential store, possibly expired: an expired access
	// token with a live refresh token must survive the restart so the next
	// request can refresh instead of forcing a new login.
	stateStore := session.NewFileStore(config.StateDir())
	snap, err := stateStore.Load()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load persisted session state, starting fresh")
	} else {
		sessions.Restore(snap, func(mode session.Mode, key string) *credentials.Record {
			rec, err := store.LoadAny(context.Background(), key)
			if err != nil {
				return nil
			}
			return rec
		})
	}
	sessions.Persist(stateStore)

	httpTimeout := cfg.HTTPTimeout
	if httpTimeout <= 0 {
		httpTimeout = 30 * time.Second
	}

	client, err := authclient.New(authclient.Config{
		BaseURL:        cfg.BaseURL,
		HTTPClient:     &http.Client{Timeout: httpTimeout},
		Credentials:    store,
		Sessions:       sessions,
		Logger:         logger,
		RefreshTimeout: cfg.RefreshTimeout,
	})
	if err != nil {
		return nil, err
	}

	perms := permissions.NewService(client, sessions, permissions.NewCache(cfg.PermissionTTL), logger)

	// An expired context must not keep answering permission checks from
	// cache.
	client.OnSessionExpired(func(mode session.Mode) {
		perms.InvalidateMode(mode)
	})

	return &App{
		Config:      cfg,
		Logger:      logger,
		Credentials: store,
		Sessions:    sessions,
		Client:      client,
		Permissions: perms,
	}, nil
}

// newLogger builds the zerolog logger from configuration.
func newLogger(cfg config.Log) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("unknown log level %q", cfg.Level)
		}
		level = parsed
	}

	var logger zerolog.Logger
	switch cfg.Format {
	case "json":
		logger = zerolog.New(os.Stderr)
	default:
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return logger.Level(level).With().Timestamp().Logger(), nil
}
