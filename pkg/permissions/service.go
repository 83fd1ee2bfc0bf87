package permissions

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/authbridge/authbridge/pkg/session"
)

// Fetcher retrieves authorization decisions for a context from the
// backend. *authclient.Client satisfies this.
type Fetcher interface {
	FetchPermissions(ctx context.Context, mode session.Mode, tenantID string) ([]session.Permission, error)
}

// Service answers permission checks for the active context, consulting the
// cache first unless the caller forces a refresh. A forced refresh always
// writes back so subsequent reads within the TTL are served locally.
type Service struct {
	fetcher  Fetcher
	sessions *session.Manager
	cache    *Cache
	logger   zerolog.Logger
}

// NewService creates a permission service.
func NewService(fetcher Fetcher, sessions *session.Manager, cache *Cache, logger zerolog.Logger) *Service {
	if cache == nil {
		cache = NewCache(DefaultTTL)
	}
	return &Service{
		fetcher:  fetcher,
		sessions: sessions,
		cache:    cache,
		logger:   logger,
	}
}

// Permissions returns the active context's permission snapshot.
func (s *Service) Permissions(ctx context.Context, forceRefresh bool) (*Set, error) {
	mode := s.sessions.CurrentMode()

	tenantID := ""
	key := GlobalKey
	if mode == session.ModeTenant {
		tenantID = s.sessions.TenantID()
		if tenantID == "" {
			return nil, fmt.Errorf("permissions: tenant context has no tenant id")
		}
		key = tenantID
	}

	if !forceRefresh {
		if set, ok := s.cache.Get(key, mode); ok {
			return set, nil
		}
	}

	perms, err := s.fetcher.FetchPermissions(ctx, mode, tenantID)
	if err != nil {
		return nil, err
	}

	set := NewSet(perms)
	s.cache.Put(key, mode, set)
	s.logger.Debug().Str("mode", string(mode)).Str("key", key).Int("granted", set.Len()).
		Msg("permission snapshot refreshed")
	return set, nil
}

// Check reports whether the active context grants one object/action pair.
func (s *Service) Check(ctx context.Context, object, action string, forceRefresh bool) (bool, error) {
	set, err := s.Permissions(ctx, forceRefresh)
	if err != nil {
		return false, err
	}
	return set.Has(object, action), nil
}

// BulkCheck answers several object/action pairs from one snapshot, keyed
// as "object:action".
func (s *Service) BulkCheck(ctx context.Context, subjects []session.Permission, forceRefresh bool) (map[string]bool, error) {
	set, err := s.Permissions(ctx, forceRefresh)
	if err != nil {
		return nil, err
	}

	results := make(map[string]bool, len(subjects))
	for _, subject := range subjects {
		results[subject.Object+":"+subject.Action] = set.Has(subject.Object, subject.Action)
	}
	return results, nil
}

// Invalidate drops the cached snapshot for the active context. Called
// after any mutation that could change permissions, such as a role grant
// or revoke.
func (s *Service) Invalidate() {
	mode := s.sessions.CurrentMode()
	key := GlobalKey
	if mode == session.ModeTenant {
		key = s.sessions.TenantID()
	}
	s.cache.ClearKey(key, mode)
}

// InvalidateMode drops every cached snapshot for a mode. Wired to the
// client's session-expired hook and to logout.
func (s *Service) InvalidateMode(mode session.Mode) {
	s.cache.ClearMode(mode)
}
