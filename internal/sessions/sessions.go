// Package sessions manages per-provider credential snapshots.
//
// Tokens are header-ready cookie strings read from a [CookieSource]
// (a pasted cookie, a "Copy as cURL" export, or a push from a UI surface)
// and persisted so drive clients survive daemon restarts without a fresh
// cookie grab. Refreshes for the same provider are coalesced so two
// concurrent refreshes can never race to overwrite each other's token.
package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/drivehop/drivehop/internal/models"
	"github.com/drivehop/drivehop/internal/shared"
)

// CookieSource supplies the current cookie string for a provider's domain.
type CookieSource interface {
	// Cookies returns a header-ready cookie string for the provider.
	// Returns ErrAuthUnavailable when no cookies are available.
	Cookies(ctx context.Context, provider models.Provider) (string, error)
}

// SessionRepository is the persistence surface the store depends on.
type SessionRepository interface {
	Upsert(session *models.Session) error
	Get(provider models.Provider) (*models.Session, error)
	Delete(provider models.Provider) error
}

// Store holds per-provider sessions with explicit refresh.
type Store struct {
	repo   SessionRepository
	source CookieSource
	push   *PushSource
	logger *log.Logger
	group  singleflight.Group
}

// NewStore creates a session store backed by the given repository and cookie source.
func NewStore(repo SessionRepository, source CookieSource, logger *log.Logger) *Store {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Store{
		repo:   repo,
		source: source,
		logger: shared.WithLogger(logger, "component", "sessions"),
	}
}

// SetPushSource registers the push source so tokens handed over by UI
// surfaces also win subsequent refreshes instead of being clobbered by
// the configured cookie files.
func (s *Store) SetPushSource(p *PushSource) {
	s.push = p
}

// Get returns the persisted session for a provider.
// Returns ErrAuthUnavailable when none exists.
func (s *Store) Get(provider models.Provider) (*models.Session, error) {
	return s.repo.Get(provider)
}

// Refresh re-reads the provider's cookies, persists them as a new session,
// and returns it. Concurrent refreshes for the same provider share a single
// execution; refreshes for different providers proceed independently.
func (s *Store) Refresh(ctx context.Context, provider models.Provider) (*models.Session, error) {
	result, err, _ := s.group.Do(string(provider), func() (any, error) {
		return s.refresh(ctx, provider)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Session), nil
}

func (s *Store) refresh(ctx context.Context, provider models.Provider) (*models.Session, error) {
	cookie, err := s.source.Cookies(ctx, provider)
	if err != nil {
		return nil, err
	}
	if cookie == "" {
		return nil, fmt.Errorf("%w: %s", shared.ErrAuthUnavailable, provider)
	}

	session := &models.Session{
		Provider:  provider,
		Token:     cookie,
		FetchedAt: time.Now().UTC(),
	}

	if err := s.repo.Upsert(session); err != nil {
		return nil, err
	}

	s.logger.Info("session refreshed", "provider", provider, "token_len", len(cookie))
	return session, nil
}

// Push stores a token handed over by a UI surface (manual override).
func (s *Store) Push(provider models.Provider, token string) (*models.Session, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token for %s", shared.ErrAuthUnavailable, provider)
	}

	if s.push != nil {
		s.push.Set(provider, token)
	}

	session := &models.Session{
		Provider:  provider,
		Token:     token,
		FetchedAt: time.Now().UTC(),
	}
	if err := s.repo.Upsert(session); err != nil {
		return nil, err
	}

	s.logger.Info("session pushed", "provider", provider, "token_len", len(token))
	return session, nil
}

// Clear removes the session for a provider.
func (s *Store) Clear(provider models.Provider) error {
	return s.repo.Delete(provider)
}

// TokenFunc returns a function suitable for a drive client's credential
// hook: it resolves the current token for the provider at call time, so a
// refresh performed mid-task is picked up by the next request.
func (s *Store) TokenFunc(provider models.Provider) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		session, err := s.Get(provider)
		if err != nil {
			return "", err
		}
		return session.Token, nil
	}
}
