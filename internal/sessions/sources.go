package sessions

import (
	"context"
	"fmt"
	"sync"

	"github.com/drivehop/drivehop/internal/models"
	"github.com/drivehop/drivehop/internal/shared"
)

// StaticSource serves fixed cookie strings, typically pasted into the
// config file.
type StaticSource struct {
	cookies map[models.Provider]string
}

// NewStaticSource creates a source over a fixed provider → cookie map.
func NewStaticSource(cookies map[models.Provider]string) *StaticSource {
	return &StaticSource{cookies: cookies}
}

func (s *StaticSource) Cookies(_ context.Context, provider models.Provider) (string, error) {
	cookie := s.cookies[provider]
	if cookie == "" {
		return "", fmt.Errorf("%w: no cookie configured for %s", shared.ErrAuthUnavailable, provider)
	}
	return cookie, nil
}

// CurlFileSource reads cookies from per-provider "Copy as cURL" exports.
// The file is re-parsed on every refresh so the user can overwrite it with
// a fresh export without restarting the daemon.
type CurlFileSource struct {
	paths map[models.Provider]string
}

// NewCurlFileSource creates a source over a fixed provider → file path map.
func NewCurlFileSource(paths map[models.Provider]string) *CurlFileSource {
	return &CurlFileSource{paths: paths}
}

func (s *CurlFileSource) Cookies(_ context.Context, provider models.Provider) (string, error) {
	path := s.paths[provider]
	if path == "" {
		return "", fmt.Errorf("%w: no curl file configured for %s", shared.ErrAuthUnavailable, provider)
	}

	headers, err := shared.ParseCurlFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrAuthUnavailable, err)
	}
	if headers.Cookie == "" {
		return "", fmt.Errorf("%w: curl export for %s has no cookie", shared.ErrAuthUnavailable, provider)
	}

	return headers.Cookie, nil
}

// PushSource serves cookies pushed at runtime through the message bridge.
// Safe for concurrent use.
type PushSource struct {
	mu      sync.RWMutex
	cookies map[models.Provider]string
}

// NewPushSource creates an empty push-fed source.
func NewPushSource() *PushSource {
	return &PushSource{cookies: make(map[models.Provider]string)}
}

// Set records the cookie for a provider.
func (s *PushSource) Set(provider models.Provider, cookie string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookies[provider] = cookie
}

func (s *PushSource) Cookies(_ context.Context, provider models.Provider) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cookie := s.cookies[provider]
	if cookie == "" {
		return "", fmt.Errorf("%w: nothing pushed for %s", shared.ErrAuthUnavailable, provider)
	}
	return cookie, nil
}

// ChainSource tries each source in order and returns the first cookie found.
type ChainSource struct {
	sources []CookieSource
}

// NewChainSource composes sources with earlier entries taking precedence.
func NewChainSource(sources ...CookieSource) *ChainSource {
	return &ChainSource{sources: sources}
}

func (s *ChainSource) Cookies(ctx context.Context, provider models.Provider) (string, error) {
	for _, src := range s.sources {
		cookie, err := src.Cookies(ctx, provider)
		if err == nil && cookie != "" {
			return cookie, nil
		}
	}
	return "", fmt.Errorf("%w: %s", shared.ErrAuthUnavailable, provider)
}

// FromConfig builds the daemon's cookie source chain: pushed cookies win,
// then curl exports, then pasted cookie strings.
func FromConfig(cfg *shared.Config, push *PushSource) CookieSource {
	curl := NewCurlFileSource(map[models.Provider]string{
		models.ProviderQuark: cfg.Quark.CurlFile,
		models.ProviderBaidu: cfg.Baidu.CurlFile,
	})
	static := NewStaticSource(map[models.Provider]string{
		models.ProviderQuark: cfg.Quark.Cookie,
		models.ProviderBaidu: cfg.Baidu.Cookie,
	})

	if push == nil {
		return NewChainSource(curl, static)
	}
	return NewChainSource(push, curl, static)
}
