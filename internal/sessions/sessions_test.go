package sessions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/drivehop/drivehop/internal/models"
	"github.com/drivehop/drivehop/internal/shared"
)

// memRepo is an in-memory SessionRepository.
type memRepo struct {
	sessions map[models.Provider]*models.Session
	upserts  int
}

func newMemRepo() *memRepo {
	return &memRepo{sessions: make(map[models.Provider]*models.Session)}
}

func (m *memRepo) Upsert(session *models.Session) error {
	m.upserts++
	copied := *session
	m.sessions[session.Provider] = &copied
	return nil
}

func (m *memRepo) Get(provider models.Provider) (*models.Session, error) {
	session, ok := m.sessions[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrAuthUnavailable, provider)
	}
	copied := *session
	return &copied, nil
}

func (m *memRepo) Delete(provider models.Provider) error {
	delete(m.sessions, provider)
	return nil
}

func TestStoreGet(t *testing.T) {
	repo := newMemRepo()
	store := NewStore(repo, NewStaticSource(nil), nil)

	if _, err := store.Get(models.ProviderQuark); !errors.Is(err, shared.ErrAuthUnavailable) {
		t.Errorf("expected ErrAuthUnavailable, got %v", err)
	}
}

func TestStoreRefresh(t *testing.T) {
	repo := newMemRepo()
	source := NewStaticSource(map[models.Provider]string{
		models.ProviderQuark: "__pus=abc",
	})
	store := NewStore(repo, source, nil)

	session, err := store.Refresh(context.Background(), models.ProviderQuark)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if session.Token != "__pus=abc" {
		t.Errorf("unexpected token: %q", session.Token)
	}

	persisted, err := store.Get(models.ProviderQuark)
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if persisted.Token != "__pus=abc" {
		t.Errorf("unexpected persisted token: %q", persisted.Token)
	}

	// No cookies configured for the other provider.
	if _, err := store.Refresh(context.Background(), models.ProviderBaidu); !errors.Is(err, shared.ErrAuthUnavailable) {
		t.Errorf("expected ErrAuthUnavailable, got %v", err)
	}
}

func TestStorePush(t *testing.T) {
	repo := newMemRepo()
	push := NewPushSource()
	source := NewChainSource(push, NewStaticSource(map[models.Provider]string{
		models.ProviderQuark: "from-config",
	}))
	store := NewStore(repo, source, nil)
	store.SetPushSource(push)

	if _, err := store.Push(models.ProviderQuark, ""); !errors.Is(err, shared.ErrAuthUnavailable) {
		t.Errorf("empty token should be rejected, got %v", err)
	}

	session, err := store.Push(models.ProviderQuark, "pushed-cookie")
	if err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if session.Token != "pushed-cookie" {
		t.Errorf("unexpected token: %q", session.Token)
	}

	// A later refresh must keep the pushed cookie, not fall back to config.
	refreshed, err := store.Refresh(context.Background(), models.ProviderQuark)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if refreshed.Token != "pushed-cookie" {
		t.Errorf("refresh clobbered the pushed cookie: %q", refreshed.Token)
	}
}

func TestStoreClear(t *testing.T) {
	repo := newMemRepo()
	store := NewStore(repo, NewStaticSource(map[models.Provider]string{
		models.ProviderBaidu: "BDUSS=x",
	}), nil)

	if _, err := store.Refresh(context.Background(), models.ProviderBaidu); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear(models.ProviderBaidu); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(models.ProviderBaidu); !errors.Is(err, shared.ErrAuthUnavailable) {
		t.Errorf("expected session gone, got %v", err)
	}
}

func TestTokenFunc(t *testing.T) {
	repo := newMemRepo()
	source := NewStaticSource(map[models.Provider]string{
		models.ProviderQuark: "first",
	})
	store := NewStore(repo, source, nil)

	token := store.TokenFunc(models.ProviderQuark)

	if _, err := token(context.Background()); !errors.Is(err, shared.ErrAuthUnavailable) {
		t.Errorf("expected ErrAuthUnavailable before refresh, got %v", err)
	}

	if _, err := store.Refresh(context.Background(), models.ProviderQuark); err != nil {
		t.Fatal(err)
	}

	got, err := token(context.Background())
	if err != nil {
		t.Fatalf("token func failed: %v", err)
	}
	if got != "first" {
		t.Errorf("unexpected token: %q", got)
	}

	// A mid-task refresh is picked up by the same func.
	if _, err := store.Push(models.ProviderQuark, "second"); err != nil {
		t.Fatal(err)
	}
	if got, _ = token(context.Background()); got != "second" {
		t.Errorf("token func should resolve at call time, got %q", got)
	}
}

func TestCurlFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quark.curl")
	curl := `curl 'https://pan.quark.cn/' -H 'cookie: __pus=exported'`
	if err := os.WriteFile(path, []byte(curl), 0600); err != nil {
		t.Fatal(err)
	}

	source := NewCurlFileSource(map[models.Provider]string{
		models.ProviderQuark: path,
	})

	cookie, err := source.Cookies(context.Background(), models.ProviderQuark)
	if err != nil {
		t.Fatalf("failed to read cookie: %v", err)
	}
	if cookie != "__pus=exported" {
		t.Errorf("unexpected cookie: %q", cookie)
	}

	if _, err := source.Cookies(context.Background(), models.ProviderBaidu); !errors.Is(err, shared.ErrAuthUnavailable) {
		t.Errorf("expected ErrAuthUnavailable for unconfigured provider, got %v", err)
	}
}

func TestChainSourceOrder(t *testing.T) {
	push := NewPushSource()
	static := NewStaticSource(map[models.Provider]string{
		models.ProviderQuark: "static-cookie",
	})
	chain := NewChainSource(push, static)

	cookie, err := chain.Cookies(context.Background(), models.ProviderQuark)
	if err != nil {
		t.Fatal(err)
	}
	if cookie != "static-cookie" {
		t.Errorf("expected fallback to static, got %q", cookie)
	}

	push.Set(models.ProviderQuark, "pushed")
	if cookie, _ = chain.Cookies(context.Background(), models.ProviderQuark); cookie != "pushed" {
		t.Errorf("push source should win, got %q", cookie)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := shared.DefaultConfig()
	cfg.Quark.Cookie = "pasted"

	source := FromConfig(cfg, nil)
	cookie, err := source.Cookies(context.Background(), models.ProviderQuark)
	if err != nil {
		t.Fatal(err)
	}
	if cookie != "pasted" {
		t.Errorf("unexpected cookie: %q", cookie)
	}

	if _, err := source.Cookies(context.Background(), models.ProviderBaidu); !errors.Is(err, shared.ErrAuthUnavailable) {
		t.Errorf("expected ErrAuthUnavailable, got %v", err)
	}
}
