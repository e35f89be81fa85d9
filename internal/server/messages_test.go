package server

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/drivehop/drivehop/internal/models"
	"github.com/drivehop/drivehop/internal/shared"
	"github.com/drivehop/drivehop/internal/tasks"
)

type mockOrchestrator struct {
	broadcaster *tasks.Broadcaster
	tasks       []*models.Task
	enqueueErr  error
	cancelErr   error
	removed     int
}

func newMockOrchestrator() *mockOrchestrator {
	return &mockOrchestrator{broadcaster: tasks.NewBroadcaster()}
}

func (m *mockOrchestrator) Enqueue(ctx context.Context, sourceURL, accessCode string) (*models.Task, error) {
	if m.enqueueErr != nil {
		return nil, m.enqueueErr
	}
	task := models.NewTask(sourceURL, accessCode)
	m.tasks = append(m.tasks, task)
	return task, nil
}

func (m *mockOrchestrator) Cancel(ctx context.Context, id string) (*models.Task, error) {
	if m.cancelErr != nil {
		return nil, m.cancelErr
	}
	for _, task := range m.tasks {
		if task.ID == id {
			task.Status = models.StatusCancelled
			return task, nil
		}
	}
	return nil, shared.ErrTaskNotFound
}

func (m *mockOrchestrator) Delete(ctx context.Context, id string) error {
	for i, task := range m.tasks {
		if task.ID == id {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			return nil
		}
	}
	return shared.ErrTaskNotFound
}

func (m *mockOrchestrator) List() ([]*models.Task, error) {
	return m.tasks, nil
}

func (m *mockOrchestrator) ClearCompleted() (int, error) {
	return m.removed, nil
}

func (m *mockOrchestrator) Events() *tasks.Broadcaster {
	return m.broadcaster
}

type mockBridgeSessions struct {
	sessions map[models.Provider]*models.Session
}

func newMockBridgeSessions() *mockBridgeSessions {
	return &mockBridgeSessions{sessions: map[models.Provider]*models.Session{}}
}

func (m *mockBridgeSessions) Get(provider models.Provider) (*models.Session, error) {
	if session, ok := m.sessions[provider]; ok {
		return session, nil
	}
	return nil, shared.ErrAuthUnavailable
}

func (m *mockBridgeSessions) Refresh(ctx context.Context, provider models.Provider) (*models.Session, error) {
	return m.Get(provider)
}

func (m *mockBridgeSessions) Push(provider models.Provider, token string) (*models.Session, error) {
	session := &models.Session{Provider: provider, Token: token, FetchedAt: time.Now()}
	m.sessions[provider] = session
	return session, nil
}

// newTestBridge serves a bridge over httptest and returns a client wired
// to it.
func newTestBridge(t *testing.T) (*Client, *mockOrchestrator, *mockBridgeSessions) {
	t.Helper()
	client, orchestrator, sessions, _ := newTestBridgeFull(t)
	return client, orchestrator, sessions
}

func newTestBridgeFull(t *testing.T) (*Client, *mockOrchestrator, *mockBridgeSessions, *Bridge) {
	t.Helper()

	orchestrator := newMockOrchestrator()
	sessions := newMockBridgeSessions()
	bridge := NewBridge(BridgeOpts{
		Orchestrator: orchestrator,
		Sessions:     sessions,
		Config:       shared.DefaultConfig(),
	})

	server := httptest.NewServer(bridge.server.Handler)
	t.Cleanup(server.Close)

	return NewClient(strings.TrimPrefix(server.URL, "http://")), orchestrator, sessions, bridge
}

func TestBridgeMessages(t *testing.T) {
	ctx := context.Background()

	t.Run("ping", func(t *testing.T) {
		client, _, _ := newTestBridge(t)
		if err := client.Ping(ctx); err != nil {
			t.Fatalf("expected healthy bridge, got %v", err)
		}
	})

	t.Run("enqueue transfer", func(t *testing.T) {
		client, orchestrator, _ := newTestBridge(t)

		task, err := client.EnqueueTransfer(ctx, "https://pan.quark.cn/s/abc123", "x9k2")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if task.ID == "" {
			t.Error("expected a task id")
		}
		if task.Status != models.StatusPending {
			t.Errorf("expected pending status, got %s", task.Status)
		}
		if len(orchestrator.tasks) != 1 {
			t.Errorf("expected 1 enqueued task, got %d", len(orchestrator.tasks))
		}
	})

	t.Run("enqueue rejects a non-url payload", func(t *testing.T) {
		client, orchestrator, _ := newTestBridge(t)

		_, err := client.EnqueueTransfer(ctx, "not a link", "")
		if err == nil {
			t.Fatal("expected validation error")
		}
		if len(orchestrator.tasks) != 0 {
			t.Error("expected no task to reach the orchestrator")
		}
	})

	t.Run("cancel unknown task maps to ErrTaskNotFound", func(t *testing.T) {
		client, _, _ := newTestBridge(t)

		err := client.CancelTask(ctx, "no-such-id")
		if !errors.Is(err, shared.ErrTaskNotFound) {
			t.Fatalf("expected ErrTaskNotFound across the wire, got %v", err)
		}
	})

	t.Run("cancel known task", func(t *testing.T) {
		client, _, _ := newTestBridge(t)

		task, err := client.EnqueueTransfer(ctx, "https://pan.quark.cn/s/abc123", "")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := client.CancelTask(ctx, task.ID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("delete settled task", func(t *testing.T) {
		client, orchestrator, _ := newTestBridge(t)

		task, err := client.EnqueueTransfer(ctx, "https://pan.quark.cn/s/abc123", "")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := client.DeleteTask(ctx, task.ID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(orchestrator.tasks) != 0 {
			t.Errorf("expected the task to be removed, got %d", len(orchestrator.tasks))
		}
	})

	t.Run("delete unknown task maps to ErrTaskNotFound", func(t *testing.T) {
		client, _, _ := newTestBridge(t)

		err := client.DeleteTask(ctx, "no-such-id")
		if !errors.Is(err, shared.ErrTaskNotFound) {
			t.Fatalf("expected ErrTaskNotFound across the wire, got %v", err)
		}
	})

	t.Run("list tasks returns an empty slice, not null", func(t *testing.T) {
		client, _, _ := newTestBridge(t)

		list, err := client.ListTasks(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if list == nil {
			t.Fatal("expected an empty slice")
		}
		if len(list) != 0 {
			t.Errorf("expected no tasks, got %d", len(list))
		}
	})

	t.Run("clear completed", func(t *testing.T) {
		client, orchestrator, _ := newTestBridge(t)
		orchestrator.removed = 3

		removed, err := client.ClearCompleted(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if removed != 3 {
			t.Errorf("expected 3 removed, got %d", removed)
		}
	})

	t.Run("get cookies never exposes tokens", func(t *testing.T) {
		client, _, sessions := newTestBridge(t)
		sessions.Push(models.ProviderQuark, "__puus=secret")

		infos, err := client.GetCookies(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(infos) != 2 {
			t.Fatalf("expected one entry per provider, got %d", len(infos))
		}
		for _, info := range infos {
			if info.Token != "" {
				t.Errorf("expected token to be withheld for %s, got %q", info.Provider, info.Token)
			}
		}
		if !infos[0].Available {
			t.Error("expected quark session to be available")
		}
		if infos[0].Age == "" {
			t.Error("expected an age for the available session")
		}
		if infos[1].Available {
			t.Error("expected baidu session to be unavailable")
		}
	})

	t.Run("push cookies", func(t *testing.T) {
		client, _, sessions := newTestBridge(t)

		info, err := client.PushCookies(ctx, models.ProviderBaidu, "BDUSS=xyz")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !info.Available {
			t.Error("expected pushed session to be available")
		}
		if sessions.sessions[models.ProviderBaidu].Token != "BDUSS=xyz" {
			t.Error("expected cookie to reach the session store")
		}
	})

	t.Run("push cookies rejects an unknown provider", func(t *testing.T) {
		client, _, _ := newTestBridge(t)

		if _, err := client.PushCookies(ctx, models.Provider("dropbox"), "x"); err == nil {
			t.Fatal("expected error for unknown provider")
		}
	})

	t.Run("get config withholds cookies", func(t *testing.T) {
		client, _, _ := newTestBridge(t)

		cfg, err := client.GetConfig(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, ok := cfg["max_retries"]; !ok {
			t.Error("expected max_retries in public config")
		}
		for key := range cfg {
			if strings.Contains(key, "cookie") && key != "auto_get_cookie" {
				t.Errorf("unexpected config key %q", key)
			}
		}
	})

	t.Run("save config applies a partial update", func(t *testing.T) {
		client, _, _ := newTestBridge(t)

		retries := 7
		keywords := []string{"广告", "推广"}
		cfg, err := client.SaveConfig(ctx, ConfigUpdate{MaxRetries: &retries, BannedKeywords: &keywords})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg["max_retries"] != float64(7) {
			t.Errorf("expected max_retries 7, got %v", cfg["max_retries"])
		}

		// Fields left out of the update keep their values.
		if cfg["retry_delay_ms"] != float64(shared.DefaultConfig().Transfer.RetryDelayMS) {
			t.Errorf("untouched field changed: %v", cfg["retry_delay_ms"])
		}

		after, err := client.GetConfig(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if after["max_retries"] != float64(7) {
			t.Errorf("get_config should reflect the update, got %v", after["max_retries"])
		}
	})

	t.Run("save config rejects negative retries", func(t *testing.T) {
		client, _, _ := newTestBridge(t)

		retries := -1
		if _, err := client.SaveConfig(ctx, ConfigUpdate{MaxRetries: &retries}); err == nil {
			t.Fatal("expected validation error")
		}
	})

	t.Run("unknown message kind", func(t *testing.T) {
		client, _, _ := newTestBridge(t)

		err := client.send(ctx, "reticulate_splines", nil, nil)
		if !errors.Is(err, shared.ErrUnknownMessageKind) {
			t.Fatalf("expected ErrUnknownMessageKind, got %v", err)
		}
	})
}

func TestSaveConfigPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	bridge := NewBridge(BridgeOpts{
		Orchestrator: newMockOrchestrator(),
		Sessions:     newMockBridgeSessions(),
		Config:       shared.DefaultConfig(),
		ConfigPath:   path,
	})

	server := httptest.NewServer(bridge.server.Handler)
	defer server.Close()
	client := NewClient(strings.TrimPrefix(server.URL, "http://"))

	retries := 4
	folder := "/收藏"
	update := ConfigUpdate{MaxRetries: &retries, DefaultDestFolder: &folder}
	if _, err := client.SaveConfig(context.Background(), update); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	loaded, err := shared.LoadConfig(path)
	if err != nil {
		t.Fatalf("expected a readable config file, got %v", err)
	}
	if loaded.Transfer.MaxRetries != 4 {
		t.Errorf("expected persisted max retries 4, got %d", loaded.Transfer.MaxRetries)
	}
	if loaded.Baidu.DefaultFolder != "/收藏" {
		t.Errorf("expected persisted dest folder, got %q", loaded.Baidu.DefaultFolder)
	}
}

func TestClientBridgeUnavailable(t *testing.T) {
	// Nothing listens on this port.
	client := NewClient("127.0.0.1:1")

	if err := client.Ping(context.Background()); !errors.Is(err, shared.ErrBridgeUnavailable) {
		t.Fatalf("expected ErrBridgeUnavailable, got %v", err)
	}
	if _, err := client.ListTasks(context.Background()); !errors.Is(err, shared.ErrBridgeUnavailable) {
		t.Fatalf("expected ErrBridgeUnavailable, got %v", err)
	}
}

func TestBridgeEventStream(t *testing.T) {
	client, orchestrator, _, bridge := newTestBridgeFull(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The HTTP side is already served by httptest; pump events by hand.
	events, unsubscribe := orchestrator.Events().Subscribe()
	defer unsubscribe()
	go bridge.hub.Pump(ctx, events)

	stream, unsub, err := client.Subscribe(ctx)
	if err != nil {
		t.Fatalf("expected subscription, got %v", err)
	}
	defer unsub()

	// Give the server side a moment to register the connection.
	time.Sleep(50 * time.Millisecond)

	task := models.NewTask("https://pan.quark.cn/s/abc123", "")
	orchestrator.Events().Publish(tasks.TaskEvent{Type: tasks.EventCreated, Task: task})

	select {
	case event := <-stream:
		if event.Type != tasks.EventCreated {
			t.Errorf("expected created event, got %s", event.Type)
		}
		if event.Task == nil || event.Task.ID != task.ID {
			t.Error("expected the published task in the event")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}
