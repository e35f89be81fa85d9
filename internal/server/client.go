package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/drivehop/drivehop/internal/models"
	"github.com/drivehop/drivehop/internal/shared"
	"github.com/drivehop/drivehop/internal/tasks"
)

// Client talks to a running bridge over its message endpoint. CLI commands
// and the TUI use it so all mutations go through the single daemon that
// owns the database.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the bridge listening at addr (host:port).
func NewClient(addr string) *Client {
	return &Client{
		baseURL: "http://" + addr,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Ping reports whether the bridge is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return bridgeErr(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check returned %d", shared.ErrBridgeUnavailable, resp.StatusCode)
	}
	return nil
}

// EnqueueTransfer asks the daemon to queue a new transfer task.
func (c *Client) EnqueueTransfer(ctx context.Context, url, accessCode string) (*models.Task, error) {
	var task models.Task
	payload := map[string]string{"url": url, "access_code": accessCode}
	if err := c.send(ctx, KindEnqueueTransfer, payload, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CancelTask cancels a pending or running task by ID.
func (c *Client) CancelTask(ctx context.Context, id string) error {
	return c.send(ctx, KindCancelTask, map[string]string{"id": id}, nil)
}

// DeleteTask removes a settled task from the queue.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.send(ctx, KindDeleteTask, map[string]string{"id": id}, nil)
}

// ListTasks returns all known tasks in queue order.
func (c *Client) ListTasks(ctx context.Context) ([]*models.Task, error) {
	var list []*models.Task
	if err := c.send(ctx, KindListTasks, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ClearCompleted removes finished tasks and returns how many were removed.
func (c *Client) ClearCompleted(ctx context.Context) (int, error) {
	var out map[string]int
	if err := c.send(ctx, KindClearCompleted, nil, &out); err != nil {
		return 0, err
	}
	return out["removed"], nil
}

// GetCookies returns session availability per provider. Tokens are never
// included in the response.
func (c *Client) GetCookies(ctx context.Context) ([]CookieInfo, error) {
	var infos []CookieInfo
	if err := c.send(ctx, KindGetCookies, nil, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// RefreshCookies re-reads cookies from the configured sources.
func (c *Client) RefreshCookies(ctx context.Context) ([]CookieInfo, error) {
	var infos []CookieInfo
	if err := c.send(ctx, KindRefreshCookies, nil, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// PushCookies hands a freshly captured cookie string to the daemon.
func (c *Client) PushCookies(ctx context.Context, provider models.Provider, cookie string) (*CookieInfo, error) {
	var info CookieInfo
	payload := map[string]string{"provider": string(provider), "cookie": cookie}
	if err := c.send(ctx, KindPushCookies, payload, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetConfig returns the daemon's public configuration subset.
func (c *Client) GetConfig(ctx context.Context) (map[string]any, error) {
	var cfg map[string]any
	if err := c.send(ctx, KindGetConfig, nil, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig updates the daemon's mutable configuration subset and
// returns the resulting public configuration.
func (c *Client) SaveConfig(ctx context.Context, update ConfigUpdate) (map[string]any, error) {
	var cfg map[string]any
	if err := c.send(ctx, KindSaveConfig, update, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Subscribe opens the WebSocket event stream. The returned function closes
// the subscription; the channel closes when the connection drops.
func (c *Client) Subscribe(ctx context.Context) (<-chan tasks.TaskEvent, func(), error) {
	wsURL := "ws://" + c.baseURL[len("http://"):] + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, nil, bridgeErr(err)
	}

	events := make(chan tasks.TaskEvent, 16)
	go func() {
		defer close(events)
		for {
			var event tasks.TaskEvent
			if err := wsjson.Read(ctx, conn, &event); err != nil {
				return
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, func() { conn.Close(websocket.StatusNormalClosure, "") }, nil
}

// send posts one message envelope and decodes the reply's data into out.
func (c *Client) send(ctx context.Context, kind string, payload, out any) error {
	msg := Message{Kind: kind}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		msg.Payload = raw
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/message", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return bridgeErr(err)
	}
	defer resp.Body.Close()

	var reply Response
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !reply.Success {
		if reply.Error == nil {
			return shared.ErrUnknown
		}
		return fmt.Errorf("%s: %w", reply.Error.Message, shared.SentinelOf(reply.Error.Kind))
	}

	if out == nil || reply.Data == nil {
		return nil
	}

	raw, err := json.Marshal(reply.Data)
	if err != nil {
		return fmt.Errorf("failed to remarshal data: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode data: %w", err)
	}
	return nil
}

// bridgeErr normalizes transport failures. A refused or unreachable
// connection means the daemon is not running, which callers surface as
// "start the daemon first" rather than a raw dial error.
func bridgeErr(err error) error {
	var opErr *net.OpError
	if errors.As(err, &opErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", shared.ErrBridgeUnavailable, err)
	}
	return fmt.Errorf("bridge request failed: %w", err)
}
