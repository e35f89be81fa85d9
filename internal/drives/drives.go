// Package drives defines interface Drive for the two cloud drive providers
//
// Quark Drive (source), Baidu Netdisk (destination)
package drives

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/drivehop/drivehop/internal/models"
	"github.com/drivehop/drivehop/internal/shared"
)

// TokenFunc resolves the current session token for a provider at call time.
// Clients call it per request so a session refresh is picked up without
// rebuilding the client.
type TokenFunc func(ctx context.Context) (string, error)

// Drive is the capability set every provider client exposes.
// All operations attach the current session token and normalize provider
// failures into the shared error taxonomy.
type Drive interface {
	// Provider returns which drive this client talks to.
	Provider() models.Provider

	// ResolveShare resolves a share link (with optional access code) into
	// the share's metadata and file list. No remote mutation is performed.
	ResolveShare(ctx context.Context, shareURL, accessCode string) (*ShareInfo, error)

	// SaveToOwnDrive saves the resolved share's content into the
	// authenticated user's own drive under the given folder.
	SaveToOwnDrive(ctx context.Context, share *ShareInfo, folder string) (*SavedResource, error)

	// CreateShare creates a new outbound share of content saved in the
	// user's own drive.
	CreateShare(ctx context.Context, saved *SavedResource) (*ShareLink, error)
}

// FileEntry is one file or folder inside a share.
type FileEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Dir  bool   `json:"dir"`
}

// ShareInfo is the resolved metadata of a share link.
type ShareInfo struct {
	Provider  models.Provider `json:"provider"`
	URL       string          `json:"url"`
	Handle    string          `json:"handle"`      // provider-internal share handle
	Token     string          `json:"token"`       // share-scoped access token
	Title     string          `json:"title"`       // best-effort human label
	Files     []FileEntry     `json:"files"`
	TotalSize int64           `json:"total_size"`
}

// SavedResource identifies content saved into the user's own drive.
type SavedResource struct {
	Provider models.Provider `json:"provider"`
	FileIDs  []string        `json:"file_ids"`
	Folder   string          `json:"folder"`
}

// ShareLink is a newly created outbound share.
type ShareLink struct {
	URL        string    `json:"url"`
	AccessCode string    `json:"access_code,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return shared.ErrAuthExpired
	case code == http.StatusNotFound || code == http.StatusGone:
		return shared.ErrShareNotFound
	case code == http.StatusTooManyRequests:
		return shared.ErrRateLimited
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return shared.ErrTimeout
	case code >= http.StatusInternalServerError:
		return shared.ErrNetworkError
	default:
		return shared.ErrUnknown
	}
}

// classifyTransport maps a transport-level error (no HTTP response) to a
// sentinel. Context deadlines and url.Error timeouts become Timeout,
// everything else a NetworkError.
func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return shared.ErrTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return shared.ErrTimeout
	}
	return shared.ErrNetworkError
}

// messageSentinels maps provider error-message fragments to sentinels.
// Both providers report business failures in free-form Chinese messages;
// the fragments mirror the wording their web clients surface.
var messageSentinels = []struct {
	fragment string
	err      error
}{
	{"不存在", shared.ErrShareNotFound},
	{"已删除", shared.ErrShareNotFound},
	{"过期", shared.ErrShareExpired},
	{"失效", shared.ErrShareExpired},
	{"提取码", shared.ErrInvalidAccessCode},
	{"密码错误", shared.ErrInvalidAccessCode},
	{"容量", shared.ErrCapacityExceeded},
	{"空间不足", shared.ErrCapacityExceeded},
	{"已存在", shared.ErrFileExists},
	{"同名文件", shared.ErrFileExists},
	{"频繁", shared.ErrRateLimited},
	{"登录", shared.ErrAuthExpired},
}

// classifyMessage maps a provider error message to a sentinel, falling back
// to ErrUnknown when no fragment matches.
func classifyMessage(message string) error {
	for _, s := range messageSentinels {
		if strings.Contains(message, s.fragment) {
			return s.err
		}
	}
	return shared.ErrUnknown
}
