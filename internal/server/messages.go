package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/drivehop/drivehop/internal/models"
	"github.com/drivehop/drivehop/internal/shared"
)

// Message kinds recognized by the bridge.
const (
	KindEnqueueTransfer = "enqueue_transfer"
	KindGetCookies      = "get_cookies"
	KindRefreshCookies  = "refresh_cookies"
	KindPushCookies     = "push_cookies"
	KindCancelTask      = "cancel_task"
	KindDeleteTask      = "delete_task"
	KindListTasks       = "list_tasks"
	KindClearCompleted  = "clear_completed"
	KindGetConfig       = "get_config"
	KindSaveConfig      = "save_config"
)

// Message is the request envelope UI surfaces send to the bridge.
type Message struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorInfo carries a normalized failure back to the caller.
type ErrorInfo struct {
	Kind    shared.Kind `json:"kind"`
	Message string      `json:"message"`
}

// Response is the single reply every request yields.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

type enqueuePayload struct {
	URL        string `json:"url" validate:"required,url"`
	AccessCode string `json:"access_code"`
}

type cancelPayload struct {
	ID string `json:"id" validate:"required"`
}

type pushCookiesPayload struct {
	Provider models.Provider `json:"provider" validate:"required"`
	Cookie   string          `json:"cookie" validate:"required"`
}

// ConfigUpdate carries the mutable configuration subset over the wire.
// Nil fields are left untouched so callers can update a single value.
type ConfigUpdate struct {
	BannedKeywords      *[]string `json:"banned_keywords,omitempty"`
	MaxRetries          *int      `json:"max_retries,omitempty" validate:"omitempty,min=0"`
	RetryDelayMS        *int      `json:"retry_delay_ms,omitempty" validate:"omitempty,min=0"`
	DefaultSourceFolder *string   `json:"default_source_folder,omitempty"`
	DefaultDestFolder   *string   `json:"default_dest_folder,omitempty"`
	AutoGetCookie       *bool     `json:"auto_get_cookie,omitempty"`
}

// CookieInfo is the per-provider session view returned to UI surfaces.
type CookieInfo struct {
	Provider  models.Provider `json:"provider"`
	Token     string          `json:"token,omitempty"`
	FetchedAt string          `json:"fetched_at,omitempty"`
	Age       string          `json:"age,omitempty"`
	Available bool            `json:"available"`
}

var validate = validator.New()

// handleMessage dispatches one request envelope. Protocol-level failures
// (unknown kind, bad payload, domain errors) still produce HTTP 200 with
// success=false; only transport breakage surfaces as an HTTP error.
func (b *Bridge) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeResponse(w, failure(shared.KindUnknown, fmt.Sprintf("malformed message: %v", err)))
		return
	}

	b.logger.Debug("message received", "kind", msg.Kind)
	writeResponse(w, b.dispatch(r, msg))
}

func (b *Bridge) dispatch(r *http.Request, msg Message) Response {
	switch msg.Kind {
	case KindEnqueueTransfer:
		var payload enqueuePayload
		if resp, ok := decodePayload(msg.Payload, &payload); !ok {
			return resp
		}
		task, err := b.orchestrator.Enqueue(r.Context(), payload.URL, payload.AccessCode)
		if err != nil {
			return failureFromError(err)
		}
		return success(task)

	case KindCancelTask:
		var payload cancelPayload
		if resp, ok := decodePayload(msg.Payload, &payload); !ok {
			return resp
		}
		task, err := b.orchestrator.Cancel(r.Context(), payload.ID)
		if err != nil {
			return failureFromError(err)
		}
		return success(task)

	case KindDeleteTask:
		var payload cancelPayload
		if resp, ok := decodePayload(msg.Payload, &payload); !ok {
			return resp
		}
		if err := b.orchestrator.Delete(r.Context(), payload.ID); err != nil {
			return failureFromError(err)
		}
		return success(map[string]string{"deleted": payload.ID})

	case KindListTasks:
		list, err := b.orchestrator.List()
		if err != nil {
			return failureFromError(err)
		}
		if list == nil {
			list = []*models.Task{}
		}
		return success(list)

	case KindClearCompleted:
		removed, err := b.orchestrator.ClearCompleted()
		if err != nil {
			return failureFromError(err)
		}
		return success(map[string]int{"removed": removed})

	case KindGetCookies:
		return success(b.cookieInfos(false))

	case KindRefreshCookies:
		infos := make([]CookieInfo, 0, 2)
		for _, provider := range models.Providers() {
			session, err := b.sessions.Refresh(r.Context(), provider)
			if err != nil {
				infos = append(infos, CookieInfo{Provider: provider})
				continue
			}
			infos = append(infos, sessionInfo(session))
		}
		return success(infos)

	case KindPushCookies:
		var payload pushCookiesPayload
		if resp, ok := decodePayload(msg.Payload, &payload); !ok {
			return resp
		}
		if !payload.Provider.Valid() {
			return failure(shared.KindUnknown, fmt.Sprintf("unknown provider %q", payload.Provider))
		}
		session, err := b.sessions.Push(payload.Provider, payload.Cookie)
		if err != nil {
			return failureFromError(err)
		}
		return success(sessionInfo(session))

	case KindGetConfig:
		b.configMu.Lock()
		defer b.configMu.Unlock()
		return success(publicConfig(b.config))

	case KindSaveConfig:
		var payload ConfigUpdate
		if resp, ok := decodePayload(msg.Payload, &payload); !ok {
			return resp
		}
		b.configMu.Lock()
		defer b.configMu.Unlock()
		applyConfigUpdate(b.config, payload)
		if b.configPath != "" {
			if err := shared.SaveConfig(b.configPath, b.config); err != nil {
				return failureFromError(err)
			}
		}
		return success(publicConfig(b.config))

	default:
		return failure(shared.KindUnknownMessageKind, shared.UserMessage(shared.KindUnknownMessageKind))
	}
}

// cookieInfos snapshots session availability for all providers.
func (b *Bridge) cookieInfos(includeToken bool) []CookieInfo {
	infos := make([]CookieInfo, 0, 2)
	for _, provider := range models.Providers() {
		session, err := b.sessions.Get(provider)
		if err != nil {
			infos = append(infos, CookieInfo{Provider: provider})
			continue
		}
		info := sessionInfo(session)
		if !includeToken {
			info.Token = ""
		}
		infos = append(infos, info)
	}
	return infos
}

func sessionInfo(session *models.Session) CookieInfo {
	return CookieInfo{
		Provider:  session.Provider,
		Token:     session.Token,
		FetchedAt: session.FetchedAt.Format("2006-01-02T15:04:05Z07:00"),
		Age:       session.Age().Round(time.Second).String(),
		Available: true,
	}
}

// applyConfigUpdate copies the non-nil fields of the update onto the
// daemon's configuration. The live pipeline keeps its construction-time
// copy; new values take effect for later daemon starts and get_config.
func applyConfigUpdate(cfg *shared.Config, update ConfigUpdate) {
	if update.BannedKeywords != nil {
		cfg.Transfer.BannedKeywords = *update.BannedKeywords
	}
	if update.MaxRetries != nil {
		cfg.Transfer.MaxRetries = *update.MaxRetries
	}
	if update.RetryDelayMS != nil {
		cfg.Transfer.RetryDelayMS = *update.RetryDelayMS
	}
	if update.DefaultSourceFolder != nil {
		cfg.Quark.DefaultFolder = *update.DefaultSourceFolder
	}
	if update.DefaultDestFolder != nil {
		cfg.Baidu.DefaultFolder = *update.DefaultDestFolder
	}
	if update.AutoGetCookie != nil {
		cfg.Session.AutoGetCookie = *update.AutoGetCookie
	}
}

// publicConfig is the configuration subset exposed to UI surfaces;
// cookies never leave the daemon through this path.
func publicConfig(cfg *shared.Config) map[string]any {
	return map[string]any{
		"banned_keywords":       cfg.Transfer.BannedKeywords,
		"max_retries":           cfg.Transfer.MaxRetries,
		"retry_delay_ms":        cfg.Transfer.RetryDelayMS,
		"default_source_folder": cfg.Quark.DefaultFolder,
		"default_dest_folder":   cfg.Baidu.DefaultFolder,
		"auto_get_cookie":       cfg.Session.AutoGetCookie,
	}
}

func decodePayload(raw json.RawMessage, target any) (Response, bool) {
	if len(raw) == 0 {
		return failure(shared.KindUnknown, "missing payload"), false
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return failure(shared.KindUnknown, fmt.Sprintf("malformed payload: %v", err)), false
	}
	if err := validate.Struct(target); err != nil {
		return failure(shared.KindUnknown, fmt.Sprintf("invalid payload: %v", err)), false
	}
	return Response{}, true
}

func success(data any) Response {
	return Response{Success: true, Data: data}
}

func failure(kind shared.Kind, message string) Response {
	return Response{Success: false, Error: &ErrorInfo{Kind: kind, Message: message}}
}

func failureFromError(err error) Response {
	kind := shared.KindOf(err)
	return Response{Success: false, Error: &ErrorInfo{Kind: kind, Message: err.Error()}}
}

func writeResponse(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
