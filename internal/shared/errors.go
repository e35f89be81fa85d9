package shared

import (
	"errors"
	"fmt"
)

var (
	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Session errors
	ErrAuthUnavailable = fmt.Errorf("no session cookies available")
	ErrAuthExpired     = fmt.Errorf("session expired")

	// Share errors
	ErrShareNotFound     = fmt.Errorf("share not found")
	ErrShareExpired      = fmt.Errorf("share expired")
	ErrInvalidAccessCode = fmt.Errorf("invalid access code")

	// Transfer errors
	ErrCapacityExceeded = fmt.Errorf("drive capacity exceeded")
	ErrFileExists       = fmt.Errorf("file already exists")
	ErrContentBlocked   = fmt.Errorf("content blocked by keyword filter")

	// Transport errors
	ErrRateLimited  = fmt.Errorf("rate limited")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrNetworkError = fmt.Errorf("network error")

	// Orchestration errors
	ErrRetriesExhausted     = fmt.Errorf("retries exhausted")
	ErrInterruptedByRestart = fmt.Errorf("interrupted by restart")
	ErrTaskNotFound         = fmt.Errorf("task not found")

	// Bridge errors
	ErrUnknownMessageKind = fmt.Errorf("unknown message kind")
	ErrBridgeUnavailable  = fmt.Errorf("bridge unavailable")

	ErrUnknown = fmt.Errorf("unknown error")
)

// Kind is the normalized failure vocabulary shared by the drive clients,
// the orchestrator, and the message bridge.
type Kind string

const (
	KindAuthUnavailable      Kind = "auth_unavailable"
	KindAuthExpired          Kind = "auth_expired"
	KindShareNotFound        Kind = "share_not_found"
	KindShareExpired         Kind = "share_expired"
	KindInvalidAccessCode    Kind = "invalid_access_code"
	KindCapacityExceeded     Kind = "capacity_exceeded"
	KindFileExists           Kind = "file_exists"
	KindContentBlocked       Kind = "content_blocked"
	KindRateLimited          Kind = "rate_limited"
	KindTimeout              Kind = "timeout"
	KindNetworkError         Kind = "network_error"
	KindRetriesExhausted     Kind = "retries_exhausted"
	KindInterruptedByRestart Kind = "interrupted_by_restart"
	KindUnknownMessageKind   Kind = "unknown_message_kind"
	KindBridgeUnavailable    Kind = "bridge_unavailable"
	KindUnknown              Kind = "unknown"
)

// kindSentinels pairs each Kind with its sentinel for errors.Is walks.
// Order matters: RetriesExhausted wraps the last transient error, so it is
// checked before the transient kinds.
var kindSentinels = []struct {
	kind Kind
	err  error
}{
	{KindRetriesExhausted, ErrRetriesExhausted},
	{KindAuthUnavailable, ErrAuthUnavailable},
	{KindAuthExpired, ErrAuthExpired},
	{KindShareNotFound, ErrShareNotFound},
	{KindShareExpired, ErrShareExpired},
	{KindInvalidAccessCode, ErrInvalidAccessCode},
	{KindCapacityExceeded, ErrCapacityExceeded},
	{KindFileExists, ErrFileExists},
	{KindContentBlocked, ErrContentBlocked},
	{KindRateLimited, ErrRateLimited},
	{KindTimeout, ErrTimeout},
	{KindNetworkError, ErrNetworkError},
	{KindInterruptedByRestart, ErrInterruptedByRestart},
	{KindUnknownMessageKind, ErrUnknownMessageKind},
	{KindBridgeUnavailable, ErrBridgeUnavailable},
}

// KindOf maps an error to its normalized Kind via errors.Is.
// Unrecognized errors map to KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, s := range kindSentinels {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return KindUnknown
}

// SentinelOf is the inverse of KindOf. The bridge client uses it to
// rebuild an errors.Is-checkable error from a wire-level Kind.
func SentinelOf(k Kind) error {
	for _, s := range kindSentinels {
		if s.kind == k {
			return s.err
		}
	}
	return ErrUnknown
}

// userMessages is the single stable Kind → human-readable message mapping.
// Every terminal task message and bridge error string derives from it.
var userMessages = map[Kind]string{
	KindAuthUnavailable:      "Not signed in: no drive cookies found",
	KindAuthExpired:          "Session expired, please sign in again",
	KindShareNotFound:        "Share does not exist",
	KindShareExpired:         "Share link has expired",
	KindInvalidAccessCode:    "Wrong access code",
	KindCapacityExceeded:     "Not enough space in the drive",
	KindFileExists:           "File already saved",
	KindContentBlocked:       "Content matches a blocked keyword",
	KindRateLimited:          "Too many requests, slow down",
	KindTimeout:              "Request timed out",
	KindNetworkError:         "Network connection failed",
	KindRetriesExhausted:     "Gave up after repeated failures",
	KindInterruptedByRestart: "Interrupted by a restart",
	KindUnknownMessageKind:   "Unrecognized message",
	KindBridgeUnavailable:    "Background service is not running",
	KindUnknown:              "Unknown error",
}

// UserMessage returns the stable human-readable message for a Kind.
func UserMessage(k Kind) string {
	if msg, ok := userMessages[k]; ok {
		return msg
	}
	return userMessages[KindUnknown]
}

// Transient reports whether err should be retried by the orchestrator's
// generic retry budget.
func Transient(err error) bool {
	return errors.Is(err, ErrNetworkError) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited)
}

// DriveError wraps a sentinel with provider-side detail. Provider error
// codes and HTTP statuses are normalized to a sentinel at the drive client
// boundary; callers check with errors.Is.
type DriveError struct {
	Provider string
	Code     int    // provider-specific code, 0 when not applicable
	Message  string // provider-supplied detail
	Err      error  // sentinel, for errors.Is()
}

func (e *DriveError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: code %d: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *DriveError) Unwrap() error { return e.Err }
