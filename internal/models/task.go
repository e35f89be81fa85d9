package models

import (
	"fmt"
	"time"

	"github.com/drivehop/drivehop/internal/shared"
)

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further automatic transition occurs from s.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

// CanTransitionTo reports whether the s → next transition is allowed.
//
// pending → running | cancelled; running → success | failed | cancelled.
// Terminal states are never left.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusCancelled
	case StatusRunning:
		return next == StatusSuccess || next == StatusFailed || next == StatusCancelled
	default:
		return false
	}
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusSuccess, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// TaskResult is populated once a task reaches a terminal state: the
// destination share link on success, the structured error on failure.
type TaskResult struct {
	ShareLink    string      `json:"share_link,omitempty"`
	AccessCode   string      `json:"access_code,omitempty"`
	ErrorKind    shared.Kind `json:"error_kind,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// Task represents one requested transfer from the source drive to the
// destination drive.
type Task struct {
	ID         string      `json:"id"`
	Sequence   int         `json:"sequence"`
	SourceURL  string      `json:"source_url"`
	AccessCode string      `json:"access_code,omitempty"`
	Title      string      `json:"title"`
	Status     Status      `json:"status"`
	Progress   int         `json:"progress"`
	Message    string      `json:"message"`
	Result     *TaskResult `json:"result,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// NewTask creates a pending Task for the given share URL and optional
// access code. The id is assigned here and never changes.
func NewTask(sourceURL, accessCode string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:         shared.GenerateID(),
		SourceURL:  sourceURL,
		AccessCode: accessCode,
		Title:      "Untitled share",
		Status:     StatusPending,
		Progress:   0,
		Message:    "Waiting...",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Validate checks that the task's data is internally consistent.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task id is empty")
	}
	if t.SourceURL == "" {
		return fmt.Errorf("task source url is empty")
	}
	if !t.Status.Valid() {
		return fmt.Errorf("invalid task status %q", t.Status)
	}
	if t.Progress < 0 || t.Progress > 100 {
		return fmt.Errorf("task progress %d out of range", t.Progress)
	}
	return nil
}

// Failed marks the task failed, storing the normalized error kind in the
// result and the stable user message for that kind.
func (t *Task) Failed(err error) {
	kind := shared.KindOf(err)
	t.Status = StatusFailed
	t.Message = shared.UserMessage(kind)
	t.Result = &TaskResult{
		ErrorKind:    kind,
		ErrorMessage: err.Error(),
	}
}

// Succeeded marks the task successful with the destination share link.
func (t *Task) Succeeded(link, accessCode string) {
	t.Status = StatusSuccess
	t.Progress = 100
	t.Message = "Transfer complete"
	t.Result = &TaskResult{ShareLink: link, AccessCode: accessCode}
}
