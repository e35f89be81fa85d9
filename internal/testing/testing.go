// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/drivehop/drivehop/internal/models"
	"github.com/drivehop/drivehop/internal/tasks"
)

// MockBridge is a test double for the daemon's bridge client. Command
// tests script its task list and event stream instead of dialing a
// running daemon.
type MockBridge struct {
	Tasks     []*models.Task
	Events    []tasks.TaskEvent
	ListErr   error
	SubErr    error
	Cancelled []string
}

func (m *MockBridge) ListTasks(ctx context.Context) ([]*models.Task, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return m.Tasks, nil
}

func (m *MockBridge) CancelTask(ctx context.Context, id string) error {
	m.Cancelled = append(m.Cancelled, id)
	return nil
}

// Subscribe replays the scripted events, then closes the stream.
func (m *MockBridge) Subscribe(ctx context.Context) (<-chan tasks.TaskEvent, func(), error) {
	if m.SubErr != nil {
		return nil, nil, m.SubErr
	}
	events := make(chan tasks.TaskEvent, len(m.Events))
	for _, event := range m.Events {
		events <- event
	}
	close(events)
	return events, func() {}, nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
