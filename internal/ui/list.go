package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/drivehop/drivehop/internal/models"
)

var _ list.Item = taskItem{}

// taskItem wraps [models.Task] to implement [list.Item].
type taskItem struct {
	task *models.Task
}

func (i taskItem) FilterValue() string { return i.task.Title }
func (i taskItem) Title() string       { return i.task.Title }
func (i taskItem) Description() string {
	switch i.task.Status {
	case models.StatusRunning:
		return fmt.Sprintf("%s • %d%% • %s", statusLabel(i.task.Status), i.task.Progress, i.task.Message)
	case models.StatusFailed:
		return fmt.Sprintf("%s • %s", statusLabel(i.task.Status), i.task.Message)
	default:
		return statusLabel(i.task.Status)
	}
}

func statusLabel(s models.Status) string {
	switch s {
	case models.StatusPending:
		return "queued"
	case models.StatusRunning:
		return "running"
	case models.StatusSuccess:
		return styles.ok.Render("done")
	case models.StatusFailed:
		return styles.err.Render("failed")
	case models.StatusCancelled:
		return styles.warn.Render("cancelled")
	default:
		return string(s)
	}
}
