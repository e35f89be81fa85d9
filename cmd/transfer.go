package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/drivehop/drivehop/internal/models"
	"github.com/drivehop/drivehop/internal/shared"
	"github.com/drivehop/drivehop/internal/tasks"
)

// Transfer queues a share link on the daemon and optionally follows its
// progress until the task reaches a terminal state.
func (r *Runner) Transfer(ctx context.Context, cmd *cli.Command) error {
	shareURL := stringArg(cmd, "url")
	if shareURL == "" {
		return fmt.Errorf("%w: share URL argument is required", shared.ErrInvalidConfig)
	}

	config := r.loadConfig(cmd)
	client := r.bridgeClient(config)

	task, err := client.EnqueueTransfer(ctx, shareURL, cmd.String("code"))
	if err != nil {
		return fmt.Errorf("failed to queue transfer: %w", err)
	}

	r.writePlain("✓ Task queued: %s\n", task.ID)

	if !cmd.Bool("watch") && !cmd.Bool("open") {
		r.writePlain("Follow it with 'drivehop tasks list' or 'drivehop tui'\n")
		return nil
	}

	final, err := r.watchTask(ctx, client, task.ID)
	if err != nil {
		return err
	}

	switch final.Status {
	case models.StatusSuccess:
		r.writePlainln("✓ Transfer complete")
		if final.Result != nil && final.Result.ShareLink != "" {
			r.writePlain("Share link: %s\n", final.Result.ShareLink)
			if final.Result.AccessCode != "" {
				r.writePlain("Access code: %s\n", final.Result.AccessCode)
			}
			if cmd.Bool("open") {
				if err := shared.OpenBrowser(final.Result.ShareLink); err != nil {
					r.logger.Warn("failed to open browser", "error", err)
				}
			}
		}
		return nil
	case models.StatusCancelled:
		r.writePlainln("Task was cancelled")
		return nil
	default:
		return fmt.Errorf("transfer failed: %s", final.Message)
	}
}

// watchTask follows the event stream until the given task finishes. A
// dropped stream falls back to listing; the daemon may have finished the
// task while we were disconnected.
func (r *Runner) watchTask(ctx context.Context, client taskWatcher, id string) (*models.Task, error) {
	events, unsubscribe, err := client.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	defer unsubscribe()

	lastProgress := -1
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case event, ok := <-events:
			if !ok {
				return r.findTask(ctx, client, id)
			}
			if event.Task == nil || event.Task.ID != id {
				continue
			}
			if event.Task.Progress != lastProgress {
				lastProgress = event.Task.Progress
				r.writePlain("[%3d%%] %s\n", event.Task.Progress, event.Task.Message)
			}
			if event.Task.Status.Terminal() {
				return event.Task, nil
			}
		}
	}
}

func (r *Runner) findTask(ctx context.Context, client taskWatcher, id string) (*models.Task, error) {
	list, err := client.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	for _, task := range list {
		if task.ID == id {
			return task, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", shared.ErrTaskNotFound, id)
}

// taskWatcher is the client slice watchTask needs; tests substitute it.
type taskWatcher interface {
	Subscribe(ctx context.Context) (<-chan tasks.TaskEvent, func(), error)
	ListTasks(ctx context.Context) ([]*models.Task, error)
}
