package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/drivehop/drivehop/internal/drives"
	"github.com/drivehop/drivehop/internal/models"
	"github.com/drivehop/drivehop/internal/shared"
)

// Stage completion checkpoints. Each is persisted before the next stage
// starts so listeners observe exactly five progress writes per task.
const (
	progressResolved    = 20
	progressSavedSource = 50
	progressSourceShare = 60
	progressSavedDest   = 90
	progressComplete    = 100
)

// execute drives a single task through the pipeline to a terminal state.
func (o *Orchestrator) execute(ctx context.Context, task *models.Task) {
	logger := shared.WithLogger(o.logger, "task", task.ID)
	defer o.clearCancelFlag(task.ID)

	task.Status = models.StatusRunning
	task.Message = "Starting transfer..."
	if err := o.store.Update(task); err != nil {
		logger.Error("failed to start task", "err", err)
		return
	}
	if err := o.store.SetCurrent(task.ID); err != nil {
		logger.Error("failed to set current task", "err", err)
	}
	o.events.Publish(updatedEvent(task))

	err := o.runPipeline(ctx, task, logger)

	switch {
	case err == nil:
		logger.Info("transfer complete", "link", task.Result.ShareLink)
	case errors.Is(err, errCancelled):
		task.Status = models.StatusCancelled
		task.Message = "Cancelled"
		logger.Info("transfer cancelled")
	default:
		task.Failed(err)
		logger.Error("transfer failed", "kind", shared.KindOf(err), "err", err)
	}

	if updateErr := o.store.Update(task); updateErr != nil {
		logger.Error("failed to persist terminal state", "err", updateErr)
	}
	if err := o.store.SetCurrent(""); err != nil {
		logger.Error("failed to clear current task", "err", err)
	}
	o.events.Publish(doneEvent(task))
}

// errCancelled aborts the pipeline between stages after a cancel request.
var errCancelled = errors.New("task cancelled")

// runPipeline executes the five stages. On success the task carries the
// destination share link and progress 100; the terminal write happens in
// execute.
func (o *Orchestrator) runPipeline(ctx context.Context, task *models.Task, logger *log.Logger) error {
	sourcePolicy := o.retryPolicyFor(o.source.Provider())
	destPolicy := o.retryPolicyFor(o.dest.Provider())

	// Stage 1: resolve the source share and screen its content.
	share, err := callWithRetry(ctx, sourcePolicy, func(ctx context.Context) (*drives.ShareInfo, error) {
		return o.source.ResolveShare(ctx, task.SourceURL, task.AccessCode)
	})
	if err != nil {
		return err
	}

	if kw := blockedKeyword(share, o.transfer.BannedKeywords); kw != "" {
		return fmt.Errorf("%w: matched %q", shared.ErrContentBlocked, kw)
	}

	if share.Title != "" {
		task.Title = share.Title
	}
	if err := o.checkpoint(task, progressResolved, fmt.Sprintf("Resolved share: %s", task.Title)); err != nil {
		return err
	}
	if o.cancelRequested(task.ID) {
		return errCancelled
	}

	// Stage 2: save into the user's own source drive. Content that is
	// already saved is skipped, not fatal.
	saved, err := callWithRetry(ctx, sourcePolicy, func(ctx context.Context) (*drives.SavedResource, error) {
		return o.source.SaveToOwnDrive(ctx, share, o.folders.Source)
	})
	if err != nil {
		if !errors.Is(err, shared.ErrFileExists) {
			return err
		}
		logger.Info("content already saved in source drive, skipping")
		saved = savedFromShare(share, o.folders.Source)
	}
	if err := o.checkpoint(task, progressSavedSource, "Saved to source drive"); err != nil {
		return err
	}
	if o.cancelRequested(task.ID) {
		return errCancelled
	}

	// Stage 3: share the copy outbound from the source drive.
	sourceLink, err := callWithRetry(ctx, sourcePolicy, func(ctx context.Context) (*drives.ShareLink, error) {
		return o.source.CreateShare(ctx, saved)
	})
	if err != nil {
		return err
	}
	if err := o.checkpoint(task, progressSourceShare, "Created source share"); err != nil {
		return err
	}
	if o.cancelRequested(task.ID) {
		return errCancelled
	}

	// Stage 4: pull that share into the destination drive.
	destShare, err := callWithRetry(ctx, destPolicy, func(ctx context.Context) (*drives.ShareInfo, error) {
		return o.dest.ResolveShare(ctx, sourceLink.URL, sourceLink.AccessCode)
	})
	if err != nil {
		return err
	}

	destSaved, err := callWithRetry(ctx, destPolicy, func(ctx context.Context) (*drives.SavedResource, error) {
		return o.dest.SaveToOwnDrive(ctx, destShare, o.folders.Destination)
	})
	if err != nil {
		if !errors.Is(err, shared.ErrFileExists) {
			return err
		}
		logger.Info("content already saved in destination drive, skipping")
		destSaved = savedFromShare(destShare, o.folders.Destination)
	}
	if err := o.checkpoint(task, progressSavedDest, "Saved to destination drive"); err != nil {
		return err
	}
	if o.cancelRequested(task.ID) {
		return errCancelled
	}

	// Stage 5: create the destination share.
	destLink, err := callWithRetry(ctx, destPolicy, func(ctx context.Context) (*drives.ShareLink, error) {
		return o.dest.CreateShare(ctx, destSaved)
	})
	if err != nil {
		return err
	}

	task.Succeeded(destLink.URL, destLink.AccessCode)
	return nil
}

// checkpoint persists a stage boundary and broadcasts it.
func (o *Orchestrator) checkpoint(task *models.Task, progress int, message string) error {
	task.Progress = progress
	task.Message = message
	if err := o.store.Update(task); err != nil {
		return err
	}
	o.events.Publish(updatedEvent(task))
	return nil
}

// blockedKeyword returns the first banned keyword matching the share's
// title or any file name, or "" when the content is clean.
func blockedKeyword(share *drives.ShareInfo, keywords []string) string {
	if kw := shared.MatchKeyword(share.Title, keywords); kw != "" {
		return kw
	}
	for _, f := range share.Files {
		if kw := shared.MatchKeyword(f.Name, keywords); kw != "" {
			return kw
		}
	}
	return ""
}

// savedFromShare builds the saved-resource handle for content the provider
// reported as already present.
func savedFromShare(share *drives.ShareInfo, folder string) *drives.SavedResource {
	ids := make([]string, 0, len(share.Files))
	for _, f := range share.Files {
		ids = append(ids, f.ID)
	}
	return &drives.SavedResource{Provider: share.Provider, FileIDs: ids, Folder: folder}
}
