package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/drivehop/drivehop/internal/formatter"
	"github.com/drivehop/drivehop/internal/shared"
)

// TasksList prints all known tasks in queue order.
func (r *Runner) TasksList(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)
	client := r.bridgeClient(config)

	list, err := client.ListTasks(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(list, true)
	}

	if len(list) == 0 {
		r.writePlain("No tasks\n")
		return nil
	}

	table, err := formatter.ExportToTable(list)
	if err != nil {
		return err
	}
	return r.writePlain("%s", table)
}

// TasksCancel cancels a pending or running task by ID.
func (r *Runner) TasksCancel(ctx context.Context, cmd *cli.Command) error {
	id := stringArg(cmd, "id")
	if id == "" {
		return fmt.Errorf("%w: task ID argument is required", shared.ErrTaskNotFound)
	}

	config := r.loadConfig(cmd)
	if err := r.bridgeClient(config).CancelTask(ctx, id); err != nil {
		return err
	}

	r.writePlain("✓ Cancelled %s\n", id)
	return nil
}

// TasksDelete removes a settled task from the queue.
func (r *Runner) TasksDelete(ctx context.Context, cmd *cli.Command) error {
	id := stringArg(cmd, "id")
	if id == "" {
		return fmt.Errorf("%w: task ID argument is required", shared.ErrTaskNotFound)
	}

	config := r.loadConfig(cmd)
	if err := r.bridgeClient(config).DeleteTask(ctx, id); err != nil {
		return err
	}

	r.writePlain("✓ Deleted %s\n", id)
	return nil
}

// TasksClear removes finished tasks from history.
func (r *Runner) TasksClear(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	removed, err := r.bridgeClient(config).ClearCompleted(ctx)
	if err != nil {
		return err
	}

	r.writePlain("✓ Removed %d finished task(s)\n", removed)
	return nil
}

// TasksExport writes task history as CSV, Markdown, or an aligned table.
func (r *Runner) TasksExport(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	list, err := r.bridgeClient(config).ListTasks(ctx)
	if err != nil {
		return err
	}

	var data []byte
	switch format := strings.ToLower(cmd.String("format")); format {
	case "csv":
		data, err = formatter.ExportToCSV(list)
	case "markdown", "md":
		data = formatter.ExportToMarkdown(list)
	case "table", "":
		data, err = formatter.ExportToTable(list)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
	if err != nil {
		return err
	}

	if outputPath := cmd.String("output"); outputPath != "" {
		if err := os.WriteFile(outputPath, data, 0644); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		r.writePlain("✓ Exported %d task(s) to %s\n", len(list), outputPath)
		return nil
	}

	return r.writePlain("%s", data)
}
