// package formatter provides functions to export task history to various formats (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/drivehop/drivehop/internal/models"
)

// ExportToCSV converts task records to CSV with columns: ID, Title, Status, Progress, Message, Link, Created, Updated
func ExportToCSV(taskList []*models.Task) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Status", "Progress", "Message", "Link", "Created", "Updated"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, task := range taskList {
		record := []string{
			task.ID,
			task.Title,
			string(task.Status),
			strconv.Itoa(task.Progress),
			task.Message,
			resultLink(task),
			task.CreatedAt.Format(time.RFC3339),
			task.UpdatedAt.Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts task records to a Markdown table.
func ExportToMarkdown(taskList []*models.Task) []byte {
	var buf bytes.Buffer

	buf.WriteString("| Title | Status | Progress | Message | Link |\n")
	buf.WriteString("| --- | --- | --- | --- | --- |\n")

	for _, task := range taskList {
		fmt.Fprintf(&buf, "| %s | %s | %d%% | %s | %s |\n",
			escapeMarkdown(task.Title),
			task.Status,
			task.Progress,
			escapeMarkdown(task.Message),
			resultLink(task),
		)
	}

	return buf.Bytes()
}

// ExportToTable converts task records to an aligned plain-text table.
func ExportToTable(taskList []*models.Task) ([]byte, error) {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPROGRESS\tMESSAGE")
	for _, task := range taskList {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\n",
			shortID(task.ID),
			task.Title,
			task.Status,
			task.Progress,
			task.Message,
		)
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush table: %w", err)
	}
	return buf.Bytes(), nil
}

// resultLink returns the destination share link for successful tasks.
func resultLink(task *models.Task) string {
	if task.Result == nil || task.Result.ShareLink == "" {
		return ""
	}
	if task.Result.AccessCode != "" {
		return fmt.Sprintf("%s (code: %s)", task.Result.ShareLink, task.Result.AccessCode)
	}
	return task.Result.ShareLink
}

// shortID truncates a UUID for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func escapeMarkdown(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
