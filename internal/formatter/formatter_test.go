package formatter

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/drivehop/drivehop/internal/models"
)

func sampleTasks() []*models.Task {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	done := &models.Task{
		ID:        "3f2504e0-4f89-11d3-9a0c-0305e82c3301",
		SourceURL: "https://pan.quark.cn/s/abc123",
		Title:     "三体全集",
		Status:    models.StatusSuccess,
		Progress:  100,
		Message:   "transfer complete",
		Result: &models.TaskResult{
			ShareLink:  "https://pan.baidu.com/s/1OutXyz",
			AccessCode: "ab12",
		},
		CreatedAt: created,
		UpdatedAt: created.Add(time.Minute),
	}

	failed := &models.Task{
		ID:        "9b2d7c44-0000-4000-8000-000000000000",
		SourceURL: "https://pan.quark.cn/s/def456",
		Title:     "a|b pipes",
		Status:    models.StatusFailed,
		Progress:  50,
		Message:   "share link has expired",
		CreatedAt: created,
		UpdatedAt: created,
	}

	return []*models.Task{done, failed}
}

func TestExportToCSV(t *testing.T) {
	out, err := ExportToCSV(sampleTasks())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("expected parseable CSV, got %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 records, got %d rows", len(records))
	}

	header := records[0]
	want := []string{"ID", "Title", "Status", "Progress", "Message", "Link", "Created", "Updated"}
	for i, col := range want {
		if header[i] != col {
			t.Errorf("expected header %s at column %d, got %s", col, i, header[i])
		}
	}

	first := records[1]
	if first[1] != "三体全集" || first[2] != "success" || first[3] != "100" {
		t.Errorf("unexpected first record %v", first)
	}
	if first[5] != "https://pan.baidu.com/s/1OutXyz (code: ab12)" {
		t.Errorf("expected link with access code, got %s", first[5])
	}
	if first[6] != "2026-03-14T09:26:53Z" {
		t.Errorf("expected RFC3339 created time, got %s", first[6])
	}

	if records[2][5] != "" {
		t.Errorf("expected empty link for failed task, got %s", records[2][5])
	}
}

func TestExportToMarkdown(t *testing.T) {
	out := string(ExportToMarkdown(sampleTasks()))
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, separator and 2 rows, got %d lines", len(lines))
	}

	if lines[0] != "| Title | Status | Progress | Message | Link |" {
		t.Errorf("unexpected header line %q", lines[0])
	}
	if !strings.Contains(lines[2], "| 三体全集 | success | 100% |") {
		t.Errorf("unexpected first row %q", lines[2])
	}
	if !strings.Contains(lines[3], `a\|b pipes`) {
		t.Errorf("expected pipes to be escaped, got %q", lines[3])
	}
}

func TestExportToTable(t *testing.T) {
	out, err := ExportToTable(sampleTasks())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	text := string(out)

	if !strings.Contains(text, "ID") || !strings.Contains(text, "STATUS") {
		t.Error("expected column headers in table output")
	}
	if !strings.Contains(text, "3f2504e0") {
		t.Error("expected truncated task id in table output")
	}
	if strings.Contains(text, "3f2504e0-") {
		t.Error("expected id to be truncated to 8 characters")
	}
	if !strings.Contains(text, "50%") {
		t.Error("expected progress percentage in table output")
	}
}

func TestResultLink(t *testing.T) {
	tests := []struct {
		name string
		task *models.Task
		want string
	}{
		{"no result", &models.Task{}, ""},
		{"result without link", &models.Task{Result: &models.TaskResult{}}, ""},
		{"link only", &models.Task{Result: &models.TaskResult{ShareLink: "https://x"}}, "https://x"},
		{"link with code", &models.Task{Result: &models.TaskResult{ShareLink: "https://x", AccessCode: "ab12"}}, "https://x (code: ab12)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resultLink(tt.task); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
