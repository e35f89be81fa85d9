package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/drivehop/drivehop/internal/models"
	"github.com/drivehop/drivehop/internal/shared"
)

const taskColumns = "id, sequence, source_url, access_code, title, status, progress, message, result, created_at, updated_at"

// TaskRepository is the durable, ordered task store.
//
// The orchestrator exclusively owns the write path for status/progress; UI
// surfaces reach it only through enqueue and cancel operations.
type TaskRepository struct {
	db *sql.DB
	mu sync.Mutex // serializes read-modify-write cycles on single tasks
}

// NewTaskRepository creates a new TaskRepository with the given database connection.
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts a new task, assigning its FIFO sequence number.
func (r *TaskRepository) Create(task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sequence, err := NextSequence(r.db, "tasks")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}
	task.Sequence = sequence

	if err := task.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	resultJSON, err := marshalResult(task.Result)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (id, sequence, source_url, access_code, title, status, progress, message, result, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		task.ID,
		task.Sequence,
		task.SourceURL,
		task.AccessCode,
		task.Title,
		string(task.Status),
		task.Progress,
		task.Message,
		resultJSON,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	return nil
}

// Get retrieves a task by id.
func (r *TaskRepository) Get(id string) (*models.Task, error) {
	query := fmt.Sprintf("SELECT %s FROM tasks WHERE id = ?", taskColumns)
	return scanTask(r.db.QueryRow(query, id))
}

// Update writes the task row after checking the status transition against
// the persisted state. Terminal states are never overwritten, status
// transitions follow the state machine, and progress never decreases while
// running.
func (r *TaskRepository) Update(task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := task.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var currentStatus string
	var currentProgress int
	err = tx.QueryRow("SELECT status, progress FROM tasks WHERE id = ?", task.ID).Scan(&currentStatus, &currentProgress)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", shared.ErrTaskNotFound, task.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to read current task state: %w", err)
	}

	current := models.Status(currentStatus)
	if current != task.Status && !current.CanTransitionTo(task.Status) {
		return fmt.Errorf("illegal status transition %s → %s for task %s", current, task.Status, task.ID)
	}
	if current == models.StatusRunning && task.Status == models.StatusRunning && task.Progress < currentProgress {
		return fmt.Errorf("progress went backwards (%d → %d) for task %s", currentProgress, task.Progress, task.ID)
	}

	task.UpdatedAt = time.Now().UTC()

	resultJSON, err := marshalResult(task.Result)
	if err != nil {
		return err
	}

	query := `
		UPDATE tasks
		SET title = ?, status = ?, progress = ?, message = ?, result = ?, updated_at = ?
		WHERE id = ?
	`
	if _, err := tx.Exec(query,
		task.Title,
		string(task.Status),
		task.Progress,
		task.Message,
		resultJSON,
		task.UpdatedAt,
		task.ID,
	); err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	return tx.Commit()
}

// Delete removes a task row.
func (r *TaskRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrTaskNotFound, id)
	}

	return nil
}

// List retrieves all tasks in submission order.
func (r *TaskRepository) List() ([]*models.Task, error) {
	query := fmt.Sprintf("SELECT %s FROM tasks ORDER BY sequence ASC", taskColumns)
	return r.queryTasks(query)
}

// ListByStatus retrieves all tasks with the given status in submission order.
func (r *TaskRepository) ListByStatus(status models.Status) ([]*models.Task, error) {
	query := fmt.Sprintf("SELECT %s FROM tasks WHERE status = ? ORDER BY sequence ASC", taskColumns)
	return r.queryTasks(query, string(status))
}

// NextPending returns the oldest pending task, or nil when the queue is empty.
func (r *TaskRepository) NextPending() (*models.Task, error) {
	query := fmt.Sprintf("SELECT %s FROM tasks WHERE status = ? ORDER BY sequence ASC LIMIT 1", taskColumns)
	task, err := scanTask(r.db.QueryRow(query, string(models.StatusPending)))
	if errors.Is(err, shared.ErrTaskNotFound) {
		return nil, nil
	}
	return task, err
}

// CurrentRunning returns the running task, or nil when none is running.
func (r *TaskRepository) CurrentRunning() (*models.Task, error) {
	query := fmt.Sprintf("SELECT %s FROM tasks WHERE status = ? LIMIT 1", taskColumns)
	task, err := scanTask(r.db.QueryRow(query, string(models.StatusRunning)))
	if errors.Is(err, shared.ErrTaskNotFound) {
		return nil, nil
	}
	return task, err
}

// SetCurrent persists the "current task id" pointer; pass "" to clear it.
func (r *TaskRepository) SetCurrent(id string) error {
	var value any
	if id != "" {
		value = id
	}
	if _, err := r.db.Exec("UPDATE current_task SET task_id = ? WHERE id = 1", value); err != nil {
		return fmt.Errorf("failed to set current task: %w", err)
	}
	return nil
}

// Current returns the persisted "current task id" pointer, or "" when unset.
func (r *TaskRepository) Current() (string, error) {
	var id sql.NullString
	if err := r.db.QueryRow("SELECT task_id FROM current_task WHERE id = 1").Scan(&id); err != nil {
		return "", fmt.Errorf("failed to read current task: %w", err)
	}
	return id.String, nil
}

// MarkInterrupted fails every task found running, used at startup.
// A task still marked running after a restart was interrupted mid-pipeline
// and is never silently resumed. Returns the number of tasks swept.
func (r *TaskRepository) MarkInterrupted() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	running, err := r.queryTasks(
		fmt.Sprintf("SELECT %s FROM tasks WHERE status = ?", taskColumns),
		string(models.StatusRunning),
	)
	if err != nil {
		return 0, err
	}

	kind := shared.KindInterruptedByRestart
	for _, task := range running {
		resultJSON, err := marshalResult(&models.TaskResult{
			ErrorKind:    kind,
			ErrorMessage: shared.ErrInterruptedByRestart.Error(),
		})
		if err != nil {
			return 0, err
		}

		query := `
			UPDATE tasks
			SET status = ?, message = ?, result = ?, updated_at = ?
			WHERE id = ? AND status = ?
		`
		if _, err := r.db.Exec(query,
			string(models.StatusFailed),
			shared.UserMessage(kind),
			resultJSON,
			time.Now().UTC(),
			task.ID,
			string(models.StatusRunning),
		); err != nil {
			return 0, fmt.Errorf("failed to mark task %s interrupted: %w", task.ID, err)
		}
	}

	if len(running) > 0 {
		if _, err := r.db.Exec("UPDATE current_task SET task_id = NULL WHERE id = 1"); err != nil {
			return 0, fmt.Errorf("failed to clear current task: %w", err)
		}
	}

	return len(running), nil
}

// ClearCompleted deletes all terminal tasks and returns how many were removed.
func (r *TaskRepository) ClearCompleted() (int, error) {
	result, err := r.db.Exec(
		"DELETE FROM tasks WHERE status IN (?, ?, ?)",
		string(models.StatusSuccess),
		string(models.StatusFailed),
		string(models.StatusCancelled),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clear completed tasks: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(rows), nil
}

func (r *TaskRepository) queryTasks(query string, args ...any) ([]*models.Task, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row *sql.Row) (*models.Task, error) {
	task, err := scanTaskRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrTaskNotFound
	}
	return task, err
}

func scanTaskRow(row rowScanner) (*models.Task, error) {
	var task models.Task
	var status string
	var resultJSON sql.NullString

	err := row.Scan(
		&task.ID,
		&task.Sequence,
		&task.SourceURL,
		&task.AccessCode,
		&task.Title,
		&status,
		&task.Progress,
		&task.Message,
		&resultJSON,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Status = models.Status(status)
	if resultJSON.Valid && resultJSON.String != "" {
		var result models.TaskResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("failed to decode task result: %w", err)
		}
		task.Result = &result
	}

	return &task, nil
}

func marshalResult(result *models.TaskResult) (any, error) {
	if result == nil {
		return nil, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task result: %w", err)
	}
	return string(data), nil
}
