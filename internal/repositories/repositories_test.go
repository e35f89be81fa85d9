package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/drivehop/drivehop/internal/models"
	"github.com/drivehop/drivehop/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func newTestTask(url string) *models.Task {
	return models.NewTask(url, "")
}

func TestTaskRepository(t *testing.T) {
	t.Run("Create assigns increasing sequence", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTaskRepository(db)
		first := newTestTask("https://pan.quark.cn/s/one")
		second := newTestTask("https://pan.quark.cn/s/two")

		if err := repo.Create(first); err != nil {
			t.Fatalf("failed to create task: %v", err)
		}
		if err := repo.Create(second); err != nil {
			t.Fatalf("failed to create task: %v", err)
		}

		if second.Sequence <= first.Sequence {
			t.Errorf("sequence should increase: %d then %d", first.Sequence, second.Sequence)
		}
	})

	t.Run("Get round-trips all fields", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTaskRepository(db)
		task := models.NewTask("https://pan.quark.cn/s/abc", "x9k2")
		if err := repo.Create(task); err != nil {
			t.Fatalf("failed to create task: %v", err)
		}

		got, err := repo.Get(task.ID)
		if err != nil {
			t.Fatalf("failed to get task: %v", err)
		}

		if got.SourceURL != task.SourceURL || got.AccessCode != "x9k2" {
			t.Errorf("unexpected task: %+v", got)
		}
		if got.Status != models.StatusPending || got.Progress != 0 {
			t.Errorf("unexpected state: %s %d", got.Status, got.Progress)
		}
	})

	t.Run("Get missing task", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		_, err := NewTaskRepository(db).Get("nope")
		if !errors.Is(err, shared.ErrTaskNotFound) {
			t.Errorf("expected ErrTaskNotFound, got %v", err)
		}
	})

	t.Run("Update persists result as JSON", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTaskRepository(db)
		task := newTestTask("https://pan.quark.cn/s/abc")
		if err := repo.Create(task); err != nil {
			t.Fatal(err)
		}

		task.Status = models.StatusRunning
		if err := repo.Update(task); err != nil {
			t.Fatal(err)
		}
		task.Succeeded("https://pan.baidu.com/s/xyz", "ab12")
		if err := repo.Update(task); err != nil {
			t.Fatal(err)
		}

		got, err := repo.Get(task.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Result == nil || got.Result.ShareLink != "https://pan.baidu.com/s/xyz" {
			t.Errorf("result not persisted: %+v", got.Result)
		}
	})

	t.Run("Update rejects illegal transition", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTaskRepository(db)
		task := newTestTask("https://pan.quark.cn/s/abc")
		if err := repo.Create(task); err != nil {
			t.Fatal(err)
		}

		task.Status = models.StatusSuccess
		if err := repo.Update(task); err == nil {
			t.Error("pending → success should be rejected")
		}
	})

	t.Run("Update never overwrites terminal state", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTaskRepository(db)
		task := newTestTask("https://pan.quark.cn/s/abc")
		if err := repo.Create(task); err != nil {
			t.Fatal(err)
		}

		task.Status = models.StatusRunning
		if err := repo.Update(task); err != nil {
			t.Fatal(err)
		}
		task.Status = models.StatusCancelled
		if err := repo.Update(task); err != nil {
			t.Fatal(err)
		}

		task.Status = models.StatusSuccess
		if err := repo.Update(task); err == nil {
			t.Error("cancelled task should stay cancelled")
		}

		got, _ := repo.Get(task.ID)
		if got.Status != models.StatusCancelled {
			t.Errorf("expected cancelled, got %s", got.Status)
		}
	})

	t.Run("Update rejects progress regression while running", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTaskRepository(db)
		task := newTestTask("https://pan.quark.cn/s/abc")
		if err := repo.Create(task); err != nil {
			t.Fatal(err)
		}

		task.Status = models.StatusRunning
		task.Progress = 50
		if err := repo.Update(task); err != nil {
			t.Fatal(err)
		}

		task.Progress = 20
		if err := repo.Update(task); err == nil {
			t.Error("progress regression should be rejected")
		}
	})

	t.Run("NextPending is FIFO", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTaskRepository(db)
		var ids []string
		for i := 0; i < 3; i++ {
			task := newTestTask(fmt.Sprintf("https://pan.quark.cn/s/%d", i))
			if err := repo.Create(task); err != nil {
				t.Fatal(err)
			}
			ids = append(ids, task.ID)
		}

		for _, want := range ids {
			next, err := repo.NextPending()
			if err != nil {
				t.Fatal(err)
			}
			if next == nil || next.ID != want {
				t.Fatalf("expected %s next, got %+v", want, next)
			}

			next.Status = models.StatusRunning
			if err := repo.Update(next); err != nil {
				t.Fatal(err)
			}
			next.Status = models.StatusSuccess
			if err := repo.Update(next); err != nil {
				t.Fatal(err)
			}
		}

		next, err := repo.NextPending()
		if err != nil {
			t.Fatal(err)
		}
		if next != nil {
			t.Errorf("empty queue should yield nil, got %+v", next)
		}
	})

	t.Run("CurrentRunning", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTaskRepository(db)

		running, err := repo.CurrentRunning()
		if err != nil {
			t.Fatal(err)
		}
		if running != nil {
			t.Errorf("expected nil with no running task, got %+v", running)
		}

		task := newTestTask("https://pan.quark.cn/s/abc")
		if err := repo.Create(task); err != nil {
			t.Fatal(err)
		}
		task.Status = models.StatusRunning
		if err := repo.Update(task); err != nil {
			t.Fatal(err)
		}

		running, err = repo.CurrentRunning()
		if err != nil {
			t.Fatal(err)
		}
		if running == nil || running.ID != task.ID {
			t.Errorf("expected %s running, got %+v", task.ID, running)
		}
	})

	t.Run("SetCurrent and Current", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTaskRepository(db)

		id, err := repo.Current()
		if err != nil {
			t.Fatal(err)
		}
		if id != "" {
			t.Errorf("expected empty current pointer, got %q", id)
		}

		if err := repo.SetCurrent("task-1"); err != nil {
			t.Fatal(err)
		}
		if id, _ = repo.Current(); id != "task-1" {
			t.Errorf("expected task-1, got %q", id)
		}

		if err := repo.SetCurrent(""); err != nil {
			t.Fatal(err)
		}
		if id, _ = repo.Current(); id != "" {
			t.Errorf("expected cleared pointer, got %q", id)
		}
	})

	t.Run("MarkInterrupted sweeps running tasks", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTaskRepository(db)

		running := newTestTask("https://pan.quark.cn/s/run")
		pending := newTestTask("https://pan.quark.cn/s/wait")
		for _, task := range []*models.Task{running, pending} {
			if err := repo.Create(task); err != nil {
				t.Fatal(err)
			}
		}
		running.Status = models.StatusRunning
		running.Progress = 50
		if err := repo.Update(running); err != nil {
			t.Fatal(err)
		}
		if err := repo.SetCurrent(running.ID); err != nil {
			t.Fatal(err)
		}

		swept, err := repo.MarkInterrupted()
		if err != nil {
			t.Fatal(err)
		}
		if swept != 1 {
			t.Errorf("expected 1 swept task, got %d", swept)
		}

		got, _ := repo.Get(running.ID)
		if got.Status != models.StatusFailed {
			t.Errorf("expected failed, got %s", got.Status)
		}
		if got.Result == nil || got.Result.ErrorKind != shared.KindInterruptedByRestart {
			t.Errorf("expected interrupted_by_restart kind, got %+v", got.Result)
		}

		untouched, _ := repo.Get(pending.ID)
		if untouched.Status != models.StatusPending {
			t.Errorf("pending task should be untouched, got %s", untouched.Status)
		}

		if id, _ := repo.Current(); id != "" {
			t.Errorf("current pointer should be cleared, got %q", id)
		}
	})

	t.Run("ClearCompleted keeps live tasks", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTaskRepository(db)

		done := newTestTask("https://pan.quark.cn/s/done")
		pending := newTestTask("https://pan.quark.cn/s/wait")
		for _, task := range []*models.Task{done, pending} {
			if err := repo.Create(task); err != nil {
				t.Fatal(err)
			}
		}
		done.Status = models.StatusRunning
		if err := repo.Update(done); err != nil {
			t.Fatal(err)
		}
		done.Succeeded("https://pan.baidu.com/s/x", "")
		if err := repo.Update(done); err != nil {
			t.Fatal(err)
		}

		removed, err := repo.ClearCompleted()
		if err != nil {
			t.Fatal(err)
		}
		if removed != 1 {
			t.Errorf("expected 1 removed, got %d", removed)
		}

		list, err := repo.List()
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 1 || list[0].ID != pending.ID {
			t.Errorf("unexpected remaining tasks: %+v", list)
		}
	})

	t.Run("Delete removes one task", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTaskRepository(db)
		task := newTestTask("https://pan.quark.cn/s/gone")
		keep := newTestTask("https://pan.quark.cn/s/keep")
		for _, created := range []*models.Task{task, keep} {
			if err := repo.Create(created); err != nil {
				t.Fatal(err)
			}
		}

		if err := repo.Delete(task.ID); err != nil {
			t.Fatalf("failed to delete task: %v", err)
		}
		if _, err := repo.Get(task.ID); !errors.Is(err, shared.ErrTaskNotFound) {
			t.Errorf("expected ErrTaskNotFound, got %v", err)
		}
		if _, err := repo.Get(keep.ID); err != nil {
			t.Errorf("other tasks must survive a delete: %v", err)
		}
	})

	t.Run("Delete missing task", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTaskRepository(db)
		if err := repo.Delete("no-such-id"); !errors.Is(err, shared.ErrTaskNotFound) {
			t.Errorf("expected ErrTaskNotFound, got %v", err)
		}
	})
}

func TestSessionRepository(t *testing.T) {
	t.Run("Upsert and Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSessionRepository(db)
		session := &models.Session{
			Provider:  models.ProviderQuark,
			Token:     "__pus=abc",
			FetchedAt: time.Now().UTC(),
		}

		if err := repo.Upsert(session); err != nil {
			t.Fatalf("failed to upsert session: %v", err)
		}

		got, err := repo.Get(models.ProviderQuark)
		if err != nil {
			t.Fatalf("failed to get session: %v", err)
		}
		if got.Token != "__pus=abc" {
			t.Errorf("unexpected token: %q", got.Token)
		}
	})

	t.Run("Upsert replaces existing snapshot", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSessionRepository(db)
		for _, token := range []string{"old", "new"} {
			session := &models.Session{
				Provider:  models.ProviderBaidu,
				Token:     token,
				FetchedAt: time.Now().UTC(),
			}
			if err := repo.Upsert(session); err != nil {
				t.Fatal(err)
			}
		}

		got, err := repo.Get(models.ProviderBaidu)
		if err != nil {
			t.Fatal(err)
		}
		if got.Token != "new" {
			t.Errorf("expected replaced token, got %q", got.Token)
		}
	})

	t.Run("Get missing session", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		_, err := NewSessionRepository(db).Get(models.ProviderQuark)
		if !errors.Is(err, shared.ErrAuthUnavailable) {
			t.Errorf("expected ErrAuthUnavailable, got %v", err)
		}
	})

	t.Run("Delete is idempotent", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSessionRepository(db)
		if err := repo.Delete(models.ProviderQuark); err != nil {
			t.Errorf("deleting a missing session should not error: %v", err)
		}
	})
}
