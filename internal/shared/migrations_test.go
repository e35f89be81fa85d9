package shared

import "testing"

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("failed to load migrations: %v", err)
	}

	if len(migrations) == 0 {
		t.Fatal("no migrations embedded")
	}

	for i, migration := range migrations {
		if migration.Up == "" {
			t.Errorf("migration %d missing up SQL", migration.Version)
		}
		if migration.Down == "" {
			t.Errorf("migration %d missing down SQL", migration.Version)
		}
		if i > 0 && migrations[i-1].Version >= migration.Version {
			t.Error("migrations should be sorted by version")
		}
	}
}

func TestRunMigrations(t *testing.T) {
	db, err := NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	defer db.Close()

	if err := RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	// Applying again is a no-op.
	if err := RunMigrations(db); err != nil {
		t.Fatalf("re-running migrations failed: %v", err)
	}

	for _, table := range []string{"tasks", "tasks_sequence", "sessions", "current_task"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("expected table %s to exist: %v", table, err)
		}
	}
}

func TestRemoveComments(t *testing.T) {
	in := "CREATE TABLE x (\n  id TEXT, -- primary key\n  -- full line comment\n  v INTEGER\n)"
	got := removeComments(in)
	want := "CREATE TABLE x (\nid TEXT,\nv INTEGER\n)"
	if got != want {
		t.Errorf("removeComments() = %q, want %q", got, want)
	}
}
