package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/drivehop/drivehop/internal/models"
	"github.com/drivehop/drivehop/internal/shared"
)

// SessionRepository persists per-provider credential snapshots.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository with the given database connection.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Upsert writes the session for its provider, replacing any previous snapshot.
func (r *SessionRepository) Upsert(session *models.Session) error {
	query := `
		INSERT INTO sessions (provider, token, fetched_at)
		VALUES (?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET token = excluded.token, fetched_at = excluded.fetched_at
	`
	if _, err := r.db.Exec(query, string(session.Provider), session.Token, session.FetchedAt); err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

// Get retrieves the session for a provider.
// Returns ErrAuthUnavailable when no snapshot exists.
func (r *SessionRepository) Get(provider models.Provider) (*models.Session, error) {
	var session models.Session
	var providerStr string

	err := r.db.QueryRow(
		"SELECT provider, token, fetched_at FROM sessions WHERE provider = ?",
		string(provider),
	).Scan(&providerStr, &session.Token, &session.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrAuthUnavailable, provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	session.Provider = models.Provider(providerStr)
	return &session, nil
}

// Delete removes the session for a provider. Deleting a missing session is not an error.
func (r *SessionRepository) Delete(provider models.Provider) error {
	if _, err := r.db.Exec("DELETE FROM sessions WHERE provider = ?", string(provider)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
