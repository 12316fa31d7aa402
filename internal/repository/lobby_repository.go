package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/campus-gate/internal/model"
)

// LobbyRepo provides data access to the lobbies table.  All timestamps
// are stored as DATETIME(6) in UTC.
type LobbyRepo struct {
	db *sql.DB
}

// NewLobbyRepo returns a new LobbyRepo bound to the provided database.
func NewLobbyRepo(db *sql.DB) *LobbyRepo { return &LobbyRepo{db: db} }

// List returns all lobbies ordered by name.
func (r *LobbyRepo) List(ctx context.Context) ([]model.Lobby, error) {
	const q = `SELECT name, current_count, version, last_updated FROM lobbies ORDER BY name`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lobbies := []model.Lobby{}
	for rows.Next() {
		var l model.Lobby
		if err := rows.Scan(&l.Name, &l.CurrentCount, &l.Version, &l.LastUpdated); err != nil {
			return nil, err
		}
		lobbies = append(lobbies, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lobbies, nil
}

// GetForUpdateTx loads a lobby inside tx and takes a row lock on it with
// SELECT ... FOR UPDATE.  The lock is held until tx commits or rolls
// back.  It returns ErrLobbyNotFound when no row matches.
func (r *LobbyRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, name string) (model.Lobby, error) {
	const q = `SELECT name, current_count, version, last_updated FROM lobbies WHERE name = ? FOR UPDATE`
	var l model.Lobby
	err := tx.QueryRowContext(ctx, q, name).Scan(&l.Name, &l.CurrentCount, &l.Version, &l.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Lobby{}, ErrLobbyNotFound
	}
	if err != nil {
		return model.Lobby{}, err
	}
	return l, nil
}

// UpdateCountTx sets the lobby's count, bumps its version and stamps
// last_updated.  The update is conditional on the version read by
// GetForUpdateTx; when no row matches, ErrVersionConflict is returned.
func (r *LobbyRepo) UpdateCountTx(ctx context.Context, tx *sql.Tx, l model.Lobby, count int, at time.Time) (model.Lobby, error) {
	const q = `UPDATE lobbies SET current_count = ?, version = version + 1, last_updated = ?
	           WHERE name = ? AND version = ?`
	res, err := tx.ExecContext(ctx, q, count, at.UTC(), l.Name, l.Version)
	if err != nil {
		return model.Lobby{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Lobby{}, err
	}
	if n == 0 {
		return model.Lobby{}, ErrVersionConflict
	}
	l.CurrentCount = count
	l.Version++
	l.LastUpdated = at.UTC()
	return l, nil
}

// EnsureNames inserts a zero-count row for every name that is missing.
// INSERT IGNORE leaves existing rows, and their counts, untouched.
func (r *LobbyRepo) EnsureNames(ctx context.Context, names []string) error {
	const q = `INSERT IGNORE INTO lobbies (name, current_count, version, last_updated) VALUES (?, 0, 0, ?)`
	now := time.Now().UTC()
	for _, n := range names {
		if _, err := r.db.ExecContext(ctx, q, n, now); err != nil {
			return err
		}
	}
	return nil
}
