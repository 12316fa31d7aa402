package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/campus-gate/internal/model"
)

// LobbyEventRepo appends rows to lobby_events.  Rows are never updated.
type LobbyEventRepo struct {
	db *sql.DB
}

// NewLobbyEventRepo returns a new LobbyEventRepo bound to the given database.
func NewLobbyEventRepo(db *sql.DB) *LobbyEventRepo { return &LobbyEventRepo{db: db} }

// CreateTx inserts e within tx and populates its generated ID.
func (r *LobbyEventRepo) CreateTx(ctx context.Context, tx *sql.Tx, e *model.LobbyEvent) error {
	const q = `INSERT INTO lobby_events (lobby_name, kind, previous_count, new_count, user_id, batch_id, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	var batchID sql.NullString
	if e.BatchID != nil {
		batchID = sql.NullString{String: *e.BatchID, Valid: true}
	}
	res, err := tx.ExecContext(ctx, q,
		e.LobbyName, string(e.Kind), e.PreviousCount, e.NewCount, e.UserID, batchID, e.CreatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}
