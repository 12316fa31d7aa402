package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/iliyamo/campus-gate/internal/model"
)

// BatchExitRepo provides access to the append-only batch_exits table.
// The volunteer roster is stored as a JSON array in a single column so
// that its order is preserved exactly as submitted.
type BatchExitRepo struct {
	db *sql.DB
}

// NewBatchExitRepo returns a new BatchExitRepo bound to the given database.
func NewBatchExitRepo(db *sql.DB) *BatchExitRepo { return &BatchExitRepo{db: db} }

// CreateTx inserts b within tx.  The caller assigns ID and CreatedAt and
// is responsible for committing or rolling back the transaction.
func (r *BatchExitRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.BatchExit) error {
	roster, err := json.Marshal(b.Volunteers)
	if err != nil {
		return fmt.Errorf("marshal volunteers: %w", err)
	}
	var notes sql.NullString
	if b.Notes != nil {
		notes = sql.NullString{String: *b.Notes, Valid: true}
	}
	const q = `INSERT INTO batch_exits (id, lobby_name, people_count, volunteers, user_id, notes, shortfall, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, q,
		b.ID, b.LobbyName, b.PeopleCount, roster, b.UserID, notes, b.Shortfall, b.CreatedAt.UTC(),
	)
	return err
}

// List returns batch exits ordered by created_at descending, breaking
// ties on id so that the order is deterministic.  When lobbyName is
// empty all lobbies are included.  A limit <= 0 returns every row.
func (r *BatchExitRepo) List(ctx context.Context, lobbyName string, limit int) ([]model.BatchExit, error) {
	q := `SELECT id, lobby_name, people_count, volunteers, user_id, notes, shortfall, created_at FROM batch_exits`
	args := make([]interface{}, 0, 2)
	if lobbyName != "" {
		q += ` WHERE lobby_name = ?`
		args = append(args, lobbyName)
	}
	q += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	batches := []model.BatchExit{}
	for rows.Next() {
		var (
			b      model.BatchExit
			roster []byte
			notes  sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.LobbyName, &b.PeopleCount, &roster, &b.UserID, &notes, &b.Shortfall, &b.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(roster, &b.Volunteers); err != nil {
			return nil, fmt.Errorf("batch %s: decode volunteers: %w", b.ID, err)
		}
		if notes.Valid {
			n := notes.String
			b.Notes = &n
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}
