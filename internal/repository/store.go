package repository

import (
	"context"
	"time"

	"github.com/iliyamo/campus-gate/internal/model"
)

// Store is the authoritative home of lobby counts and their audit trail.
// Reads outside InTx see committed data only.  Every mutation must go
// through InTx so that the count change and its audit rows commit or
// roll back together.
type Store interface {
	// ListLobbies returns every lobby ordered by name.
	ListLobbies(ctx context.Context) ([]model.Lobby, error)
	// ListBatchExits returns batch exits newest first.  An empty
	// lobbyName selects all lobbies; limit <= 0 means no limit.
	ListBatchExits(ctx context.Context, lobbyName string, limit int) ([]model.BatchExit, error)
	// EnsureLobbies creates any of the named lobbies that do not exist
	// yet with a count of zero.  Existing lobbies are left untouched.
	EnsureLobbies(ctx context.Context, names []string) error
	// InTx runs fn inside a single transaction.  The transaction is
	// committed when fn returns nil and rolled back otherwise.
	// Implementations may run fn more than once when the transaction
	// loses a serialization conflict, so fn must not have side effects
	// outside of tx.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// Tx is the set of operations available inside a ledger transaction.
type Tx interface {
	// LockLobby reads a lobby and holds a write lock on it until the
	// transaction ends.  Concurrent transactions locking the same lobby
	// wait for each other; different lobbies never contend.
	LockLobby(ctx context.Context, name string) (model.Lobby, error)
	// SaveLobbyCount writes count onto the lobby previously returned by
	// LockLobby.  The write only applies if the stored version still
	// equals l.Version; otherwise ErrVersionConflict is returned.
	SaveLobbyCount(ctx context.Context, l model.Lobby, count int, at time.Time) (model.Lobby, error)
	// InsertBatchExit appends a batch exit record.
	InsertBatchExit(ctx context.Context, b *model.BatchExit) error
	// InsertLobbyEvent appends an audit event and populates its ID.
	InsertLobbyEvent(ctx context.Context, e *model.LobbyEvent) error
}
