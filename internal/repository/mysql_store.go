package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/campus-gate/internal/model"
)

// MySQL server error numbers that mean "run the transaction again".
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// MySQLStore implements Store on MySQL/InnoDB.  Lobby rows are locked
// with SELECT ... FOR UPDATE and written with a version check, so two
// guard terminals decrementing the same lobby serialise on the row
// while different lobbies proceed in parallel.
type MySQLStore struct {
	db         *sql.DB
	lobbies    *LobbyRepo
	batches    *BatchExitRepo
	events     *LobbyEventRepo
	maxRetries int
	backoff    time.Duration
}

// NewMySQLStore builds a MySQLStore.  maxRetries is the number of extra
// attempts InTx makes after a retryable failure; backoff is multiplied
// by the attempt number between tries.
func NewMySQLStore(db *sql.DB, maxRetries int, backoff time.Duration) *MySQLStore {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &MySQLStore{
		db:         db,
		lobbies:    NewLobbyRepo(db),
		batches:    NewBatchExitRepo(db),
		events:     NewLobbyEventRepo(db),
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// DB exposes the underlying sql.DB for migrations and health checks.
func (s *MySQLStore) DB() *sql.DB { return s.db }

func (s *MySQLStore) ListLobbies(ctx context.Context) ([]model.Lobby, error) {
	return s.lobbies.List(ctx)
}

func (s *MySQLStore) ListBatchExits(ctx context.Context, lobbyName string, limit int) ([]model.BatchExit, error) {
	return s.batches.List(ctx, lobbyName, limit)
}

func (s *MySQLStore) EnsureLobbies(ctx context.Context, names []string) error {
	return s.lobbies.EnsureNames(ctx, names)
}

func (s *MySQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// InTx runs fn in a READ COMMITTED transaction and retries the whole
// transaction on deadlocks, lock wait timeouts and version conflicts.
func (s *MySQLStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !IsRetryable(err) || attempt >= s.maxRetries {
			return err
		}
		wait := time.Duration(attempt+1) * s.backoff
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (s *MySQLStore) runTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&mysqlTx{tx: tx, s: s}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// IsRetryable reports whether err means the transaction lost a race and
// can be run again unchanged.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrVersionConflict) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlErrDeadlock || myErr.Number == mysqlErrLockWaitTimeout
	}
	return false
}

// mysqlTx adapts a *sql.Tx to the Tx interface using the store's repos.
type mysqlTx struct {
	tx *sql.Tx
	s  *MySQLStore
}

func (t *mysqlTx) LockLobby(ctx context.Context, name string) (model.Lobby, error) {
	return t.s.lobbies.GetForUpdateTx(ctx, t.tx, name)
}

func (t *mysqlTx) SaveLobbyCount(ctx context.Context, l model.Lobby, count int, at time.Time) (model.Lobby, error) {
	return t.s.lobbies.UpdateCountTx(ctx, t.tx, l, count, at)
}

func (t *mysqlTx) InsertBatchExit(ctx context.Context, b *model.BatchExit) error {
	return t.s.batches.CreateTx(ctx, t.tx, b)
}

func (t *mysqlTx) InsertLobbyEvent(ctx context.Context, e *model.LobbyEvent) error {
	return t.s.events.CreateTx(ctx, t.tx, e)
}
