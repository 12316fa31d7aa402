// Package service implements the lobby occupancy ledger: the only code
// path that changes lobby counts.  Every mutation validates its input
// first, then runs as a single store transaction that locks the lobby,
// writes the new count and appends the audit rows.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/iliyamo/campus-gate/internal/model"
	"github.com/iliyamo/campus-gate/internal/queue"
	"github.com/iliyamo/campus-gate/internal/repository"
)

// HistoryAll selects batch exits of every lobby.
const HistoryAll = "all"

// MaxHistoryLimit caps the number of batch exits returned by one call.
const MaxHistoryLimit = 1000

// Logger is the subset of echo.Logger / gommon log.Logger the ledger uses.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Options configures a Ledger.  Zero values select sensible defaults.
type Options struct {
	Timeout   time.Duration // per-operation store deadline; 0 disables it
	Publisher EventPublisher
	Logger    Logger
	Now       func() time.Time
	NewID     func() string
}

// Ledger is the authoritative lobby occupancy service.
type Ledger struct {
	store     repository.Store
	validator *Validator
	timeout   time.Duration
	publisher EventPublisher
	log       Logger
	now       func() time.Time
	newID     func() string
}

// NewLedger constructs a Ledger over store.  store must be non-nil.
func NewLedger(store repository.Store, opts Options) *Ledger {
	if store == nil {
		panic("nil store passed to NewLedger")
	}
	l := &Ledger{
		store:     store,
		validator: defaultValidator,
		timeout:   opts.Timeout,
		publisher: opts.Publisher,
		log:       opts.Logger,
		now:       opts.Now,
		newID:     opts.NewID,
	}
	if l.publisher == nil {
		l.publisher = NopPublisher{}
	}
	if l.log == nil {
		l.log = nopLogger{}
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.newID == nil {
		l.newID = uuid.NewString
	}
	return l
}

// BatchExitInput is the request to record a group leaving a lobby.
// Upper bounds follow the columns: counts are INT UNSIGNED, lobby names
// VARCHAR(64) and user ids VARCHAR(128).
type BatchExitInput struct {
	LobbyName   string            `json:"lobby_name" validate:"required,max=64"`
	PeopleCount int               `json:"people_count" validate:"gt=0,lte=4294967295"`
	Volunteers  []model.Volunteer `json:"volunteers" validate:"required,min=1,dive"`
	UserID      string            `json:"user_id" validate:"required,max=128"`
	Notes       *string           `json:"notes"`
}

func (in *BatchExitInput) normalize() {
	in.LobbyName = strings.TrimSpace(in.LobbyName)
	in.UserID = strings.TrimSpace(in.UserID)
	for i := range in.Volunteers {
		in.Volunteers[i].Name = strings.TrimSpace(in.Volunteers[i].Name)
		in.Volunteers[i].RegisterNumber = strings.TrimSpace(in.Volunteers[i].RegisterNumber)
	}
	if in.Notes != nil {
		n := strings.TrimSpace(*in.Notes)
		if n == "" {
			in.Notes = nil
		} else {
			in.Notes = &n
		}
	}
}

// ResetInput is the request to zero a lobby.
type ResetInput struct {
	LobbyName string `json:"lobby_name" validate:"required,max=64"`
	UserID    string `json:"user_id" validate:"required,max=128"`
}

// UpdateCountInput is the request to overwrite a lobby's count.
// NewCount is a pointer so that a missing field is distinguishable from 0.
type UpdateCountInput struct {
	LobbyName string `json:"lobby_name" validate:"required,max=64"`
	NewCount  *int   `json:"new_count" validate:"required,gte=0,lte=4294967295"`
	UserID    string `json:"user_id" validate:"required,max=128"`
}

// HistoryQuery selects batch exits.  LobbyName "" or "all" means every
// lobby; Limit 0 means no limit.
type HistoryQuery struct {
	LobbyName string `json:"lobby_name"`
	Limit     int    `json:"limit" validate:"gte=0"`
}

// GetStatus returns a snapshot of every lobby.
func (l *Ledger) GetStatus(ctx context.Context) ([]model.Lobby, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()
	lobbies, err := l.store.ListLobbies(ctx)
	if err != nil {
		return nil, l.storeError("get status", err)
	}
	return lobbies, nil
}

// CreateBatchExit decrements the lobby by in.PeopleCount and records the
// batch, atomically.  The count is clamped at zero; any excess is kept
// on the batch as Shortfall.
func (l *Ledger) CreateBatchExit(ctx context.Context, in BatchExitInput) (model.BatchExit, error) {
	in.normalize()
	if err := l.validator.Struct(in); err != nil {
		return model.BatchExit{}, err
	}
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	var (
		batch    model.BatchExit
		previous int
		current  int
	)
	err := l.store.InTx(ctx, func(tx repository.Tx) error {
		lobby, err := tx.LockLobby(ctx, in.LobbyName)
		if err != nil {
			return err
		}
		remaining, shortfall := clampedDecrement(lobby.CurrentCount, in.PeopleCount)
		now := l.now().UTC()
		updated, err := tx.SaveLobbyCount(ctx, lobby, remaining, now)
		if err != nil {
			return err
		}
		batch = model.BatchExit{
			ID:          l.newID(),
			LobbyName:   lobby.Name,
			PeopleCount: in.PeopleCount,
			Volunteers:  append([]model.Volunteer(nil), in.Volunteers...),
			UserID:      in.UserID,
			Notes:       in.Notes,
			Shortfall:   shortfall,
			CreatedAt:   now,
		}
		if err := tx.InsertBatchExit(ctx, &batch); err != nil {
			return errors.Wrap(err, "insert batch exit")
		}
		batchID := batch.ID
		previous, current = lobby.CurrentCount, updated.CurrentCount
		return tx.InsertLobbyEvent(ctx, &model.LobbyEvent{
			LobbyName:     lobby.Name,
			Kind:          model.LobbyEventBatchExit,
			PreviousCount: previous,
			NewCount:      current,
			UserID:        in.UserID,
			BatchID:       &batchID,
			CreatedAt:     now,
		})
	})
	if err != nil {
		return model.BatchExit{}, l.storeError("create batch exit", err)
	}
	if batch.Shortfall > 0 {
		l.log.Warnf("ledger: batch %s on %s exceeded occupancy by %d (count %d, batch %d); clamped to 0",
			batch.ID, batch.LobbyName, batch.Shortfall, previous, batch.PeopleCount)
	}
	l.publish(ctx, queue.LedgerEvent{
		Type:           queue.EventBatchExitCreated,
		LobbyName:      batch.LobbyName,
		UserID:         batch.UserID,
		PreviousCount:  previous,
		CurrentCount:   current,
		BatchID:        batch.ID,
		PeopleCount:    batch.PeopleCount,
		Shortfall:      batch.Shortfall,
		VolunteerCount: len(batch.Volunteers),
		OccurredAt:     batch.CreatedAt.Format(time.RFC3339Nano),
	})
	return batch, nil
}

// ResetLobby sets the lobby's count to zero.  Batch history is kept.
func (l *Ledger) ResetLobby(ctx context.Context, in ResetInput) (model.Lobby, error) {
	in.LobbyName = strings.TrimSpace(in.LobbyName)
	in.UserID = strings.TrimSpace(in.UserID)
	if err := l.validator.Struct(in); err != nil {
		return model.Lobby{}, err
	}
	lobby, previous, err := l.setCount(ctx, in.LobbyName, 0, in.UserID, model.LobbyEventReset)
	if err != nil {
		return model.Lobby{}, l.storeError("reset lobby", err)
	}
	l.publish(ctx, queue.LedgerEvent{
		Type:          queue.EventLobbyReset,
		LobbyName:     lobby.Name,
		UserID:        in.UserID,
		PreviousCount: previous,
		CurrentCount:  lobby.CurrentCount,
		OccurredAt:    lobby.LastUpdated.Format(time.RFC3339Nano),
	})
	return lobby, nil
}

// UpdateCount overwrites the lobby's count with a non-negative value.
func (l *Ledger) UpdateCount(ctx context.Context, in UpdateCountInput) (model.Lobby, error) {
	in.LobbyName = strings.TrimSpace(in.LobbyName)
	in.UserID = strings.TrimSpace(in.UserID)
	if err := l.validator.Struct(in); err != nil {
		return model.Lobby{}, err
	}
	lobby, previous, err := l.setCount(ctx, in.LobbyName, *in.NewCount, in.UserID, model.LobbyEventCountSet)
	if err != nil {
		return model.Lobby{}, l.storeError("update count", err)
	}
	l.publish(ctx, queue.LedgerEvent{
		Type:          queue.EventCountUpdated,
		LobbyName:     lobby.Name,
		UserID:        in.UserID,
		PreviousCount: previous,
		CurrentCount:  lobby.CurrentCount,
		OccurredAt:    lobby.LastUpdated.Format(time.RFC3339Nano),
	})
	return lobby, nil
}

// GetBatchHistory returns batch exits newest first.
func (l *Ledger) GetBatchHistory(ctx context.Context, q HistoryQuery) ([]model.BatchExit, error) {
	q.LobbyName = strings.TrimSpace(q.LobbyName)
	if err := l.validator.Struct(q); err != nil {
		return nil, err
	}
	if strings.EqualFold(q.LobbyName, HistoryAll) {
		q.LobbyName = ""
	}
	if q.Limit > MaxHistoryLimit {
		q.Limit = MaxHistoryLimit
	}
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()
	batches, err := l.store.ListBatchExits(ctx, q.LobbyName, q.Limit)
	if err != nil {
		return nil, l.storeError("get batch history", err)
	}
	return batches, nil
}

// Ping reports whether the backing store is reachable.
func (l *Ledger) Ping(ctx context.Context) error {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()
	return l.store.Ping(ctx)
}

// setCount is the shared transaction of ResetLobby and UpdateCount.  It
// returns the updated lobby and the count it replaced.
func (l *Ledger) setCount(ctx context.Context, name string, count int, userID string, kind model.LobbyEventKind) (model.Lobby, int, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()
	var (
		updated  model.Lobby
		previous int
	)
	err := l.store.InTx(ctx, func(tx repository.Tx) error {
		lobby, err := tx.LockLobby(ctx, name)
		if err != nil {
			return err
		}
		now := l.now().UTC()
		updated, err = tx.SaveLobbyCount(ctx, lobby, count, now)
		if err != nil {
			return err
		}
		previous = lobby.CurrentCount
		return tx.InsertLobbyEvent(ctx, &model.LobbyEvent{
			LobbyName:     lobby.Name,
			Kind:          kind,
			PreviousCount: previous,
			NewCount:      count,
			UserID:        userID,
			CreatedAt:     now,
		})
	})
	return updated, previous, err
}

// clampedDecrement subtracts n from count without going below zero and
// returns the remaining count and how much of n could not be subtracted.
func clampedDecrement(count, n int) (remaining, shortfall int) {
	if n <= count {
		return count - n, 0
	}
	return 0, n - count
}

func (l *Ledger) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.timeout)
}

// storeError keeps not-found errors recognisable and turns everything
// else into an InfrastructureError, logging the detail.
func (l *Ledger) storeError(op string, err error) error {
	if errors.Is(err, repository.ErrLobbyNotFound) {
		return ErrLobbyNotFound
	}
	l.log.Errorf("ledger: %s: %v", op, err)
	return &InfrastructureError{Op: op, Err: err}
}

func (l *Ledger) publish(ctx context.Context, ev queue.LedgerEvent) {
	if err := l.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		l.log.Warnf("ledger: publish %s for %s: %v", ev.Type, ev.LobbyName, err)
	}
}

// ResetMessage is the confirmation text returned after a reset.
func ResetMessage(lobby string) string {
	return fmt.Sprintf("Lobby %s has been reset", lobby)
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
