// Package memstore is an in-process implementation of repository.Store.
// It backs STORE_DRIVER=memory for local runs and the ledger tests.
// Each lobby has a one-slot semaphore, held from LockLobby until the end
// of the transaction, which mirrors the row locks of the MySQL store.
// Waiting for a held lobby gives up when the context is done.  Writes
// are staged on the transaction and only become visible on commit.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/campus-gate/internal/model"
	"github.com/iliyamo/campus-gate/internal/repository"
)

type lobbyRow struct {
	sem   chan struct{} // full while a transaction holds the lobby
	lobby model.Lobby
}

func newRow() *lobbyRow {
	return &lobbyRow{sem: make(chan struct{}, 1)}
}

// Store keeps lobbies, batch exits and lobby events in memory.
type Store struct {
	mu          sync.RWMutex // guards the maps, slices and row contents
	lobbies     map[string]*lobbyRow
	batches     []model.BatchExit
	events      []model.LobbyEvent
	nextEventID uint64

	// Fault, when set, is consulted before every Tx operation with the
	// operation name ("lock", "save", "batch", "event").  A non-nil
	// return fails that operation.  Used to exercise rollback paths.
	Fault func(op string) error
}

var _ repository.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{lobbies: make(map[string]*lobbyRow)}
}

// Seed creates or overwrites a lobby with the given count.
func (s *Store) Seed(name string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.lobbies[name]
	if !ok {
		row = newRow()
		s.lobbies[name] = row
	}
	row.lobby = model.Lobby{Name: name, CurrentCount: count, Version: row.lobby.Version + 1, LastUpdated: time.Now().UTC()}
}

func (s *Store) ListLobbies(ctx context.Context) ([]model.Lobby, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Lobby, 0, len(s.lobbies))
	for _, row := range s.lobbies {
		out = append(out, row.lobby)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListBatchExits(ctx context.Context, lobbyName string, limit int) ([]model.BatchExit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.BatchExit{}
	for _, b := range s.batches {
		if lobbyName == "" || b.LobbyName == lobbyName {
			out = append(out, copyBatch(b))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Events returns a copy of every recorded lobby event in insertion order.
func (s *Store) Events() []model.LobbyEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.LobbyEvent(nil), s.events...)
}

func (s *Store) EnsureLobbies(ctx context.Context, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		if _, ok := s.lobbies[n]; !ok {
			row := newRow()
			row.lobby = model.Lobby{Name: n, LastUpdated: time.Now().UTC()}
			s.lobbies[n] = row
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }

// InTx runs fn against a staging transaction.  Locks taken by fn are
// released when InTx returns, after staged writes have been applied
// (on success) or discarded (on error).
func (s *Store) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	t := &tx{s: s, locked: map[string]*lobbyRow{}, staged: map[string]model.Lobby{}}
	defer t.release()
	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	for name, l := range t.staged {
		t.locked[name].lobby = l
	}
	s.batches = append(s.batches, t.batches...)
	for _, e := range t.events {
		s.nextEventID++
		e.ID = s.nextEventID
		s.events = append(s.events, e)
	}
	s.mu.Unlock()
	return nil
}

type tx struct {
	s       *Store
	locked  map[string]*lobbyRow
	staged  map[string]model.Lobby
	batches []model.BatchExit
	events  []model.LobbyEvent
}

func (t *tx) fault(op string) error {
	if t.s.Fault == nil {
		return nil
	}
	return t.s.Fault(op)
}

func (t *tx) release() {
	for _, row := range t.locked {
		<-row.sem
	}
}

func (t *tx) LockLobby(ctx context.Context, name string) (model.Lobby, error) {
	if err := t.fault("lock"); err != nil {
		return model.Lobby{}, err
	}
	if l, ok := t.staged[name]; ok {
		return l, nil
	}
	if row, ok := t.locked[name]; ok {
		t.s.mu.RLock()
		defer t.s.mu.RUnlock()
		return row.lobby, nil
	}
	t.s.mu.RLock()
	row, ok := t.s.lobbies[name]
	t.s.mu.RUnlock()
	if !ok {
		return model.Lobby{}, repository.ErrLobbyNotFound
	}
	select {
	case row.sem <- struct{}{}:
	case <-ctx.Done():
		return model.Lobby{}, ctx.Err()
	}
	t.locked[name] = row
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return row.lobby, nil
}

func (t *tx) SaveLobbyCount(ctx context.Context, l model.Lobby, count int, at time.Time) (model.Lobby, error) {
	if err := t.fault("save"); err != nil {
		return model.Lobby{}, err
	}
	row, ok := t.locked[l.Name]
	if !ok {
		return model.Lobby{}, repository.ErrLobbyNotFound
	}
	current, ok := t.staged[l.Name]
	if !ok {
		t.s.mu.RLock()
		current = row.lobby
		t.s.mu.RUnlock()
	}
	if current.Version != l.Version {
		return model.Lobby{}, repository.ErrVersionConflict
	}
	next := model.Lobby{Name: l.Name, CurrentCount: count, Version: l.Version + 1, LastUpdated: at.UTC()}
	t.staged[l.Name] = next
	return next, nil
}

func (t *tx) InsertBatchExit(ctx context.Context, b *model.BatchExit) error {
	if err := t.fault("batch"); err != nil {
		return err
	}
	t.batches = append(t.batches, copyBatch(*b))
	return nil
}

func (t *tx) InsertLobbyEvent(ctx context.Context, e *model.LobbyEvent) error {
	if err := t.fault("event"); err != nil {
		return err
	}
	t.events = append(t.events, *e)
	return nil
}

func copyBatch(b model.BatchExit) model.BatchExit {
	b.Volunteers = append([]model.Volunteer(nil), b.Volunteers...)
	if b.Notes != nil {
		n := *b.Notes
		b.Notes = &n
	}
	return b
}
