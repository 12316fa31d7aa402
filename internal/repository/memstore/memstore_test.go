package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/campus-gate/internal/model"
	"github.com/iliyamo/campus-gate/internal/repository"
)

func lobbyCount(t *testing.T, s *Store, name string) int {
	t.Helper()
	lobbies, err := s.ListLobbies(context.Background())
	require.NoError(t, err)
	for _, l := range lobbies {
		if l.Name == name {
			return l.CurrentCount
		}
	}
	t.Fatalf("lobby %s not found", name)
	return 0
}

func TestCommitAppliesStagedWrites(t *testing.T) {
	s := New()
	s.Seed("Gate-A", 10)
	ctx := context.Background()

	err := s.InTx(ctx, func(tx repository.Tx) error {
		l, err := tx.LockLobby(ctx, "Gate-A")
		require.NoError(t, err)
		_, err = tx.SaveLobbyCount(ctx, l, 7, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 10, lobbyCount(t, s, "Gate-A"), "staged write visible before commit")
		return tx.InsertLobbyEvent(ctx, &model.LobbyEvent{LobbyName: "Gate-A", Kind: model.LobbyEventCountSet, NewCount: 7})
	})
	require.NoError(t, err)
	assert.Equal(t, 7, lobbyCount(t, s, "Gate-A"))
	events := s.Events()
	require.Len(t, events, 1)
	assert.Equal(t, uint64(1), events[0].ID)
}

func TestErrorDiscardsStagedWrites(t *testing.T) {
	s := New()
	s.Seed("Gate-A", 10)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx repository.Tx) error {
		l, _ := tx.LockLobby(ctx, "Gate-A")
		_, _ = tx.SaveLobbyCount(ctx, l, 0, time.Now())
		_ = tx.InsertBatchExit(ctx, &model.BatchExit{ID: "b-1", LobbyName: "Gate-A", PeopleCount: 10})
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 10, lobbyCount(t, s, "Gate-A"))
	batches, err := s.ListBatchExits(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestLockUnknownLobby(t *testing.T) {
	s := New()
	err := s.InTx(context.Background(), func(tx repository.Tx) error {
		_, err := tx.LockLobby(context.Background(), "Nowhere")
		return err
	})
	assert.ErrorIs(t, err, repository.ErrLobbyNotFound)
}

func TestStaleVersionConflicts(t *testing.T) {
	s := New()
	s.Seed("Gate-A", 10)
	ctx := context.Background()

	err := s.InTx(ctx, func(tx repository.Tx) error {
		l, err := tx.LockLobby(ctx, "Gate-A")
		require.NoError(t, err)
		stale := l
		stale.Version--
		_, err = tx.SaveLobbyCount(ctx, stale, 3, time.Now())
		return err
	})
	assert.ErrorIs(t, err, repository.ErrVersionConflict)
}

func TestLockSerialisesTransactions(t *testing.T) {
	s := New()
	s.Seed("Gate-A", 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InTx(ctx, func(tx repository.Tx) error {
				l, err := tx.LockLobby(ctx, "Gate-A")
				if err != nil {
					return err
				}
				_, err = tx.SaveLobbyCount(ctx, l, l.CurrentCount-1, time.Now())
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, lobbyCount(t, s, "Gate-A"))
}

func TestLockWaitHonoursContext(t *testing.T) {
	s := New()
	s.Seed("Gate-A", 10)

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.InTx(context.Background(), func(tx repository.Tx) error {
			_, err := tx.LockLobby(context.Background(), "Gate-A")
			require.NoError(t, err)
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := s.InTx(ctx, func(tx repository.Tx) error {
		_, err := tx.LockLobby(ctx, "Gate-A")
		return err
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	close(done)
	err = s.InTx(context.Background(), func(tx repository.Tx) error {
		_, err := tx.LockLobby(context.Background(), "Gate-A")
		return err
	})
	assert.NoError(t, err, "lobby is free once the holder finishes")
}

func TestFaultHook(t *testing.T) {
	s := New()
	s.Seed("Gate-A", 5)
	fail := errors.New("disk full")
	s.Fault = func(op string) error {
		if op == "batch" {
			return fail
		}
		return nil
	}
	err := s.InTx(context.Background(), func(tx repository.Tx) error {
		return tx.InsertBatchExit(context.Background(), &model.BatchExit{ID: "b-1"})
	})
	assert.ErrorIs(t, err, fail)
}

func TestListBatchExitsOrderAndLimit(t *testing.T) {
	s := New()
	s.Seed("Gate-A", 0)
	s.Seed("Gate-B", 0)
	ctx := context.Background()
	base := time.Date(2025, 11, 30, 9, 0, 0, 0, time.UTC)

	add := func(id, lobby string, at time.Time) {
		require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
			return tx.InsertBatchExit(ctx, &model.BatchExit{ID: id, LobbyName: lobby, PeopleCount: 1, CreatedAt: at})
		}))
	}
	add("a", "Gate-A", base)
	add("b", "Gate-B", base.Add(time.Minute))
	add("c", "Gate-A", base.Add(time.Minute))

	all, err := s.ListBatchExits(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

	onlyA, err := s.ListBatchExits(ctx, "Gate-A", 1)
	require.NoError(t, err)
	require.Len(t, onlyA, 1)
	assert.Equal(t, "c", onlyA[0].ID)
}

func TestEnsureLobbiesKeepsCounts(t *testing.T) {
	s := New()
	s.Seed("Gate-A", 12)
	require.NoError(t, s.EnsureLobbies(context.Background(), []string{"Gate-A", "Gate-B"}))
	assert.Equal(t, 12, lobbyCount(t, s, "Gate-A"))
	assert.Equal(t, 0, lobbyCount(t, s, "Gate-B"))
}
