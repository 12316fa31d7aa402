package model

import "time"

// LobbyEventKind enumerates the mutations recorded in lobby_events.
type LobbyEventKind string

const (
	LobbyEventBatchExit LobbyEventKind = "BATCH_EXIT"
	LobbyEventReset     LobbyEventKind = "RESET"
	LobbyEventCountSet  LobbyEventKind = "COUNT_SET"
)

// LobbyEvent is an append-only audit row written alongside every
// mutation of a lobby.  It records who changed the count and from what
// to what, so manual resets and overrides stay traceable even though
// they bypass the batch-exit flow.
type LobbyEvent struct {
	ID            uint64         // lobby_events.id
	LobbyName     string         // lobby_events.lobby_name
	Kind          LobbyEventKind // lobby_events.kind
	PreviousCount int            // lobby_events.previous_count
	NewCount      int            // lobby_events.new_count
	UserID        string         // lobby_events.user_id
	BatchID       *string        // lobby_events.batch_id (BATCH_EXIT only)
	CreatedAt     time.Time      // lobby_events.created_at
}
