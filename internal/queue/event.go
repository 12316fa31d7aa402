// Package queue defines message payloads exchanged over the message broker
// and the consumer that writes them to the lobby audit log.
package queue

// LobbyEventsQueue is the durable queue every ledger mutation is
// published to.
const LobbyEventsQueue = "lobby.events"

const (
	EventBatchExitCreated = "batch_exit.created"
	EventLobbyReset       = "lobby.reset"
	EventCountUpdated     = "lobby.count_updated"
)

// LedgerEvent is published after a lobby mutation commits.  It carries
// enough information for downstream consumers (audit log, dashboards,
// notifications) to react without querying the ledger.
type LedgerEvent struct {
	Type           string `json:"type"`
	LobbyName      string `json:"lobby_name"`
	UserID         string `json:"user_id"`
	PreviousCount  int    `json:"previous_count"`
	CurrentCount   int    `json:"current_count"`
	BatchID        string `json:"batch_id,omitempty"`
	PeopleCount    int    `json:"people_count,omitempty"`
	Shortfall      int    `json:"shortfall,omitempty"`
	VolunteerCount int    `json:"volunteer_count,omitempty"`
	OccurredAt     string `json:"occurred_at"`
}
