package model

import "time"

// Lobby represents one physical access point on campus and the number
// of people currently inside it.  Rows are seeded once and live for
// the lifetime of the deployment; only the count, version and
// timestamp ever change.
//
// Fields:
//
//	Name         – unique lobby name (e.g. Gate-A); immutable.
//	CurrentCount – people currently present; never negative.
//	Version      – bumped on every mutation, used for compare-and-swap.
//	LastUpdated  – time of the last mutation (UTC).
type Lobby struct {
	Name         string    `json:"name"`          // lobbies.name
	CurrentCount int       `json:"current_count"` // lobbies.current_count
	Version      uint64    `json:"-"`             // lobbies.version
	LastUpdated  time.Time `json:"last_updated"`  // lobbies.last_updated
}
