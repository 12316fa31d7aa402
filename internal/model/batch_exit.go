package model

import "time"

// Volunteer is one named volunteer escorting a departing group.
type Volunteer struct {
	Name           string `json:"name" validate:"required"`
	RegisterNumber string `json:"register_number" validate:"required"`
}

// BatchExit is the permanent audit record of one group leaving a lobby.
// It is written exactly once, in the same transaction that decrements
// the lobby, and is never updated or deleted.
//
// Fields:
//
//	ID          – UUID assigned at creation.
//	LobbyName   – lobby the group left from.
//	PeopleCount – number of people in the group (> 0).
//	Volunteers  – ordered roster of escorting volunteers (non-empty).
//	UserID      – guard who recorded the batch.
//	Notes       – optional free text (nil when absent).
//	Shortfall   – part of PeopleCount that exceeded the lobby count at
//	              the time of the batch; the count itself is clamped at 0.
//	CreatedAt   – creation timestamp (UTC).
type BatchExit struct {
	ID          string      `json:"id"`           // batch_exits.id
	LobbyName   string      `json:"lobby_name"`   // batch_exits.lobby_name
	PeopleCount int         `json:"people_count"` // batch_exits.people_count
	Volunteers  []Volunteer `json:"volunteers"`   // batch_exits.volunteers (JSON)
	UserID      string      `json:"user_id"`      // batch_exits.user_id
	Notes       *string     `json:"notes"`        // batch_exits.notes (nullable)
	Shortfall   int         `json:"shortfall"`    // batch_exits.shortfall
	CreatedAt   time.Time   `json:"created_at"`   // batch_exits.created_at
}
