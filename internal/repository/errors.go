// Package repository defines the storage contract of the lobby ledger
// and its MySQL implementation.  The sentinel values below allow higher
// layers such as the ledger service and handlers to distinguish between
// different failure scenarios.  ErrLobbyNotFound means the referenced
// lobby was never seeded, while ErrVersionConflict signals that a
// lobby row changed between being read and being written and the
// transaction should be retried.
package repository

import "errors"

// ErrLobbyNotFound is returned when no lobby with the requested name
// exists.  Handlers should translate this into an HTTP 404 response.
var ErrLobbyNotFound = errors.New("lobby not found")

// ErrVersionConflict is returned by SaveLobbyCount when the row's
// version no longer matches the version that was read.  Store
// implementations retry the whole transaction when they see it.
var ErrVersionConflict = errors.New("lobby version conflict")
