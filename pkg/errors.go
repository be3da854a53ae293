package pkg

import "errors"

var (
	// ErrKeyNotFound is returned when a key doesn't exist on its owning server.
	// Lookups that resolve to no owner, or to an inactive owner, report this
	// too; from the read side unavailability looks identical to absence.
	ErrKeyNotFound = errors.New("key not found")

	// ErrEmptyKey is returned when an operation is given an empty key
	ErrEmptyKey = errors.New("key cannot be empty")

	// ErrEmptyServerID is returned when a server id is empty or blank
	ErrEmptyServerID = errors.New("server id cannot be empty")

	// ErrServerExists is returned when adding a server id that is already registered
	ErrServerExists = errors.New("server already exists")

	// ErrNoActiveServer is returned when a write is attempted with no servers on the ring
	ErrNoActiveServer = errors.New("no active servers available")

	// ErrServerUnavailable is returned when an operation targets an inactive server
	ErrServerUnavailable = errors.New("server is not active")
)
