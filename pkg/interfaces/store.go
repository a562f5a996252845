package interfaces

import (
	"context"
	"errors"

	"crawlfleet/internal/model"
)

// FleetStore durable storage for the fleet aggregate.
// The fleet is always written wholesale, never patched.
type FleetStore interface {
	// Load reads the persisted fleet; a missing state yields an empty fleet.
	// Malformed state is returned as an error and must not be recovered silently.
	Load(ctx context.Context) (*model.Fleet, error)

	// Save replaces the persisted fleet
	Save(ctx context.Context, fleet *model.Fleet) error

	// Backup writes a copy of the fleet next to the primary state
	Backup(ctx context.Context, fleet *model.Fleet) error

	// Clear removes the persisted fleet
	Clear(ctx context.Context) error

	// Location describes where the state lives, for logs and error messages
	Location() string

	Close() error
}

// ErrFleetLocked is returned when another watchdog already supervises the fleet
var ErrFleetLocked = errors.New("fleet is supervised by another watchdog")

// FleetLease is a held fleet lock. Held turns false if the lock is lost.
type FleetLease interface {
	Held() bool
	Release(ctx context.Context) error
}

// FleetLocker is implemented by shared stores that can keep two watchdogs
// from supervising the same fleet.
type FleetLocker interface {
	LockFleet(ctx context.Context) (FleetLease, error)
}
