// Package nib implements the Network Information Base: the transactional,
// versioned, append-only-audited store of record for controllers, devices,
// config requests, execution tokens, and coordination locks.
//
// Mutable records go through optimistic concurrency (a Version field
// compared and incremented atomically). Store methods do not append events
// themselves: callers that make a security- or state-machine relevant
// change append one, typically in the same Transact call.
package nib

import (
	"context"
	"time"

	"pdsno.io/controller/internal/domain"
)

// Store is the NIB's storage contract. Postgres (postgres.go) is the
// production implementation; Badger (badger.go) is an embedded fallback
// for a local controller running disconnected from its regional parent.
type Store interface {
	DeviceStore
	ControllerStore
	ConfigRequestStore
	TokenStore
	EventStore
	LockStore
	Transactor

	Close() error
}

// Transactor groups a set of Store operations into one atomic unit. fn
// receives a context carrying the active transaction; any Store method
// called with it participates in the same commit/rollback as every other
// call fn makes, instead of each committing independently. Implementations
// must tolerate fn calling Transact again with the already-tx-bound
// context (nested calls just run fn inline).
type Transactor interface {
	Transact(ctx context.Context, fn func(ctx context.Context) error) error
}

// DeviceStore manages the device inventory.
type DeviceStore interface {
	GetDevice(ctx context.Context, deviceID string) (*domain.Device, error)
	GetDeviceByMAC(ctx context.Context, mac string) (*domain.Device, error)
	ListDevices(ctx context.Context, region string) ([]*domain.Device, error)
	// PutDevice inserts a new device or updates an existing one with
	// optimistic concurrency: expectedVersion must match the stored
	// version, or the update fails with errors.ErrVersionConflictf.
	// expectedVersion == 0 means "insert new".
	PutDevice(ctx context.Context, d *domain.Device, expectedVersion int64) error
}

// ControllerStore manages admitted controller identities.
type ControllerStore interface {
	GetController(ctx context.Context, controllerID string) (*domain.Controller, error)
	ListControllers(ctx context.Context, region string) ([]*domain.Controller, error)
	PutController(ctx context.Context, c *domain.Controller, expectedVersion int64) error
}

// ConfigRequestStore manages the approval state machine rows.
type ConfigRequestStore interface {
	GetConfigRequest(ctx context.Context, requestID string) (*domain.ConfigRequest, error)
	ListConfigRequestsByState(ctx context.Context, state domain.ConfigRequestState) ([]*domain.ConfigRequest, error)
	PutConfigRequest(ctx context.Context, r *domain.ConfigRequest, expectedVersion int64) error
	// ListOverlapping returns in-flight requests (not in a terminal state)
	// whose TargetDevices intersects with deviceIDs, used to detect the
	// pending_conflict state.
	ListOverlapping(ctx context.Context, deviceIDs []string, excludeRequestID string) ([]*domain.ConfigRequest, error)
}

// TokenStore manages single-use execution tokens.
type TokenStore interface {
	PutExecutionToken(ctx context.Context, t *domain.ExecutionToken) error
	GetExecutionToken(ctx context.Context, tokenID string) (*domain.ExecutionToken, error)
	// ConsumeExecutionToken atomically marks the token consumed, returning
	// false (no error) if it was already consumed or does not exist.
	ConsumeExecutionToken(ctx context.Context, tokenID string, at time.Time) (bool, error)
}

// EventStore appends immutable audit rows.
type EventStore interface {
	AppendEvent(ctx context.Context, e *domain.Event) error
	ListEvents(ctx context.Context, eventType domain.EventType, limit int) ([]*domain.Event, error)
}

// LockStore manages fencing-token coordination locks.
type LockStore interface {
	// AcquireLock grants resourceKey to holderID if unheld or expired,
	// returning a strictly-increasing FencingToken. Returns
	// errors.CodeLockHeld if another holder's lock has not expired.
	AcquireLock(ctx context.Context, resourceKey, holderID string, ttl time.Duration) (*domain.Lock, error)
	// ReleaseLock releases the lock if held by holderID with the given
	// fencing token; a stale token is rejected with CodeFencingTokenStale.
	ReleaseLock(ctx context.Context, resourceKey, holderID string, fencingToken int64) error
	GetLock(ctx context.Context, resourceKey string) (*domain.Lock, error)
}
