package domain

import "time"

// Lock is an advisory, TTL-bounded coordination row.
//
// Invariant: at most one unexpired row per ResourceKey; acquisition returns
// a FencingToken that strictly increases across successive acquisitions of
// the same key.
type Lock struct {
	ResourceKey   string    `json:"resource_key"`
	HolderID      string    `json:"holder_id"`
	AcquiredAt    time.Time `json:"acquired_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	FencingToken  int64     `json:"fencing_token"`
}
