package domain

import "time"

// ControllerRole is the tier a controller operates at.
type ControllerRole string

const (
	RoleGlobal   ControllerRole = "global"
	RoleRegional ControllerRole = "regional"
	RoleLocal    ControllerRole = "local"
)

// ControllerStatus is the admission lifecycle status of a controller identity.
type ControllerStatus string

const (
	ControllerStatusPending ControllerStatus = "pending"
	ControllerStatusActive  ControllerStatus = "active"
	ControllerStatusRevoked ControllerStatus = "revoked"
)

// Controller is an admitted (or pending) controller identity in the NIB.
//
// Invariant: exactly one global controller is active at any time; each
// regional controller's ValidatedBy is the active global; each local
// controller's ValidatedBy is an active regional.
type Controller struct {
	ControllerID string           `json:"controller_id"`
	Role         ControllerRole   `json:"role"`
	Region       string           `json:"region,omitempty"`
	Status       ControllerStatus `json:"status"`
	ValidatedBy  string           `json:"validated_by"`
	ValidatedAt  time.Time        `json:"validated_at"`
	PublicKey    []byte           `json:"public_key"`
	Certificate  string           `json:"certificate"`
	Capabilities []string         `json:"capabilities,omitempty"`
	Version      int64            `json:"version"`
}
