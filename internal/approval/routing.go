package approval

import (
	"pdsno.io/controller/internal/domain"
)

// Router decides which tier must approve a classified request, and
// whether the local proposer may self-approve it.
type Router struct {
	// HighForwardsToGlobal routes HIGH-sensitivity requests from
	// pending_regional to pending_global instead of letting the regional
	// controller approve them directly.
	HighForwardsToGlobal bool
}

// NewRouter creates a router using cfg's forwarding policy.
func NewRouter(highForwardsToGlobal bool) *Router {
	return &Router{HighForwardsToGlobal: highForwardsToGlobal}
}

// InitialState returns the state a freshly proposed request enters,
// based on its classified sensitivity:
//   - LOW, MEDIUM: pending_regional (the regional controller over the
//     proposing local decides)
//   - HIGH: pending_regional, later forwarded to pending_global per
//     HighForwardsToGlobal
//   - EMERGENCY: approved immediately — a local controller may act alone
//     under emergency sensitivity, with mandatory post-hoc regional
//     review recorded in the audit trail: emergency changes trade
//     pre-approval for an auditable, reviewable trail.
func (r *Router) InitialState(sensitivity domain.Sensitivity) domain.ConfigRequestState {
	if sensitivity == domain.SensitivityEmergency {
		return domain.StateApproved
	}
	return domain.StatePendingRegional
}

// NextOnApprove returns the state a pending_regional request moves to
// when the regional controller approves it: straight to approved unless
// the sensitivity is HIGH and forwarding is enabled, in which case it
// advances to pending_global instead.
func (r *Router) NextOnApprove(current domain.ConfigRequestState, sensitivity domain.Sensitivity) domain.ConfigRequestState {
	if current == domain.StatePendingRegional && sensitivity == domain.SensitivityHigh && r.HighForwardsToGlobal {
		return domain.StatePendingGlobal
	}
	return domain.StateApproved
}

// CanApprove reports whether a controller in role may approve a request
// currently in state, independent of sensitivity forwarding (that is
// handled by NextOnApprove/InitialState).
func CanApprove(role domain.ControllerRole, state domain.ConfigRequestState) bool {
	switch state {
	case domain.StatePendingRegional:
		return role == domain.RoleRegional
	case domain.StatePendingGlobal:
		return role == domain.RoleGlobal
	default:
		return false
	}
}
