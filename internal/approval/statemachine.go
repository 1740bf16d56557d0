package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pdsno.io/controller/internal/domain"
	"pdsno.io/controller/internal/exectoken"
	"pdsno.io/controller/internal/metrics"
	"pdsno.io/controller/internal/nib"
	apperrors "pdsno.io/controller/internal/pkg/errors"
)

// Engine drives a configuration request through the full approval state
// machine: proposed -> pending_regional/pending_global -> approved ->
// executing -> succeeded/failed -> rolled_back, with pending_conflict and
// rejected as side exits.
type Engine struct {
	Store  nib.Store
	Router *Router
	Atomic *AtomicWriter

	// PolicyVersion is this tier's locally-held policy version. Propose
	// rejects a request declaring a different version with
	// apperrors.CodePolicyDrift rather than silently evaluating a change
	// against a policy the tier no longer agrees is current.
	PolicyVersion string

	// LockTTL bounds how long a per-device approval lock is held before it
	// expires and can be reclaimed by a retried approval.
	LockTTL time.Duration

	// RootKey derives the per-(issuer,executor) signing key for execution
	// tokens issued on final approval. Empty disables token issuance.
	RootKey []byte
	// IssuerID identifies this tier as the execution token issuer.
	IssuerID string
	// ExecutionTokenTTL bounds how long an issued token remains valid for
	// redemption by the executing worker.
	ExecutionTokenTTL time.Duration
}

// NewEngine creates an approval engine.
func NewEngine(store nib.Store, router *Router, atomic *AtomicWriter) *Engine {
	return &Engine{Store: store, Router: router, Atomic: atomic, LockTTL: 30 * time.Second}
}

// Propose classifies and admits a new configuration request, detecting
// conflicts with any other in-flight request touching an overlapping
// device set before assigning its initial state.
func (e *Engine) Propose(ctx context.Context, r *domain.ConfigRequest) error {
	if e.PolicyVersion != "" && r.PolicyVersion != "" && r.PolicyVersion != e.PolicyVersion {
		return apperrors.Conflict(apperrors.CodePolicyDrift,
			fmt.Sprintf("request policy version %s does not match this tier's %s", r.PolicyVersion, e.PolicyVersion))
	}

	degraded, err := e.Store.ListConfigRequestsByState(ctx, domain.StateDegraded)
	if err != nil {
		return fmt.Errorf("check degraded requests: %w", err)
	}
	if dev := firstOverlappingDevice(degraded, r.TargetDevices); dev != "" {
		return apperrors.ErrDeviceDegradedf(dev)
	}

	devices := make([]*domain.Device, 0, len(r.TargetDevices))
	for _, id := range r.TargetDevices {
		d, err := e.Store.GetDevice(ctx, id)
		if err != nil {
			return fmt.Errorf("fetch target device %s: %w", id, err)
		}
		devices = append(devices, d)
	}

	r.ClassifiedSensitivity = Classify(r.DeclaredSensitivity, devices)

	overlapping, err := e.Store.ListOverlapping(ctx, r.TargetDevices, r.RequestID)
	if err != nil {
		return fmt.Errorf("check overlapping requests: %w", err)
	}
	if len(overlapping) > 0 {
		r.State = domain.StatePendingConflict
		r.AuditTrail = append(r.AuditTrail, domain.Transition{
			To: domain.StatePendingConflict, ActorID: r.CreatedBy,
			Reason: fmt.Sprintf("conflicts with in-flight request %s", overlapping[0].RequestID), Timestamp: time.Now(),
		})
		if err := e.Store.PutConfigRequest(ctx, r, 0); err != nil {
			return err
		}
		return apperrors.ErrPendingConflictf(overlapping[0].RequestID)
	}

	r.State = e.Router.InitialState(r.ClassifiedSensitivity)
	r.AuditTrail = append(r.AuditTrail, domain.Transition{
		From: domain.StateProposed, To: r.State, ActorID: r.CreatedBy, Timestamp: time.Now(),
	})

	if err := e.Store.PutConfigRequest(ctx, r, 0); err != nil {
		return err
	}

	return e.Store.AppendEvent(ctx, &domain.Event{
		EventID:   uuid.NewString(),
		EventType: domain.EventConfigStateChanged,
		ActorID:   r.CreatedBy,
		Timestamp: time.Now(),
	})
}

// Approve advances requestID through one approval hop performed by
// approver acting as approverRole. It returns apperrors.CodeApprovalTierMismatch
// if approverRole is not authorized for the request's current state.
func (e *Engine) Approve(ctx context.Context, requestID, approver string, approverRole domain.ControllerRole) error {
	r, err := e.Store.GetConfigRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if !CanApprove(approverRole, r.State) {
		return apperrors.Forbidden(apperrors.CodeApprovalTierMismatch,
			fmt.Sprintf("role %s may not approve a request in state %s", approverRole, r.State))
	}

	acquired, err := e.acquireDeviceLocks(ctx, r.TargetDevices, requestID)
	if err != nil {
		e.releaseDeviceLocks(ctx, acquired, requestID)
		return err
	}

	next := e.Router.NextOnApprove(r.State, r.ClassifiedSensitivity)
	transition := domain.Transition{From: r.State, To: next, ActorID: approver, Timestamp: time.Now()}

	token, err := e.buildExecutionToken(r, next)
	if err != nil {
		e.releaseDeviceLocks(ctx, acquired, requestID)
		return fmt.Errorf("issue execution token for %s: %w", requestID, err)
	}

	if err := e.Atomic.ApproveAndEnqueue(ctx, requestID, approver, r.Version, next, transition, token); err != nil {
		e.releaseDeviceLocks(ctx, acquired, requestID)
		return err
	}
	observeTierDuration(r, string(next))
	return nil
}

// firstOverlappingDevice returns the first device ID that is both a target
// of deviceIDs and a target of some request in requests, or "" if none
// overlap. Used to refuse a proposal touching a device with an unresolved
// degraded request.
func firstOverlappingDevice(requests []*domain.ConfigRequest, deviceIDs []string) string {
	want := make(map[string]struct{}, len(deviceIDs))
	for _, id := range deviceIDs {
		want[id] = struct{}{}
	}
	for _, r := range requests {
		for _, id := range r.TargetDevices {
			if _, ok := want[id]; ok {
				return id
			}
		}
	}
	return ""
}

// buildExecutionToken issues an execution token for r when nextState is the
// terminal domain.StateApproved hop, and returns (nil, nil) for every
// intermediate tier hop. The executing party is r.CreatedBy: the local
// controller that originated the request is the one that will redeem the
// token against the devices it proposed the change for.
func (e *Engine) buildExecutionToken(r *domain.ConfigRequest, nextState domain.ConfigRequestState) (*domain.ExecutionToken, error) {
	if nextState != domain.StateApproved {
		return nil, nil
	}
	return exectoken.IssueExecutionToken(e.RootKey, e.issuerID(), r.CreatedBy, r, e.executionTokenTTL())
}

func (e *Engine) issuerID() string {
	return e.IssuerID
}

func (e *Engine) executionTokenTTL() time.Duration {
	if e.ExecutionTokenTTL <= 0 {
		return 15 * time.Minute
	}
	return e.ExecutionTokenTTL
}

// observeTierDuration records how long r has been in flight since proposal,
// labeled by its classified sensitivity tier and the state it just reached.
func observeTierDuration(r *domain.ConfigRequest, outcome string) {
	if r.CreatedAt.IsZero() {
		return
	}
	metrics.ApprovalTierDuration.WithLabelValues(string(r.ClassifiedSensitivity), outcome).
		Observe(time.Since(r.CreatedAt).Seconds())
}

// acquireDeviceLocks attempts to take the per-device coordination lock
// (before approval the responsible tier attempts
// acquire_lock(device_id, request_id) for each target device) for every
// device targeted by requestID, returning the resource keys it managed to
// acquire so a caller can roll them back on partial failure.
func (e *Engine) acquireDeviceLocks(ctx context.Context, deviceIDs []string, requestID string) ([]string, error) {
	acquired := make([]string, 0, len(deviceIDs))
	for _, deviceID := range deviceIDs {
		resourceKey := "device:" + deviceID
		if _, err := e.Store.AcquireLock(ctx, resourceKey, requestID, e.lockTTL()); err != nil {
			metrics.LockContention.WithLabelValues("device").Inc()
			return acquired, fmt.Errorf("acquire lock for device %s: %w", deviceID, err)
		}
		acquired = append(acquired, resourceKey)
	}
	return acquired, nil
}

func (e *Engine) releaseDeviceLocks(ctx context.Context, resourceKeys []string, requestID string) {
	for _, key := range resourceKeys {
		lock, err := e.Store.GetLock(ctx, key)
		if err != nil || lock == nil {
			continue
		}
		_ = e.Store.ReleaseLock(ctx, key, requestID, lock.FencingToken)
	}
}

func (e *Engine) lockTTL() time.Duration {
	if e.LockTTL <= 0 {
		return 30 * time.Second
	}
	return e.LockTTL
}

// Reject terminates requestID in the rejected state.
func (e *Engine) Reject(ctx context.Context, requestID, approver, reason string) error {
	r, err := e.Store.GetConfigRequest(ctx, requestID)
	if err != nil {
		return err
	}
	transition := domain.Transition{From: r.State, To: domain.StateRejected, ActorID: approver, Reason: reason, Timestamp: time.Now()}
	if err := e.Atomic.RejectAndRecord(ctx, requestID, r.Version, transition); err != nil {
		return err
	}
	observeTierDuration(r, string(domain.StateRejected))
	return nil
}

// MarkDegraded transitions requestID to StateDegraded when its owning
// local controller cannot be reached to confirm execution or rollback. A
// degraded request is expected to resync once the local controller
// reconnects and reports its actual device state.
func (e *Engine) MarkDegraded(ctx context.Context, requestID, reason string) error {
	r, err := e.Store.GetConfigRequest(ctx, requestID)
	if err != nil {
		return err
	}
	r.AuditTrail = append(r.AuditTrail, domain.Transition{
		From: r.State, To: domain.StateDegraded, ActorID: "system", Reason: reason, Timestamp: time.Now(),
	})
	r.State = domain.StateDegraded
	if err := e.Store.PutConfigRequest(ctx, r, r.Version); err != nil {
		return err
	}
	return e.Store.AppendEvent(ctx, &domain.Event{
		EventID:   uuid.NewString(),
		EventType: domain.EventDeviceDegraded,
		ActorID:   "system",
		Timestamp: time.Now(),
	})
}

// ClearDegraded resumes a degraded request once its local controller has
// reconnected and its actual device state is confirmed consistent with
// nextState (typically succeeded or rolled_back).
func (e *Engine) ClearDegraded(ctx context.Context, requestID string, nextState domain.ConfigRequestState) error {
	r, err := e.Store.GetConfigRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if r.State != domain.StateDegraded {
		return fmt.Errorf("config request %s is not degraded", requestID)
	}
	r.AuditTrail = append(r.AuditTrail, domain.Transition{
		From: domain.StateDegraded, To: nextState, ActorID: "system", Timestamp: time.Now(),
	})
	r.State = nextState
	if err := e.Store.PutConfigRequest(ctx, r, r.Version); err != nil {
		return err
	}
	return e.Store.AppendEvent(ctx, &domain.Event{
		EventID:   uuid.NewString(),
		EventType: domain.EventDegradedCleared,
		ActorID:   "system",
		Timestamp: time.Now(),
	})
}
