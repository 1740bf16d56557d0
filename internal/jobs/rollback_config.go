package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"pdsno.io/controller/internal/domain"
	"pdsno.io/controller/internal/nib"
	"pdsno.io/controller/internal/pkg/logger"
)

// RollbackConfigArgs carries only RequestID (claim-check pattern).
type RollbackConfigArgs struct {
	RequestID string `json:"request_id"`
}

// Kind returns the job kind identifier for config rollback.
func (RollbackConfigArgs) Kind() string { return "rollback_config" }

// InsertOpts returns default insert options for config rollback jobs.
func (RollbackConfigArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       "config_operations",
		MaxAttempts: 5,
		UniqueOpts: river.UniqueOpts{
			ByArgs:  true,
			ByQueue: true,
		},
	}
}

// Roller restores target devices to a request's PreChangeSnapshot.
type Roller interface {
	Rollback(ctx context.Context, r *domain.ConfigRequest) []domain.DeviceResult
}

// RollbackConfigWorker reverts a failed configuration change.
type RollbackConfigWorker struct {
	river.WorkerDefaults[RollbackConfigArgs]
	store  nib.Store
	roller Roller
}

// NewRollbackConfigWorker creates a worker wired to store and roller.
func NewRollbackConfigWorker(store nib.Store, roller Roller) *RollbackConfigWorker {
	return &RollbackConfigWorker{store: store, roller: roller}
}

// Work reverts the request named by job.Args.RequestID. If the owning
// local controller cannot be reached, the caller is expected to have
// already transitioned the request to
// StateDegraded before this job was enqueued; Work then records the
// attempt but does not fail the job, since a degraded device is expected
// to resync once connectivity returns.
func (w *RollbackConfigWorker) Work(ctx context.Context, job *river.Job[RollbackConfigArgs]) error {
	requestID := job.Args.RequestID

	r, err := w.store.GetConfigRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("fetch config request %s: %w", requestID, err)
	}
	if r.State == domain.StateRolledBack || r.State == domain.StateDegraded {
		logger.Info("config request already rolled back or degraded, skipping", zap.String("request_id", requestID))
		return nil
	}
	if len(r.PreChangeSnapshot) == 0 {
		return fmt.Errorf("config request %s has no pre-change snapshot to roll back to", requestID)
	}

	results := w.roller.Rollback(ctx, r)
	r.DeviceResults = results

	allSucceeded := true
	for _, res := range results {
		if !res.Success {
			allSucceeded = false
			break
		}
	}

	eventType := domain.EventRollbackApplied
	if allSucceeded {
		r.State = domain.StateRolledBack
	} else {
		r.State = domain.StateDegraded
		eventType = domain.EventDeviceDegraded
	}

	if err := w.store.PutConfigRequest(ctx, r, r.Version); err != nil {
		return fmt.Errorf("persist rollback for config request %s: %w", requestID, err)
	}

	if err := w.store.AppendEvent(ctx, &domain.Event{
		EventID:   uuid.NewString(),
		EventType: eventType,
		ActorID:   "config-executor",
		Timestamp: time.Now(),
	}); err != nil {
		logger.Warn("failed to append rollback event", zap.String("request_id", requestID), zap.Error(err))
	}

	if !allSucceeded {
		return fmt.Errorf("config request %s: one or more devices failed rollback", requestID)
	}
	return nil
}
