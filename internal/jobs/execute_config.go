// Package jobs defines the River job kinds the controller enqueues once a
// configuration change is approved: a job carries only a request ID, and
// the worker re-reads the authoritative row from the NIB rather than
// ferrying the whole payload through the queue.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"pdsno.io/controller/internal/domain"
	"pdsno.io/controller/internal/exectoken"
	"pdsno.io/controller/internal/nib"
	"pdsno.io/controller/internal/pkg/logger"
)

// ExecuteConfigArgs carries only RequestID (claim-check pattern).
type ExecuteConfigArgs struct {
	RequestID string `json:"request_id"`
}

// Kind returns the job kind identifier for config execution.
func (ExecuteConfigArgs) Kind() string { return "execute_config" }

// InsertOpts returns default insert options for config execution jobs.
func (ExecuteConfigArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       "config_operations",
		MaxAttempts: 3,
		UniqueOpts: river.UniqueOpts{
			ByArgs:  true,
			ByQueue: true,
		},
	}
}

// Executor applies an approved configuration change to its target
// devices. The wire protocol to the devices themselves is out of scope;
// implementations plug in per deployment.
type Executor interface {
	Apply(ctx context.Context, r *domain.ConfigRequest) []domain.DeviceResult
}

// RollbackEnqueuer enqueues a rollback job for a request that has already
// recorded a failed execution.
type RollbackEnqueuer interface {
	EnqueueRollback(ctx context.Context, requestID string) error
}

// ExecuteConfigWorker processes approved configuration changes.
type ExecuteConfigWorker struct {
	river.WorkerDefaults[ExecuteConfigArgs]
	store    nib.Store
	executor Executor
	rollback RollbackEnqueuer
	rootKey  []byte
	issuerID string
}

// NewExecuteConfigWorker creates a worker wired to store and executor.
// rootKey and issuerID must match the approval tier that issues the
// execution token this worker consumes on success; rollback may be nil if
// this deployment never sets RollbackPolicy on its requests.
func NewExecuteConfigWorker(store nib.Store, executor Executor, rollback RollbackEnqueuer, rootKey []byte, issuerID string) *ExecuteConfigWorker {
	return &ExecuteConfigWorker{store: store, executor: executor, rollback: rollback, rootKey: rootKey, issuerID: issuerID}
}

// Work applies the request named by job.Args.RequestID and records the
// outcome. On first entry to StateExecuting it captures each target
// device's current config hash as PreChangeSnapshot so a later rollback
// knows what to restore. On success, the request's execution token is
// verified and consumed in the same transaction as the succeeded
// transition, so a token can never outlive the change it authorized. On
// failure, a rollback job is enqueued when the request carries a
// RollbackPolicy.
func (w *ExecuteConfigWorker) Work(ctx context.Context, job *river.Job[ExecuteConfigArgs]) error {
	requestID := job.Args.RequestID

	r, err := w.store.GetConfigRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("fetch config request %s: %w", requestID, err)
	}
	if r.State == domain.StateSucceeded || r.State == domain.StateFailed {
		logger.Info("config request already terminal, skipping duplicate execution",
			zap.String("request_id", requestID), zap.String("state", string(r.State)))
		return nil
	}

	if r.State != domain.StateExecuting {
		snapshot, err := captureSnapshot(ctx, w.store, r.TargetDevices)
		if err != nil {
			return fmt.Errorf("capture pre-change snapshot for %s: %w", requestID, err)
		}
		r.PreChangeSnapshot = snapshot
		r.State = domain.StateExecuting
		if err := w.store.PutConfigRequest(ctx, r, r.Version); err != nil {
			return fmt.Errorf("mark config request %s executing: %w", requestID, err)
		}
	}

	results := w.executor.Apply(ctx, r)
	r.DeviceResults = results

	allSucceeded := true
	for _, res := range results {
		if !res.Success {
			allSucceeded = false
			break
		}
	}

	eventType := domain.EventExecutionSucceeded
	if allSucceeded {
		r.State = domain.StateSucceeded
	} else {
		r.State = domain.StateFailed
		eventType = domain.EventExecutionFailed
	}

	err = w.store.Transact(ctx, func(ctx context.Context) error {
		if allSucceeded {
			if err := w.consumeExecutionToken(ctx, r); err != nil {
				return fmt.Errorf("consume execution token for %s: %w", requestID, err)
			}
		}
		if err := w.store.PutConfigRequest(ctx, r, r.Version); err != nil {
			return fmt.Errorf("persist config request %s result: %w", requestID, err)
		}
		return w.store.AppendEvent(ctx, &domain.Event{
			EventID:   uuid.NewString(),
			EventType: eventType,
			ActorID:   "config-executor",
			Timestamp: time.Now(),
		})
	})
	if err != nil {
		return err
	}

	if !allSucceeded {
		if r.RollbackPolicy != "" && w.rollback != nil {
			if err := w.rollback.EnqueueRollback(ctx, requestID); err != nil {
				logger.Warn("failed to enqueue rollback", zap.String("request_id", requestID), zap.Error(err))
			}
		}
		return fmt.Errorf("config request %s: one or more devices failed execution", requestID)
	}
	return nil
}

// consumeExecutionToken verifies r's execution token against this worker's
// root key and marks it consumed. A request approved before token issuance
// was wired in (ExecutionToken empty) is let through unchecked so existing
// in-flight requests do not wedge.
func (w *ExecuteConfigWorker) consumeExecutionToken(ctx context.Context, r *domain.ConfigRequest) error {
	if r.ExecutionToken == "" {
		return nil
	}

	tok, err := w.store.GetExecutionToken(ctx, r.ExecutionToken)
	if err != nil {
		return fmt.Errorf("fetch execution token %s: %w", r.ExecutionToken, err)
	}
	if tok.IssuerID != w.issuerID {
		return fmt.Errorf("execution token %s issuer %s does not match worker issuer %s", tok.TokenID, tok.IssuerID, w.issuerID)
	}
	if _, err := exectoken.VerifyExecutionToken(w.rootKey, tok.IssuerID, r.CreatedBy, tok.Signed); err != nil {
		return fmt.Errorf("verify execution token %s: %w", tok.TokenID, err)
	}

	consumed, err := w.store.ConsumeExecutionToken(ctx, tok.TokenID, time.Now())
	if err != nil {
		return err
	}
	if !consumed {
		return fmt.Errorf("execution token %s already consumed or expired", tok.TokenID)
	}
	return nil
}

// captureSnapshot reads each device's currently running config hash so a
// later rollback can restore it. Devices not yet carrying a recorded hash
// (never configured) snapshot to an empty string, which Rollback applies
// as-is.
func captureSnapshot(ctx context.Context, store nib.Store, deviceIDs []string) ([]byte, error) {
	hashes := make(map[string]string, len(deviceIDs))
	for _, id := range deviceIDs {
		d, err := store.GetDevice(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("fetch device %s: %w", id, err)
		}
		hashes[id] = d.Attributes[runningConfigHashAttr]
	}
	return json.Marshal(hashes)
}
