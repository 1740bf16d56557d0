package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"

	"pdsno.io/controller/internal/domain"
	"pdsno.io/controller/internal/jobs"
)

// AtomicWriter executes an approval state transition and its River
// enqueue in one pgx transaction, so a crash between the two can never
// leave a request approved with no execution job queued behind it.
type AtomicWriter struct {
	pool        *pgxpool.Pool
	riverClient *river.Client[pgx.Tx]
}

// NewAtomicWriter creates an atomic approve-and-enqueue writer.
func NewAtomicWriter(pool *pgxpool.Pool, riverClient *river.Client[pgx.Tx]) *AtomicWriter {
	return &AtomicWriter{pool: pool, riverClient: riverClient}
}

// ApproveAndEnqueue marks requestID approved by approver and enqueues its
// execution job in the same transaction, failing the whole operation if
// either half fails. expectedVersion guards against a concurrent approval
// of the same request. token is non-nil only when nextState is the final
// domain.StateApproved hop: it is persisted to execution_tokens and stamped
// onto the request row in the same transaction as the enqueue, so a
// worker picking up the execute_config job always finds a token waiting.
func (w *AtomicWriter) ApproveAndEnqueue(ctx context.Context, requestID, approver string, expectedVersion int64, nextState domain.ConfigRequestState, transition domain.Transition, token *domain.ExecutionToken) error {
	if w.pool == nil || w.riverClient == nil {
		return fmt.Errorf("atomic writer is not initialized")
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin approve tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	auditJSON, err := appendTransition(ctx, tx, requestID, transition)
	if err != nil {
		return err
	}

	approvers, err := appendApprover(ctx, tx, requestID, approver)
	if err != nil {
		return err
	}

	var tokenID string
	if token != nil {
		if _, err := tx.Exec(ctx, `
INSERT INTO execution_tokens (token_id, request_id, config_hash, scope, issuer_id, issued_at, expires_at, max_uses, consumed_at, rate_limit, window_start, window_end, signed)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			token.TokenID, token.RequestID, token.ConfigHash, token.Scope, token.IssuerID, token.IssuedAt, token.ExpiresAt, token.MaxUses, token.ConsumedAt,
			token.Constraints.RateLimitPerMinute, token.Constraints.WindowStart, token.Constraints.WindowEnd, token.Signed); err != nil {
			return fmt.Errorf("insert execution token for %s: %w", requestID, err)
		}
		tokenID = token.TokenID
	}

	tag, err := tx.Exec(ctx, `
		UPDATE config_requests
		SET state = $1, audit_trail = $2, approvers = $3, execution_token = $4, version = version + 1
		WHERE request_id = $5 AND version = $6`,
		string(nextState), auditJSON, approvers, tokenID, requestID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update config request %s: %w", requestID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("config request %s: version conflict or not found", requestID)
	}

	if nextState == domain.StateApproved {
		if _, err := w.riverClient.InsertTx(ctx, tx, jobs.ExecuteConfigArgs{RequestID: requestID}, nil); err != nil {
			return fmt.Errorf("enqueue execute_config for %s: %w", requestID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit approve tx: %w", err)
	}
	return nil
}

// RejectAndRecord marks requestID rejected, recording reason in its audit
// trail, without enqueueing any execution job.
func (w *AtomicWriter) RejectAndRecord(ctx context.Context, requestID string, expectedVersion int64, transition domain.Transition) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reject tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	auditJSON, err := appendTransition(ctx, tx, requestID, transition)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE config_requests
		SET state = $1, audit_trail = $2, version = version + 1
		WHERE request_id = $3 AND version = $4`,
		string(domain.StateRejected), auditJSON, requestID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update config request %s: %w", requestID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("config request %s: version conflict or not found", requestID)
	}

	return tx.Commit(ctx)
}

// EnqueueRollback enqueues a rollback job for requestID outside the
// approval transaction (used once a FAILED or degraded request has
// already transitioned, not as part of the approve/reject path).
func (w *AtomicWriter) EnqueueRollback(ctx context.Context, requestID string) error {
	if w.riverClient == nil {
		return fmt.Errorf("atomic writer is not initialized")
	}
	_, err := w.riverClient.Insert(ctx, jobs.RollbackConfigArgs{RequestID: requestID}, nil)
	return err
}

func appendTransition(ctx context.Context, tx pgx.Tx, requestID string, t domain.Transition) ([]byte, error) {
	var existing []byte
	if err := tx.QueryRow(ctx, `SELECT audit_trail FROM config_requests WHERE request_id = $1 FOR UPDATE`, requestID).Scan(&existing); err != nil {
		return nil, fmt.Errorf("lock config request %s: %w", requestID, err)
	}

	var trail []domain.Transition
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &trail); err != nil {
			return nil, fmt.Errorf("unmarshal audit trail for %s: %w", requestID, err)
		}
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	trail = append(trail, t)

	out, err := json.Marshal(trail)
	if err != nil {
		return nil, fmt.Errorf("marshal audit trail for %s: %w", requestID, err)
	}
	return out, nil
}

func appendApprover(ctx context.Context, tx pgx.Tx, requestID, approver string) ([]string, error) {
	var existing []string
	if err := tx.QueryRow(ctx, `SELECT approvers FROM config_requests WHERE request_id = $1`, requestID).Scan(&existing); err != nil {
		return nil, fmt.Errorf("read approvers for %s: %w", requestID, err)
	}
	for _, a := range existing {
		if a == approver {
			return existing, nil
		}
	}
	return append(existing, approver), nil
}
