package nib

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"pdsno.io/controller/internal/domain"
	apperrors "pdsno.io/controller/internal/pkg/errors"
)

// PostgresStore is the production NIB implementation: hand-written pgx SQL
// against the schema applied by infrastructure.Migrate, following the same
// raw-query style as the controller's single-use-token replay store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a NIB store backed by the shared connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Close() error { return nil }

// pgxQuerier is the subset of pgxpool.Pool and pgx.Tx that every store
// method below runs queries through, so a method is indifferent to
// whether it is running against the pool directly or inside a Transact
// call.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type txCtxKey struct{}

// q returns the active transaction if ctx carries one (set by Transact),
// otherwise the shared pool.
func (s *PostgresStore) q(ctx context.Context) pgxQuerier {
	if tx, ok := ctx.Value(txCtxKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

// Transact runs fn inside a single pgx transaction; every Store call fn
// makes with the context it receives runs against that transaction. A
// context already carrying a transaction (nested Transact) runs fn inline
// against the existing one rather than opening a second.
func (s *PostgresStore) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txCtxKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txCtxKey{}, tx))
	})
}

// --- devices ---

const selectDeviceCols = `device_id, region, mac, ip, hostname, status, last_seen_by, last_seen_at, role, attributes, version`

func scanDevice(row pgx.Row) (*domain.Device, error) {
	var d domain.Device
	var attrs []byte
	if err := row.Scan(&d.DeviceID, &d.Region, &d.MAC, &d.IP, &d.Hostname, &d.Status,
		&d.LastSeenBy, &d.LastSeenAt, &d.Role, &attrs, &d.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrDeviceNotFoundf("")
		}
		return nil, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &d.Attributes); err != nil {
			return nil, err
		}
	}
	return &d, nil
}

func (s *PostgresStore) GetDevice(ctx context.Context, deviceID string) (*domain.Device, error) {
	row := s.q(ctx).QueryRow(ctx, `SELECT `+selectDeviceCols+` FROM devices WHERE device_id = $1`, deviceID)
	return scanDevice(row)
}

func (s *PostgresStore) GetDeviceByMAC(ctx context.Context, mac string) (*domain.Device, error) {
	row := s.q(ctx).QueryRow(ctx, `SELECT `+selectDeviceCols+` FROM devices WHERE mac = $1`, mac)
	return scanDevice(row)
}

func (s *PostgresStore) ListDevices(ctx context.Context, region string) ([]*domain.Device, error) {
	var rows pgx.Rows
	var err error
	if region == "" {
		rows, err = s.q(ctx).Query(ctx, `SELECT `+selectDeviceCols+` FROM devices ORDER BY device_id`)
	} else {
		rows, err = s.q(ctx).Query(ctx, `SELECT `+selectDeviceCols+` FROM devices WHERE region = $1 ORDER BY device_id`, region)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) PutDevice(ctx context.Context, d *domain.Device, expectedVersion int64) error {
	attrs, err := json.Marshal(d.Attributes)
	if err != nil {
		return err
	}

	if expectedVersion == 0 {
		_, err := s.q(ctx).Exec(ctx, `
INSERT INTO devices (device_id, region, mac, ip, hostname, status, last_seen_by, last_seen_at, role, attributes, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)`,
			d.DeviceID, d.Region, d.MAC, d.IP, d.Hostname, d.Status, d.LastSeenBy, d.LastSeenAt, d.Role, attrs)
		if err != nil {
			return err
		}
		d.Version = 1
		return nil
	}

	tag, err := s.q(ctx).Exec(ctx, `
UPDATE devices SET region=$1, mac=$2, ip=$3, hostname=$4, status=$5, last_seen_by=$6, last_seen_at=$7, role=$8, attributes=$9, version=version+1
WHERE device_id=$10 AND version=$11`,
		d.Region, d.MAC, d.IP, d.Hostname, d.Status, d.LastSeenBy, d.LastSeenAt, d.Role, attrs, d.DeviceID, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrVersionConflictf("device:" + d.DeviceID)
	}
	d.Version = expectedVersion + 1
	return nil
}

// --- controllers ---

const selectControllerCols = `controller_id, role, region, status, validated_by, validated_at, public_key, certificate, capabilities, version`

func scanController(row pgx.Row) (*domain.Controller, error) {
	var c domain.Controller
	var validatedAt *time.Time
	if err := row.Scan(&c.ControllerID, &c.Role, &c.Region, &c.Status, &c.ValidatedBy, &validatedAt,
		&c.PublicKey, &c.Certificate, &c.Capabilities, &c.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound(apperrors.CodeControllerNotFound, "controller not found")
		}
		return nil, err
	}
	if validatedAt != nil {
		c.ValidatedAt = *validatedAt
	}
	return &c, nil
}

func (s *PostgresStore) GetController(ctx context.Context, controllerID string) (*domain.Controller, error) {
	row := s.q(ctx).QueryRow(ctx, `SELECT `+selectControllerCols+` FROM controllers WHERE controller_id = $1`, controllerID)
	return scanController(row)
}

func (s *PostgresStore) ListControllers(ctx context.Context, region string) ([]*domain.Controller, error) {
	var rows pgx.Rows
	var err error
	if region == "" {
		rows, err = s.q(ctx).Query(ctx, `SELECT `+selectControllerCols+` FROM controllers ORDER BY controller_id`)
	} else {
		rows, err = s.q(ctx).Query(ctx, `SELECT `+selectControllerCols+` FROM controllers WHERE region = $1 ORDER BY controller_id`, region)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Controller
	for rows.Next() {
		c, err := scanController(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) PutController(ctx context.Context, c *domain.Controller, expectedVersion int64) error {
	var validatedAt *time.Time
	if !c.ValidatedAt.IsZero() {
		validatedAt = &c.ValidatedAt
	}

	if expectedVersion == 0 {
		_, err := s.q(ctx).Exec(ctx, `
INSERT INTO controllers (controller_id, role, region, status, validated_by, validated_at, public_key, certificate, capabilities, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)`,
			c.ControllerID, c.Role, c.Region, c.Status, c.ValidatedBy, validatedAt, c.PublicKey, c.Certificate, c.Capabilities)
		if err != nil {
			return err
		}
		c.Version = 1
		return nil
	}

	tag, err := s.q(ctx).Exec(ctx, `
UPDATE controllers SET role=$1, region=$2, status=$3, validated_by=$4, validated_at=$5, public_key=$6, certificate=$7, capabilities=$8, version=version+1
WHERE controller_id=$9 AND version=$10`,
		c.Role, c.Region, c.Status, c.ValidatedBy, validatedAt, c.PublicKey, c.Certificate, c.Capabilities, c.ControllerID, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrVersionConflictf("controller:" + c.ControllerID)
	}
	c.Version = expectedVersion + 1
	return nil
}

// --- config requests ---

const selectConfigRequestCols = `request_id, config_hash, payload, target_devices, declared_sensitivity, classified_sensitivity, policy_version, state, created_by, approvers, execution_token, audit_trail, device_results, rollback_policy, pre_change_snapshot, version, created_at`

func scanConfigRequest(row pgx.Row) (*domain.ConfigRequest, error) {
	var r domain.ConfigRequest
	var auditTrail, deviceResults []byte
	if err := row.Scan(&r.RequestID, &r.ConfigHash, &r.Payload, &r.TargetDevices, &r.DeclaredSensitivity,
		&r.ClassifiedSensitivity, &r.PolicyVersion, &r.State, &r.CreatedBy, &r.Approvers, &r.ExecutionToken,
		&auditTrail, &deviceResults, &r.RollbackPolicy, &r.PreChangeSnapshot, &r.Version, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound(apperrors.CodeConfigRequestNotFound, "config request not found")
		}
		return nil, err
	}
	if len(auditTrail) > 0 {
		if err := json.Unmarshal(auditTrail, &r.AuditTrail); err != nil {
			return nil, err
		}
	}
	if len(deviceResults) > 0 {
		if err := json.Unmarshal(deviceResults, &r.DeviceResults); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

func (s *PostgresStore) GetConfigRequest(ctx context.Context, requestID string) (*domain.ConfigRequest, error) {
	row := s.q(ctx).QueryRow(ctx, `SELECT `+selectConfigRequestCols+` FROM config_requests WHERE request_id = $1`, requestID)
	return scanConfigRequest(row)
}

func (s *PostgresStore) ListConfigRequestsByState(ctx context.Context, state domain.ConfigRequestState) ([]*domain.ConfigRequest, error) {
	rows, err := s.q(ctx).Query(ctx, `SELECT `+selectConfigRequestCols+` FROM config_requests WHERE state = $1 ORDER BY created_at`, state)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.ConfigRequest
	for rows.Next() {
		r, err := scanConfigRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListOverlapping(ctx context.Context, deviceIDs []string, excludeRequestID string) ([]*domain.ConfigRequest, error) {
	terminal := []domain.ConfigRequestState{
		domain.StateSucceeded, domain.StateFailed, domain.StateRolledBack, domain.StateRejected,
	}
	rows, err := s.q(ctx).Query(ctx, `
SELECT `+selectConfigRequestCols+` FROM config_requests
WHERE request_id != $1 AND state != ALL($2) AND target_devices && $3`,
		excludeRequestID, terminal, deviceIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.ConfigRequest
	for rows.Next() {
		r, err := scanConfigRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) PutConfigRequest(ctx context.Context, r *domain.ConfigRequest, expectedVersion int64) error {
	auditTrail, err := json.Marshal(r.AuditTrail)
	if err != nil {
		return err
	}
	deviceResults, err := json.Marshal(r.DeviceResults)
	if err != nil {
		return err
	}

	if expectedVersion == 0 {
		_, err := s.q(ctx).Exec(ctx, `
INSERT INTO config_requests (request_id, config_hash, payload, target_devices, declared_sensitivity, classified_sensitivity, policy_version, state, created_by, approvers, execution_token, audit_trail, device_results, rollback_policy, pre_change_snapshot, version, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,1,$16)`,
			r.RequestID, r.ConfigHash, r.Payload, r.TargetDevices, r.DeclaredSensitivity, r.ClassifiedSensitivity,
			r.PolicyVersion, r.State, r.CreatedBy, r.Approvers, r.ExecutionToken, auditTrail, deviceResults,
			r.RollbackPolicy, r.PreChangeSnapshot, r.CreatedAt)
		if err != nil {
			return err
		}
		r.Version = 1
		return nil
	}

	tag, err := s.q(ctx).Exec(ctx, `
UPDATE config_requests SET config_hash=$1, payload=$2, target_devices=$3, declared_sensitivity=$4, classified_sensitivity=$5,
	policy_version=$6, state=$7, approvers=$8, execution_token=$9, audit_trail=$10, device_results=$11, rollback_policy=$12,
	pre_change_snapshot=$13, version=version+1
WHERE request_id=$14 AND version=$15`,
		r.ConfigHash, r.Payload, r.TargetDevices, r.DeclaredSensitivity, r.ClassifiedSensitivity, r.PolicyVersion,
		r.State, r.Approvers, r.ExecutionToken, auditTrail, deviceResults, r.RollbackPolicy, r.PreChangeSnapshot,
		r.RequestID, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrVersionConflictf("config_request:" + r.RequestID)
	}
	r.Version = expectedVersion + 1
	return nil
}

// --- execution tokens ---

func (s *PostgresStore) PutExecutionToken(ctx context.Context, t *domain.ExecutionToken) error {
	_, err := s.q(ctx).Exec(ctx, `
INSERT INTO execution_tokens (token_id, request_id, config_hash, scope, issuer_id, issued_at, expires_at, max_uses, consumed_at, rate_limit, window_start, window_end, signed)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		t.TokenID, t.RequestID, t.ConfigHash, t.Scope, t.IssuerID, t.IssuedAt, t.ExpiresAt, t.MaxUses, t.ConsumedAt,
		t.Constraints.RateLimitPerMinute, t.Constraints.WindowStart, t.Constraints.WindowEnd, t.Signed)
	return err
}

func (s *PostgresStore) GetExecutionToken(ctx context.Context, tokenID string) (*domain.ExecutionToken, error) {
	var t domain.ExecutionToken
	row := s.q(ctx).QueryRow(ctx, `
SELECT token_id, request_id, config_hash, scope, issuer_id, issued_at, expires_at, max_uses, consumed_at, rate_limit, window_start, window_end, signed
FROM execution_tokens WHERE token_id = $1`, tokenID)
	if err := row.Scan(&t.TokenID, &t.RequestID, &t.ConfigHash, &t.Scope, &t.IssuerID, &t.IssuedAt, &t.ExpiresAt,
		&t.MaxUses, &t.ConsumedAt, &t.Constraints.RateLimitPerMinute, &t.Constraints.WindowStart, &t.Constraints.WindowEnd, &t.Signed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.New(apperrors.CodeTokenInvalid, "execution token not found", 404)
		}
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) ConsumeExecutionToken(ctx context.Context, tokenID string, at time.Time) (bool, error) {
	tag, err := s.q(ctx).Exec(ctx, `
UPDATE execution_tokens SET consumed_at = $1 WHERE token_id = $2 AND consumed_at IS NULL AND expires_at > $1`,
		at, tokenID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// --- events ---

func (s *PostgresStore) AppendEvent(ctx context.Context, e *domain.Event) error {
	_, err := s.q(ctx).Exec(ctx, `
INSERT INTO events (event_id, event_type, actor_id, timestamp, payload, hmac) VALUES ($1,$2,$3,$4,$5,$6)`,
		e.EventID, e.EventType, e.ActorID, e.Timestamp, []byte(e.Payload), e.HMAC)
	return err
}

func (s *PostgresStore) ListEvents(ctx context.Context, eventType domain.EventType, limit int) ([]*domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows pgx.Rows
	var err error
	if eventType == "" {
		rows, err = s.q(ctx).Query(ctx, `SELECT event_id, event_type, actor_id, timestamp, payload, hmac FROM events ORDER BY seq DESC LIMIT $1`, limit)
	} else {
		rows, err = s.q(ctx).Query(ctx, `SELECT event_id, event_type, actor_id, timestamp, payload, hmac FROM events WHERE event_type = $1 ORDER BY seq DESC LIMIT $2`, eventType, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Event
	for rows.Next() {
		var e domain.Event
		var payload []byte
		if err := rows.Scan(&e.EventID, &e.EventType, &e.ActorID, &e.Timestamp, &payload, &e.HMAC); err != nil {
			return nil, err
		}
		e.Payload = payload
		out = append(out, &e)
	}
	return out, rows.Err()
}

// --- locks ---

func (s *PostgresStore) AcquireLock(ctx context.Context, resourceKey, holderID string, ttl time.Duration) (*domain.Lock, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	var lock domain.Lock
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var existingHolder string
		var existingExpiry time.Time
		var existingToken int64
		err := tx.QueryRow(ctx, `SELECT holder_id, expires_at, fencing_token FROM locks WHERE resource_key=$1 FOR UPDATE`, resourceKey).
			Scan(&existingHolder, &existingExpiry, &existingToken)

		switch {
		case errors.Is(err, pgx.ErrNoRows):
			lock = domain.Lock{ResourceKey: resourceKey, HolderID: holderID, AcquiredAt: now, ExpiresAt: expiresAt, FencingToken: 1}
			_, err := tx.Exec(ctx, `INSERT INTO locks (resource_key, holder_id, acquired_at, expires_at, fencing_token) VALUES ($1,$2,$3,$4,$5)`,
				resourceKey, holderID, now, expiresAt, lock.FencingToken)
			return err
		case err != nil:
			return err
		case existingExpiry.After(now) && existingHolder != holderID:
			return apperrors.New(apperrors.CodeLockHeld, "resource lock held by another holder: "+resourceKey, 409)
		default:
			lock = domain.Lock{ResourceKey: resourceKey, HolderID: holderID, AcquiredAt: now, ExpiresAt: expiresAt, FencingToken: existingToken + 1}
			_, err := tx.Exec(ctx, `UPDATE locks SET holder_id=$1, acquired_at=$2, expires_at=$3, fencing_token=$4 WHERE resource_key=$5`,
				holderID, now, expiresAt, lock.FencingToken, resourceKey)
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return &lock, nil
}

func (s *PostgresStore) ReleaseLock(ctx context.Context, resourceKey, holderID string, fencingToken int64) error {
	// The row is kept, expired and unowned, so the next AcquireLock
	// continues the fencing-token sequence instead of restarting it at 1.
	tag, err := s.q(ctx).Exec(ctx, `
UPDATE locks SET holder_id='', expires_at=$4 WHERE resource_key=$1 AND holder_id=$2 AND fencing_token=$3`,
		resourceKey, holderID, fencingToken, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.CodeFencingTokenStale, "fencing token stale or lock not held: "+resourceKey, 409)
	}
	return nil
}

func (s *PostgresStore) GetLock(ctx context.Context, resourceKey string) (*domain.Lock, error) {
	var l domain.Lock
	row := s.q(ctx).QueryRow(ctx, `SELECT resource_key, holder_id, acquired_at, expires_at, fencing_token FROM locks WHERE resource_key=$1`, resourceKey)
	if err := row.Scan(&l.ResourceKey, &l.HolderID, &l.AcquiredAt, &l.ExpiresAt, &l.FencingToken); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}
