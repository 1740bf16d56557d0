package nib

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"pdsno.io/controller/internal/domain"
	apperrors "pdsno.io/controller/internal/pkg/errors"
)

// BadgerStore is an embedded NIB implementation for a local controller
// running disconnected from its regional parent in degraded operation. It
// satisfies the same Store interface as PostgresStore so the rest of the
// controller is indifferent to which backend is active.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (creating if necessary) a Badger database at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func deviceKey(id string) []byte        { return []byte("device/" + id) }
func deviceMACKey(mac string) []byte    { return []byte("device-mac/" + mac) }
func controllerKey(id string) []byte    { return []byte("controller/" + id) }
func configRequestKey(id string) []byte { return []byte("config-request/" + id) }
func tokenKey(id string) []byte         { return []byte("token/" + id) }
func eventKey(seq int64) []byte         { return []byte("event/" + strconv.FormatInt(seq, 10)) }
func lockKey(resource string) []byte    { return []byte("lock/" + resource) }

type badgerTxnCtxKey struct{}

// Transact runs fn inside a single Badger read-write transaction; every
// Store call fn makes with the context it receives participates in that
// same transaction's commit/rollback. A context already carrying a
// transaction (nested Transact) runs fn inline against the existing one.
func (s *BadgerStore) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(badgerTxnCtxKey{}).(*badger.Txn); ok {
		return fn(ctx)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return fn(context.WithValue(ctx, badgerTxnCtxKey{}, txn))
	})
}

// view runs fn against the ambient transaction in ctx if one is present,
// otherwise opens a fresh read-only transaction.
func (s *BadgerStore) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if txn, ok := ctx.Value(badgerTxnCtxKey{}).(*badger.Txn); ok {
		return fn(txn)
	}
	return s.db.View(fn)
}

// withTxn runs fn against the ambient transaction in ctx if one is
// present, otherwise opens a fresh read-write transaction.
func (s *BadgerStore) withTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if txn, ok := ctx.Value(badgerTxnCtxKey{}).(*badger.Txn); ok {
		return fn(txn)
	}
	return s.db.Update(fn)
}

func (s *BadgerStore) getJSON(ctx context.Context, key []byte, out interface{}) error {
	return s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, out)
		})
	})
}

func (s *BadgerStore) putJSON(ctx context.Context, key []byte, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.withTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(key, b)
	})
}

func (s *BadgerStore) GetDevice(ctx context.Context, deviceID string) (*domain.Device, error) {
	var d domain.Device
	if err := s.getJSON(ctx, deviceKey(deviceID), &d); err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, apperrors.ErrDeviceNotFoundf(deviceID)
		}
		return nil, err
	}
	return &d, nil
}

func (s *BadgerStore) GetDeviceByMAC(ctx context.Context, mac string) (*domain.Device, error) {
	var deviceID string
	if err := s.getJSON(ctx, deviceMACKey(mac), &deviceID); err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, apperrors.ErrDeviceNotFoundf(mac)
		}
		return nil, err
	}
	return s.GetDevice(ctx, deviceID)
}

func (s *BadgerStore) ListDevices(ctx context.Context, region string) ([]*domain.Device, error) {
	var out []*domain.Device
	err := s.view(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("device/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var d domain.Device
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &d) }); err != nil {
				return err
			}
			if region == "" || d.Region == region {
				out = append(out, &d)
			}
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) PutDevice(ctx context.Context, d *domain.Device, expectedVersion int64) error {
	existing, err := s.GetDevice(ctx, d.DeviceID)
	if err != nil {
		if appErr, ok := apperrors.IsAppError(err); !ok || appErr.Code != apperrors.CodeDeviceNotFound {
			return err
		}
		if expectedVersion != 0 {
			return apperrors.ErrVersionConflictf("device:" + d.DeviceID)
		}
	} else if existing.Version != expectedVersion {
		return apperrors.ErrVersionConflictf("device:" + d.DeviceID)
	}

	d.Version = expectedVersion + 1
	if err := s.putJSON(ctx, deviceKey(d.DeviceID), d); err != nil {
		return err
	}
	return s.putJSON(ctx, deviceMACKey(d.MAC), d.DeviceID)
}

func (s *BadgerStore) GetController(ctx context.Context, controllerID string) (*domain.Controller, error) {
	var c domain.Controller
	if err := s.getJSON(ctx, controllerKey(controllerID), &c); err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, apperrors.NotFound(apperrors.CodeControllerNotFound, "controller not found")
		}
		return nil, err
	}
	return &c, nil
}

func (s *BadgerStore) ListControllers(ctx context.Context, region string) ([]*domain.Controller, error) {
	var out []*domain.Controller
	err := s.view(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("controller/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var c domain.Controller
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &c) }); err != nil {
				return err
			}
			if region == "" || c.Region == region {
				out = append(out, &c)
			}
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) PutController(ctx context.Context, c *domain.Controller, expectedVersion int64) error {
	existing, err := s.GetController(ctx, c.ControllerID)
	if err != nil {
		if appErr, ok := apperrors.IsAppError(err); !ok || appErr.Code != apperrors.CodeControllerNotFound {
			return err
		}
		if expectedVersion != 0 {
			return apperrors.ErrVersionConflictf("controller:" + c.ControllerID)
		}
	} else if existing.Version != expectedVersion {
		return apperrors.ErrVersionConflictf("controller:" + c.ControllerID)
	}
	c.Version = expectedVersion + 1
	return s.putJSON(ctx, controllerKey(c.ControllerID), c)
}

func (s *BadgerStore) GetConfigRequest(ctx context.Context, requestID string) (*domain.ConfigRequest, error) {
	var r domain.ConfigRequest
	if err := s.getJSON(ctx, configRequestKey(requestID), &r); err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, apperrors.NotFound(apperrors.CodeConfigRequestNotFound, "config request not found")
		}
		return nil, err
	}
	return &r, nil
}

func (s *BadgerStore) ListConfigRequestsByState(ctx context.Context, state domain.ConfigRequestState) ([]*domain.ConfigRequest, error) {
	var out []*domain.ConfigRequest
	err := s.view(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("config-request/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r domain.ConfigRequest
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &r) }); err != nil {
				return err
			}
			if r.State == state {
				out = append(out, &r)
			}
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) ListOverlapping(ctx context.Context, deviceIDs []string, excludeRequestID string) ([]*domain.ConfigRequest, error) {
	want := make(map[string]struct{}, len(deviceIDs))
	for _, id := range deviceIDs {
		want[id] = struct{}{}
	}
	terminal := map[domain.ConfigRequestState]struct{}{
		domain.StateSucceeded: {}, domain.StateFailed: {}, domain.StateRolledBack: {}, domain.StateRejected: {},
	}

	var out []*domain.ConfigRequest
	err := s.view(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("config-request/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r domain.ConfigRequest
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &r) }); err != nil {
				return err
			}
			if r.RequestID == excludeRequestID {
				continue
			}
			if _, isTerminal := terminal[r.State]; isTerminal {
				continue
			}
			for _, d := range r.TargetDevices {
				if _, ok := want[d]; ok {
					out = append(out, &r)
					break
				}
			}
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) PutConfigRequest(ctx context.Context, r *domain.ConfigRequest, expectedVersion int64) error {
	existing, err := s.GetConfigRequest(ctx, r.RequestID)
	if err != nil {
		if appErr, ok := apperrors.IsAppError(err); !ok || appErr.Code != apperrors.CodeConfigRequestNotFound {
			return err
		}
		if expectedVersion != 0 {
			return apperrors.ErrVersionConflictf("config_request:" + r.RequestID)
		}
	} else if existing.Version != expectedVersion {
		return apperrors.ErrVersionConflictf("config_request:" + r.RequestID)
	}
	r.Version = expectedVersion + 1
	return s.putJSON(ctx, configRequestKey(r.RequestID), r)
}

func (s *BadgerStore) PutExecutionToken(ctx context.Context, t *domain.ExecutionToken) error {
	return s.putJSON(ctx, tokenKey(t.TokenID), t)
}

func (s *BadgerStore) GetExecutionToken(ctx context.Context, tokenID string) (*domain.ExecutionToken, error) {
	var t domain.ExecutionToken
	if err := s.getJSON(ctx, tokenKey(tokenID), &t); err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, apperrors.New(apperrors.CodeTokenInvalid, "execution token not found", 404)
		}
		return nil, err
	}
	return &t, nil
}

func (s *BadgerStore) ConsumeExecutionToken(ctx context.Context, tokenID string, at time.Time) (bool, error) {
	consumed := false
	err := s.withTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(tokenKey(tokenID))
		if err != nil {
			return err
		}
		var t domain.ExecutionToken
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &t) }); err != nil {
			return err
		}
		if t.ConsumedAt != nil || at.After(t.ExpiresAt) {
			return nil
		}
		t.ConsumedAt = &at
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		consumed = true
		return txn.Set(tokenKey(tokenID), b)
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	return consumed, err
}

func (s *BadgerStore) AppendEvent(ctx context.Context, e *domain.Event) error {
	return s.withTxn(ctx, func(txn *badger.Txn) error {
		seq, err := s.nextEventSeq(txn)
		if err != nil {
			return err
		}
		b, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return txn.Set(eventKey(seq), b)
	})
}

func (s *BadgerStore) nextEventSeq(txn *badger.Txn) (int64, error) {
	it := txn.NewIterator(badger.IteratorOptions{Reverse: true})
	defer it.Close()
	prefix := []byte("event/")
	seekKey := append(append([]byte{}, prefix...), 0xFF)
	it.Seek(seekKey)
	if it.ValidForPrefix(prefix) {
		key := string(it.Item().Key())
		n, err := strconv.ParseInt(strings.TrimPrefix(key, "event/"), 10, 64)
		if err == nil {
			return n + 1, nil
		}
	}
	return 1, nil
}

func (s *BadgerStore) ListEvents(ctx context.Context, eventType domain.EventType, limit int) ([]*domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*domain.Event
	err := s.view(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Reverse: true})
		defer it.Close()
		prefix := []byte("event/")
		seekKey := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			var e domain.Event
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &e) }); err != nil {
				return err
			}
			if eventType == "" || e.EventType == eventType {
				out = append(out, &e)
			}
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) AcquireLock(ctx context.Context, resourceKey, holderID string, ttl time.Duration) (*domain.Lock, error) {
	now := time.Now().UTC()
	var lock domain.Lock
	err := s.withTxn(ctx, func(txn *badger.Txn) error {
		var existing domain.Lock
		item, err := txn.Get(lockKey(resourceKey))
		if err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		if err == nil {
			if vErr := item.Value(func(v []byte) error { return json.Unmarshal(v, &existing) }); vErr != nil {
				return vErr
			}
			if existing.ExpiresAt.After(now) && existing.HolderID != holderID {
				return apperrors.New(apperrors.CodeLockHeld, "resource lock held by another holder: "+resourceKey, 409)
			}
		}
		lock = domain.Lock{ResourceKey: resourceKey, HolderID: holderID, AcquiredAt: now, ExpiresAt: now.Add(ttl), FencingToken: existing.FencingToken + 1}
		b, err := json.Marshal(lock)
		if err != nil {
			return err
		}
		return txn.Set(lockKey(resourceKey), b)
	})
	if err != nil {
		return nil, err
	}
	return &lock, nil
}

func (s *BadgerStore) ReleaseLock(ctx context.Context, resourceKey, holderID string, fencingToken int64) error {
	return s.withTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(lockKey(resourceKey))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return apperrors.New(apperrors.CodeFencingTokenStale, "lock not held: "+resourceKey, 409)
			}
			return err
		}
		var existing domain.Lock
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &existing) }); err != nil {
			return err
		}
		if existing.HolderID != holderID || existing.FencingToken != fencingToken {
			return apperrors.New(apperrors.CodeFencingTokenStale, "fencing token stale: "+resourceKey, 409)
		}
		// Keep the row, expired and unowned, so the next AcquireLock continues
		// the fencing-token sequence instead of restarting it at 1.
		existing.HolderID = ""
		existing.ExpiresAt = time.Now().UTC()
		b, err := json.Marshal(existing)
		if err != nil {
			return err
		}
		return txn.Set(lockKey(resourceKey), b)
	})
}

func (s *BadgerStore) GetLock(ctx context.Context, resourceKey string) (*domain.Lock, error) {
	var l domain.Lock
	if err := s.getJSON(ctx, lockKey(resourceKey), &l); err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}
