package nib

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pdsno.io/controller/internal/domain"
)

func newTestBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerStore_DeviceRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestBadgerStore(t)

	d := &domain.Device{DeviceID: "dev-1", Region: "us-west", MAC: "aa:bb:cc:dd:ee:ff", Status: domain.DeviceStatusDiscovered}
	require.NoError(t, s.PutDevice(ctx, d, 0))
	require.Equal(t, int64(1), d.Version)

	got, err := s.GetDevice(ctx, "dev-1")
	require.NoError(t, err)
	require.Equal(t, "us-west", got.Region)

	byMAC, err := s.GetDeviceByMAC(ctx, "aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	require.Equal(t, "dev-1", byMAC.DeviceID)
}

func TestBadgerStore_PutDevice_VersionConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestBadgerStore(t)

	d := &domain.Device{DeviceID: "dev-1", MAC: "aa:bb:cc:dd:ee:ff"}
	require.NoError(t, s.PutDevice(ctx, d, 0))

	stale := &domain.Device{DeviceID: "dev-1", MAC: "aa:bb:cc:dd:ee:ff"}
	err := s.PutDevice(ctx, stale, 0)
	require.Error(t, err)
}

func TestBadgerStore_LockAcquireRelease(t *testing.T) {
	ctx := context.Background()
	s := newTestBadgerStore(t)

	lock, err := s.AcquireLock(ctx, "device:dev-1", "controller-a", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), lock.FencingToken)

	_, err = s.AcquireLock(ctx, "device:dev-1", "controller-b", time.Minute)
	require.Error(t, err)

	require.NoError(t, s.ReleaseLock(ctx, "device:dev-1", "controller-a", lock.FencingToken))

	lock2, err := s.AcquireLock(ctx, "device:dev-1", "controller-b", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(2), lock2.FencingToken)
}

func TestBadgerStore_ExecutionTokenConsume(t *testing.T) {
	ctx := context.Background()
	s := newTestBadgerStore(t)

	tok := &domain.ExecutionToken{TokenID: "tok-1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, s.PutExecutionToken(ctx, tok))

	ok, err := s.ConsumeExecutionToken(ctx, "tok-1", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.ConsumeExecutionToken(ctx, "tok-1", time.Now())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBadgerStore_EventAppendAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestBadgerStore(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendEvent(ctx, &domain.Event{
			EventID:   "evt-" + string(rune('a'+i)),
			EventType: domain.EventDeviceDegraded,
			Timestamp: time.Now(),
		}))
	}

	events, err := s.ListEvents(ctx, domain.EventDeviceDegraded, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
}
