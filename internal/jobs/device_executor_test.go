package jobs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"pdsno.io/controller/internal/domain"
	"pdsno.io/controller/internal/nib"
)

func newTestStore(t *testing.T) *nib.BadgerStore {
	t.Helper()
	s, err := nib.NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNIBDeviceExecutor_ApplyStampsConfigHash(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.PutDevice(ctx, &domain.Device{DeviceID: "dev-1", MAC: "aa:bb:cc:dd:ee:01"}, 0))
	require.NoError(t, store.PutDevice(ctx, &domain.Device{DeviceID: "dev-2", MAC: "aa:bb:cc:dd:ee:02"}, 0))

	exec := NewNIBDeviceExecutor(store)
	r := &domain.ConfigRequest{RequestID: "req-1", ConfigHash: "new-hash", TargetDevices: []string{"dev-1", "dev-2"}}

	results := exec.Apply(ctx, r)
	require.Len(t, results, 2)
	for _, res := range results {
		require.True(t, res.Success)
	}

	d1, err := store.GetDevice(ctx, "dev-1")
	require.NoError(t, err)
	require.Equal(t, "new-hash", d1.Attributes[runningConfigHashAttr])
}

func TestNIBDeviceExecutor_RollbackRestoresPerDeviceHash(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.PutDevice(ctx, &domain.Device{DeviceID: "dev-1", MAC: "aa:bb:cc:dd:ee:03",
		Attributes: map[string]string{runningConfigHashAttr: "new-hash"}}, 0))
	require.NoError(t, store.PutDevice(ctx, &domain.Device{DeviceID: "dev-2", MAC: "aa:bb:cc:dd:ee:04",
		Attributes: map[string]string{runningConfigHashAttr: "new-hash"}}, 0))

	snapshot, err := json.Marshal(map[string]string{"dev-1": "old-hash-1", "dev-2": "old-hash-2"})
	require.NoError(t, err)

	exec := NewNIBDeviceExecutor(store)
	r := &domain.ConfigRequest{RequestID: "req-1", TargetDevices: []string{"dev-1", "dev-2"}, PreChangeSnapshot: snapshot}

	results := exec.Rollback(ctx, r)
	require.Len(t, results, 2)
	for _, res := range results {
		require.True(t, res.Success)
	}

	d1, err := store.GetDevice(ctx, "dev-1")
	require.NoError(t, err)
	require.Equal(t, "old-hash-1", d1.Attributes[runningConfigHashAttr])

	d2, err := store.GetDevice(ctx, "dev-2")
	require.NoError(t, err)
	require.Equal(t, "old-hash-2", d2.Attributes[runningConfigHashAttr])
}

func TestNIBDeviceExecutor_RollbackReportsMissingSnapshotEntry(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.PutDevice(ctx, &domain.Device{DeviceID: "dev-1", MAC: "aa:bb:cc:dd:ee:05"}, 0))

	snapshot, err := json.Marshal(map[string]string{"dev-other": "old-hash"})
	require.NoError(t, err)

	exec := NewNIBDeviceExecutor(store)
	r := &domain.ConfigRequest{RequestID: "req-1", TargetDevices: []string{"dev-1"}, PreChangeSnapshot: snapshot}

	results := exec.Rollback(ctx, r)
	require.Len(t, results, 1)
	require.False(t, results[0].Success)
}
