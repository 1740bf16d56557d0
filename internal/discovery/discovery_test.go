package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"pdsno.io/controller/internal/domain"
	"pdsno.io/controller/internal/nib"
	"pdsno.io/controller/internal/pkg/logger"
	"pdsno.io/controller/internal/pkg/worker"
)

func init() {
	_ = logger.Init("error", "json")
}

func TestOrchestrator_RunMergesDiscoveredDevices(t *testing.T) {
	ctx := context.Background()
	pools, err := worker.NewPools(ctx, worker.DefaultPoolConfig())
	require.NoError(t, err)
	defer pools.Shutdown()

	store, err := nib.NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	orch := NewOrchestrator(pools.Discovery, []Probe{NewReachabilityProbe()}, 8)
	results, err := orch.Run(ctx, "us-west", []string{"10.0.0.1", "10.0.0.2"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	merger := NewMerger(store, "local-1")
	mergeResult, err := merger.Merge(ctx, "us-west", results)
	require.NoError(t, err)
	require.Len(t, mergeResult.Created, 2)
	require.Empty(t, mergeResult.Conflicts)

	devices, err := store.ListDevices(ctx, "us-west")
	require.NoError(t, err)
	require.Len(t, devices, 2)
}

func TestMerger_DetectsCrossRegionMACConflict(t *testing.T) {
	ctx := context.Background()
	store, err := nib.NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	existing := &domain.Device{DeviceID: "dev-1", Region: "us-east", MAC: "aa:bb:cc:dd:ee:ff", Status: domain.DeviceStatusActive}
	require.NoError(t, store.PutDevice(ctx, existing, 0))

	merger := NewMerger(store, "local-1")
	result, err := merger.Merge(ctx, "us-west", []*ProbeResult{{MAC: "aa:bb:cc:dd:ee:ff", IP: "10.0.0.5"}})
	require.NoError(t, err)
	require.Empty(t, result.Created)
	require.Empty(t, result.Updated)
	require.Equal(t, []string{"aa:bb:cc:dd:ee:ff"}, result.Conflicts)

	events, err := store.ListEvents(ctx, domain.EventMACConflict, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestDeltaTracker_DampsSingleMissedCycle(t *testing.T) {
	ctx := context.Background()
	store, err := nib.NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	d := &domain.Device{DeviceID: "dev-1", Region: "us-west", MAC: "aa:bb:cc:dd:ee:ff", Status: domain.DeviceStatusActive}
	require.NoError(t, store.PutDevice(ctx, d, 0))

	tracker := NewDeltaTracker(store, 2)

	require.NoError(t, tracker.Reconcile(ctx, "us-west", map[string]bool{}))
	got, err := store.GetDevice(ctx, "dev-1")
	require.NoError(t, err)
	require.Equal(t, domain.DeviceStatusActive, got.Status, "single miss within the flakiness window must not flip status")

	require.NoError(t, tracker.Reconcile(ctx, "us-west", map[string]bool{}))
	got, err = store.GetDevice(ctx, "dev-1")
	require.NoError(t, err)
	require.Equal(t, domain.DeviceStatusInactive, got.Status, "second consecutive miss at the window boundary must mark inactive")
}

func TestDeltaTracker_SeenClearsMissCounter(t *testing.T) {
	ctx := context.Background()
	store, err := nib.NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	d := &domain.Device{DeviceID: "dev-1", Region: "us-west", MAC: "aa:bb:cc:dd:ee:ff", Status: domain.DeviceStatusActive}
	require.NoError(t, store.PutDevice(ctx, d, 0))

	tracker := NewDeltaTracker(store, 2)
	require.NoError(t, tracker.Reconcile(ctx, "us-west", map[string]bool{}))
	require.NoError(t, tracker.Reconcile(ctx, "us-west", map[string]bool{"dev-1": true}))
	require.NoError(t, tracker.Reconcile(ctx, "us-west", map[string]bool{}))

	got, err := store.GetDevice(ctx, "dev-1")
	require.NoError(t, err)
	require.Equal(t, domain.DeviceStatusActive, got.Status, "a seen cycle resets the miss counter")
}

func TestProbeLifecycle_EnforcesOrder(t *testing.T) {
	ctx := context.Background()
	g := newGuardedProbe(NewReachabilityProbe())

	_, err := g.execute(ctx, "10.0.0.1")
	require.Error(t, err)
	var lifecycleErr *LifecycleError
	require.ErrorAs(t, err, &lifecycleErr)

	require.NoError(t, g.initialize(ctx, "us-west"))
	require.Error(t, g.initialize(ctx, "us-west"), "re-initializing an already-initialized probe must fail")

	_, err = g.execute(ctx, "10.0.0.1")
	require.NoError(t, err)

	require.NoError(t, g.finalize(ctx))
	_, err = g.execute(ctx, "10.0.0.1")
	require.Error(t, err, "executing after finalize must fail")
}
