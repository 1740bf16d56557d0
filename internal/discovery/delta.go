package discovery

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"pdsno.io/controller/internal/domain"
	"pdsno.io/controller/internal/nib"
	"pdsno.io/controller/internal/pkg/logger"
)

// DeltaTracker detects new/updated/inactive devices across discovery
// cycles, damping transient misses: a device absent from one cycle is not
// marked inactive until it has been missing for window consecutive
// cycles, avoiding flapping on a single dropped probe.
type DeltaTracker struct {
	store  nib.Store
	window int

	mu     sync.Mutex
	missed map[string]int // deviceID -> consecutive missed cycles
}

// NewDeltaTracker creates a tracker that tolerates window-1 consecutive
// misses before marking a device inactive.
func NewDeltaTracker(store nib.Store, window int) *DeltaTracker {
	if window < 1 {
		window = 1
	}
	return &DeltaTracker{store: store, window: window, missed: make(map[string]int)}
}

// Reconcile compares seenDeviceIDs (devices observed this cycle) against
// the region's known inventory, marking consistently-absent devices
// inactive and clearing the miss counter for everything seen.
func (t *DeltaTracker) Reconcile(ctx context.Context, region string, seenDeviceIDs map[string]bool) error {
	known, err := t.store.ListDevices(ctx, region)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, d := range known {
		if seenDeviceIDs[d.DeviceID] {
			delete(t.missed, d.DeviceID)
			continue
		}
		if d.Status == domain.DeviceStatusInactive {
			continue
		}

		t.missed[d.DeviceID]++
		if t.missed[d.DeviceID] < t.window {
			logger.Debug("device missed this cycle, below flakiness threshold",
				zap.String("device_id", d.DeviceID), zap.Int("missed", t.missed[d.DeviceID]), zap.Int("window", t.window))
			continue
		}

		updated := d.Clone()
		updated.Status = domain.DeviceStatusInactive
		updated.LastSeenAt = time.Now()
		if err := t.store.PutDevice(ctx, updated, d.Version); err != nil {
			return err
		}
		delete(t.missed, d.DeviceID)
		logger.Info("device marked inactive after sustained absence",
			zap.String("device_id", d.DeviceID), zap.String("region", region))
	}

	return nil
}
