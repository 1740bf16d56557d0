package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pdsno.io/controller/internal/domain"
	"pdsno.io/controller/internal/nib"
)

// NIBDeviceExecutor is the local tier's Executor/Roller: it applies an
// approved configuration hash directly onto each target device's NIB
// record. The wire protocol to carry a change onto a physical device is
// out of scope; this adapter exercises the
// claim-check job/worker machinery against the one piece of device state
// this repository owns, the device's RunningConfigHash.
type NIBDeviceExecutor struct {
	store nib.Store
}

// NewNIBDeviceExecutor creates an executor bound to store.
func NewNIBDeviceExecutor(store nib.Store) *NIBDeviceExecutor {
	return &NIBDeviceExecutor{store: store}
}

// runningConfigHashAttr is the Device.Attributes key this executor uses to
// record the config hash currently applied to a device.
const runningConfigHashAttr = "running_config_hash"

// Apply stamps r.ConfigHash onto every target device, reporting per-device
// failure when the device record cannot be found or written.
func (e *NIBDeviceExecutor) Apply(ctx context.Context, r *domain.ConfigRequest) []domain.DeviceResult {
	hashes := make(map[string]string, len(r.TargetDevices))
	for _, id := range r.TargetDevices {
		hashes[id] = r.ConfigHash
	}
	return e.applyHashes(ctx, r.TargetDevices, hashes)
}

// Rollback restores each target device to the hash recorded for it in
// PreChangeSnapshot, captured by the worker the moment the request entered
// StateExecuting. A device missing from the snapshot (captured before it
// was a target, which should not happen) is reported as a failure rather
// than silently skipped.
func (e *NIBDeviceExecutor) Rollback(ctx context.Context, r *domain.ConfigRequest) []domain.DeviceResult {
	var hashes map[string]string
	if len(r.PreChangeSnapshot) > 0 {
		if err := json.Unmarshal(r.PreChangeSnapshot, &hashes); err != nil {
			results := make([]domain.DeviceResult, 0, len(r.TargetDevices))
			for _, id := range r.TargetDevices {
				results = append(results, domain.DeviceResult{DeviceID: id, Success: false,
					Error: fmt.Sprintf("unmarshal pre-change snapshot: %v", err)})
			}
			return results
		}
	}

	results := make([]domain.DeviceResult, 0, len(r.TargetDevices))
	missing := make([]string, 0)
	present := make([]string, 0, len(r.TargetDevices))
	for _, id := range r.TargetDevices {
		if _, ok := hashes[id]; ok {
			present = append(present, id)
		} else {
			missing = append(missing, id)
		}
	}
	for _, id := range missing {
		results = append(results, domain.DeviceResult{DeviceID: id, Success: false, Error: "no pre-change snapshot recorded for device"})
	}
	results = append(results, e.applyHashes(ctx, present, hashes)...)
	return results
}

func (e *NIBDeviceExecutor) applyHashes(ctx context.Context, deviceIDs []string, hashes map[string]string) []domain.DeviceResult {
	results := make([]domain.DeviceResult, 0, len(deviceIDs))
	for _, id := range deviceIDs {
		d, err := e.store.GetDevice(ctx, id)
		if err != nil {
			results = append(results, domain.DeviceResult{DeviceID: id, Success: false, Error: err.Error()})
			continue
		}
		if d.Attributes == nil {
			d.Attributes = make(map[string]string, 1)
		}
		d.Attributes[runningConfigHashAttr] = hashes[id]
		d.LastSeenAt = time.Now()
		if err := e.store.PutDevice(ctx, d, d.Version); err != nil {
			results = append(results, domain.DeviceResult{DeviceID: id, Success: false, Error: err.Error()})
			continue
		}
		results = append(results, domain.DeviceResult{DeviceID: id, Success: true})
	}
	return results
}
