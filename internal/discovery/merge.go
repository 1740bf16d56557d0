package discovery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pdsno.io/controller/internal/domain"
	"pdsno.io/controller/internal/nib"
	apperrors "pdsno.io/controller/internal/pkg/errors"
	"pdsno.io/controller/internal/pkg/logger"
)

// Merger reconciles probe results into the NIB's device inventory,
// detecting MAC collisions across regions.
type Merger struct {
	Store    nib.Store
	ActorID  string
}

// NewMerger creates a device merger that attributes its writes to actorID
// (the local controller performing this discovery cycle).
func NewMerger(store nib.Store, actorID string) *Merger {
	return &Merger{Store: store, ActorID: actorID}
}

// MergeResult summarizes one cycle's merge outcome.
type MergeResult struct {
	Created   []string
	Updated   []string
	Conflicts []string
}

// Merge upserts each probe result as a device, keyed by MAC. A MAC already
// assigned to a device in a different region is a conflict: it is logged,
// an EventMACConflict is appended, and the device is left untouched —
// identity collisions are never silently resolved.
func (m *Merger) Merge(ctx context.Context, region string, results []*ProbeResult) (*MergeResult, error) {
	out := &MergeResult{}
	now := time.Now()

	for _, r := range results {
		if r.MAC == "" {
			continue
		}

		existing, err := m.Store.GetDeviceByMAC(ctx, r.MAC)
		if err != nil {
			if appErr, ok := apperrors.IsAppError(err); !ok || appErr.Code != apperrors.CodeDeviceNotFound {
				return out, err
			}
			existing = nil
		}

		if existing != nil && existing.Region != region {
			out.Conflicts = append(out.Conflicts, r.MAC)
			if err := m.Store.AppendEvent(ctx, &domain.Event{
				EventID:   uuid.NewString(),
				EventType: domain.EventMACConflict,
				ActorID:   m.ActorID,
				Timestamp: now,
			}); err != nil {
				return out, err
			}
			logger.Warn("MAC conflict across regions, device left untouched",
				zap.String("mac", r.MAC), zap.String("reporting_region", region), zap.String("owning_region", existing.Region))
			continue
		}

		if existing != nil {
			updated := existing.Clone()
			updated.IP = r.IP
			updated.Hostname = r.Hostname
			updated.Status = domain.DeviceStatusActive
			updated.LastSeenBy = m.ActorID
			updated.LastSeenAt = now
			if updated.Attributes == nil && len(r.Attributes) > 0 {
				updated.Attributes = map[string]string{}
			}
			for k, v := range r.Attributes {
				updated.Attributes[k] = v
			}
			if err := m.Store.PutDevice(ctx, updated, existing.Version); err != nil {
				return out, err
			}
			out.Updated = append(out.Updated, updated.DeviceID)
			continue
		}

		d := &domain.Device{
			DeviceID:   uuid.NewString(),
			Region:     region,
			MAC:        r.MAC,
			IP:         r.IP,
			Hostname:   r.Hostname,
			Status:     domain.DeviceStatusDiscovered,
			LastSeenBy: m.ActorID,
			LastSeenAt: now,
			Attributes: r.Attributes,
		}
		if err := m.Store.PutDevice(ctx, d, 0); err != nil {
			return out, err
		}
		out.Created = append(out.Created, d.DeviceID)
	}

	return out, nil
}
