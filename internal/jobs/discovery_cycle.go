package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"pdsno.io/controller/internal/discovery"
	"pdsno.io/controller/internal/pkg/logger"
)

// DiscoveryCycleArgs carries no state: the worker always runs the
// controller's configured target list for its own region.
type DiscoveryCycleArgs struct{}

// Kind returns the job kind identifier for a periodic discovery cycle.
func (DiscoveryCycleArgs) Kind() string { return "discovery_cycle" }

// InsertOpts returns default insert options for discovery cycle jobs: a
// single in-flight cycle at a time, since overlapping cycles would race on
// DeltaTracker's missed-cycle counters.
func (DiscoveryCycleArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       "discovery",
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: 1 * time.Minute,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// DiscoveryCycleWorker runs one probe/merge/reconcile cycle over a fixed
// region and target list.
type DiscoveryCycleWorker struct {
	river.WorkerDefaults[DiscoveryCycleArgs]
	orchestrator *discovery.Orchestrator
	merger       *discovery.Merger
	deltaTracker *discovery.DeltaTracker
	region       string
	targets      []string
}

// NewDiscoveryCycleWorker creates a worker that probes targets in region on
// each invocation.
func NewDiscoveryCycleWorker(orchestrator *discovery.Orchestrator, merger *discovery.Merger, deltaTracker *discovery.DeltaTracker, region string, targets []string) *DiscoveryCycleWorker {
	return &DiscoveryCycleWorker{
		orchestrator: orchestrator,
		merger:       merger,
		deltaTracker: deltaTracker,
		region:       region,
		targets:      targets,
	}
}

// Work probes every configured target, merges results into the NIB, and
// reconciles the region's inventory against what was seen this cycle.
func (w *DiscoveryCycleWorker) Work(ctx context.Context, job *river.Job[DiscoveryCycleArgs]) error {
	if len(w.targets) == 0 {
		logger.Debug("discovery cycle has no configured targets, skipping")
		return nil
	}

	results, err := w.orchestrator.Run(ctx, w.region, w.targets)
	if err != nil {
		return fmt.Errorf("run discovery cycle: %w", err)
	}

	merged, err := w.merger.Merge(ctx, w.region, results)
	if err != nil {
		return fmt.Errorf("merge discovery results: %w", err)
	}

	seen := make(map[string]bool, len(merged.Created)+len(merged.Updated))
	for _, id := range merged.Created {
		seen[id] = true
	}
	for _, id := range merged.Updated {
		seen[id] = true
	}
	if err := w.deltaTracker.Reconcile(ctx, w.region, seen); err != nil {
		return fmt.Errorf("reconcile discovery inventory: %w", err)
	}

	logger.Info("discovery cycle complete",
		zap.String("region", w.region),
		zap.Int("probed", len(results)),
		zap.Int("created", len(merged.Created)),
		zap.Int("updated", len(merged.Updated)),
		zap.Int("conflicts", len(merged.Conflicts)),
	)
	return nil
}
