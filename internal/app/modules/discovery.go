package modules

import (
	"context"

	"github.com/riverqueue/river"

	"pdsno.io/controller/internal/api/handlers"
	"pdsno.io/controller/internal/discovery"
	"pdsno.io/controller/internal/jobs"
)

// DiscoveryModule wires the probe/merge/reconcile pipeline: an
// Orchestrator fanning probes out across the discovery worker pool, a
// Merger upserting results into the NIB, and a DeltaTracker damping
// transient probe misses before marking a device inactive.
type DiscoveryModule struct {
	infra        *Infrastructure
	orchestrator *discovery.Orchestrator
	merger       *discovery.Merger
	deltaTracker *discovery.DeltaTracker
}

// NewDiscoveryModule creates the discovery module. The inventory probe's
// SNMP community string is not yet its own config knob; "public" is the
// conventional read-only default and is only exercised against devices a
// deployment has already opted into discovering.
func NewDiscoveryModule(infra *Infrastructure) *DiscoveryModule {
	probes := []discovery.Probe{
		discovery.NewReachabilityProbe(),
		discovery.NewInventoryProbe("public"),
	}
	orchestrator := discovery.NewOrchestrator(infra.Pools.Discovery, probes, len(infra.Config.Discovery.Targets)+1)
	merger := discovery.NewMerger(infra.Store, infra.Config.Controller.ControllerID)
	deltaTracker := discovery.NewDeltaTracker(infra.Store, infra.Config.Discovery.FlakinessWindow)

	return &DiscoveryModule{
		infra:        infra,
		orchestrator: orchestrator,
		merger:       merger,
		deltaTracker: deltaTracker,
	}
}

func (m *DiscoveryModule) Name() string { return "discovery" }

func (m *DiscoveryModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.Orchestrator = m.orchestrator
	deps.Merger = m.merger
	deps.DeltaTracker = m.deltaTracker
}

func (m *DiscoveryModule) RegisterWorkers(workers *river.Workers) {
	if workers == nil || m == nil {
		return
	}
	river.AddWorker(workers, jobs.NewDiscoveryCycleWorker(
		m.orchestrator, m.merger, m.deltaTracker,
		m.infra.Config.Controller.Region, m.infra.Config.Discovery.Targets,
	))
}

func (m *DiscoveryModule) Shutdown(context.Context) error { return nil }
