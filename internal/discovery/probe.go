// Package discovery implements the probe-driven device discovery
// framework: a pluggable probe interface with an enforced
// Initialize/Execute/Finalize lifecycle, concurrent orchestration over the
// Discovery worker pool, MAC-based device merge, and flakiness-damped
// delta detection.
package discovery

import (
	"context"
	"fmt"
)

// ProbeResult is one target's discovery outcome.
type ProbeResult struct {
	Target     string
	MAC        string
	IP         string
	Hostname   string
	Reachable  bool
	Attributes map[string]string
}

// Probe is the pluggable unit of discovery work. Implementations must call
// their methods in strict Initialize -> Execute (one or more times) ->
// Finalize order; the orchestrator enforces this and stub implementations
// should assume it is enforced rather than re-checking it themselves.
type Probe interface {
	// Name identifies the probe for logging and metrics.
	Name() string
	// Initialize prepares the probe for a discovery cycle against region.
	Initialize(ctx context.Context, region string) error
	// Execute probes a single target address.
	Execute(ctx context.Context, target string) (*ProbeResult, error)
	// Finalize releases any resources acquired in Initialize.
	Finalize(ctx context.Context) error
}

// probeState enforces the lifecycle order documented on Probe.
type probeState int

const (
	stateNew probeState = iota
	stateInitialized
	stateFinalized
)

// LifecycleError reports a probe method called out of order.
type LifecycleError struct {
	Probe  string
	Method string
	State  string
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("probe %s: %s called while in state %s", e.Probe, e.Method, e.State)
}

func (s probeState) String() string {
	switch s {
	case stateNew:
		return "new"
	case stateInitialized:
		return "initialized"
	case stateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// guardedProbe wraps a Probe with lifecycle enforcement, used by the
// orchestrator so adapter authors never need to reimplement the state
// check themselves.
type guardedProbe struct {
	Probe
	state probeState
}

func newGuardedProbe(p Probe) *guardedProbe {
	return &guardedProbe{Probe: p, state: stateNew}
}

func (g *guardedProbe) initialize(ctx context.Context, region string) error {
	if g.state != stateNew {
		return &LifecycleError{Probe: g.Name(), Method: "Initialize", State: g.state.String()}
	}
	if err := g.Probe.Initialize(ctx, region); err != nil {
		return err
	}
	g.state = stateInitialized
	return nil
}

func (g *guardedProbe) execute(ctx context.Context, target string) (*ProbeResult, error) {
	if g.state != stateInitialized {
		return nil, &LifecycleError{Probe: g.Name(), Method: "Execute", State: g.state.String()}
	}
	return g.Probe.Execute(ctx, target)
}

func (g *guardedProbe) finalize(ctx context.Context) error {
	if g.state != stateInitialized {
		return &LifecycleError{Probe: g.Name(), Method: "Finalize", State: g.state.String()}
	}
	if err := g.Probe.Finalize(ctx); err != nil {
		return err
	}
	g.state = stateFinalized
	return nil
}
