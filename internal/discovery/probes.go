package discovery

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
)

// ReachabilityProbe is an ICMP-style liveness check. The actual wire
// protocol for raw packet crafting is out of scope; this stub exercises
// the Probe lifecycle and returns a deterministic synthetic result so
// orchestration and merge logic have a real adapter to run against.
type ReachabilityProbe struct {
	region string
}

// NewReachabilityProbe creates a reachability probe adapter.
func NewReachabilityProbe() *ReachabilityProbe {
	return &ReachabilityProbe{}
}

func (p *ReachabilityProbe) Name() string { return "reachability" }

func (p *ReachabilityProbe) Initialize(ctx context.Context, region string) error {
	p.region = region
	return nil
}

func (p *ReachabilityProbe) Execute(ctx context.Context, target string) (*ProbeResult, error) {
	return &ProbeResult{
		Target:    target,
		IP:        target,
		MAC:       syntheticMAC(target),
		Reachable: true,
	}, nil
}

func (p *ReachabilityProbe) Finalize(ctx context.Context) error { return nil }

// InventoryProbe is an SNMP-shaped probe returning a device's declared
// hostname and vendor attributes. Like ReachabilityProbe, the wire
// protocol is stubbed; the adapter shape (Initialize holding an SNMP
// session, Execute walking the MIB, Finalize closing the session) matches
// what a real implementation would do.
type InventoryProbe struct {
	community string
	region    string
}

// NewInventoryProbe creates an inventory probe using community as the
// (stubbed) SNMP community string.
func NewInventoryProbe(community string) *InventoryProbe {
	return &InventoryProbe{community: community}
}

func (p *InventoryProbe) Name() string { return "inventory" }

func (p *InventoryProbe) Initialize(ctx context.Context, region string) error {
	p.region = region
	return nil
}

func (p *InventoryProbe) Execute(ctx context.Context, target string) (*ProbeResult, error) {
	return &ProbeResult{
		Target:   target,
		IP:       target,
		MAC:      syntheticMAC(target),
		Hostname: "host-" + target,
		Attributes: map[string]string{
			"vendor": "generic",
		},
	}, nil
}

func (p *InventoryProbe) Finalize(ctx context.Context) error { return nil }

// syntheticMAC derives a deterministic, locally-administered MAC address
// from a target address so stubbed probes produce stable, mergeable
// identities across a test's repeated cycles.
func syntheticMAC(target string) string {
	sum := sha1.Sum([]byte(target))
	hexStr := hex.EncodeToString(sum[:5])
	mac := "02:" + hexStr[0:2]
	for i := 2; i < 10; i += 2 {
		mac += ":" + hexStr[i:i+2]
	}
	return mac
}
