package modules

import (
	"context"

	"github.com/riverqueue/river"

	"pdsno.io/controller/internal/admission"
	"pdsno.io/controller/internal/api/handlers"
)

// AdmissionModule wires the bootstrap-token/challenge-response admission
// protocol that lets a candidate controller join the hierarchy.
type AdmissionModule struct {
	srv *admission.Server
}

// NewAdmissionModule creates the admission module from shared
// infrastructure. The issuer identity and signing key are this
// controller's own: a newly-admitted child trusts whichever parent issued
// its certificate, so the issuer here is always "self".
func NewAdmissionModule(infra *Infrastructure) *AdmissionModule {
	issuerKey := admission.IssuerKeyFromRoot(infra.RootKey)
	srv := admission.NewServer(
		infra.Store,
		infra.Config.Controller.ControllerID,
		issuerKey,
		[]byte(infra.Config.Admission.BootstrapSecret),
		infra.Config.Admission.ChallengeTTL,
		infra.Config.Admission.CertificateTTL,
		infra.Config.Admission.FreshnessWindow,
	)
	return &AdmissionModule{srv: srv}
}

func (m *AdmissionModule) Name() string { return "admission" }

func (m *AdmissionModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.AdmissionSrv = m.srv
}

func (m *AdmissionModule) RegisterWorkers(_ *river.Workers) {}

func (m *AdmissionModule) Shutdown(context.Context) error { return nil }
