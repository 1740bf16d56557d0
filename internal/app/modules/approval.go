package modules

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"

	"pdsno.io/controller/internal/api/handlers"
	"pdsno.io/controller/internal/approval"
	"pdsno.io/controller/internal/jobs"
)

// ApprovalModule wires the tiered configuration-approval state machine:
// sensitivity routing, the atomic approve-and-enqueue writer, and the
// River workers that apply or roll back an approved change.
type ApprovalModule struct {
	infra    *Infrastructure
	engine   *approval.Engine
	executor *jobs.NIBDeviceExecutor
	atomic   *approval.AtomicWriter
}

// NewApprovalModule creates the approval module. AtomicWriter's pgx
// transaction requires the Postgres backend; on a Badger-backed local
// controller it is still constructed (with a nil pool/riverClient) so
// Engine's shape is uniform across tiers, but Engine.Approve is expected
// to be exercised only on regional/global controllers in that
// configuration — a local tier forwards proposals to its regional parent
// rather than approving them itself.
func NewApprovalModule(infra *Infrastructure) (*ApprovalModule, error) {
	if infra == nil || infra.Store == nil {
		return nil, fmt.Errorf("approval module requires a NIB store")
	}

	router := approval.NewRouter(infra.Config.Approval.HighSensitivityForwardsToGlobal)

	var atomicWriter *approval.AtomicWriter
	if infra.DB != nil {
		atomicWriter = approval.NewAtomicWriter(infra.DB.Pool, infra.RiverClient)
	} else {
		atomicWriter = approval.NewAtomicWriter(nil, nil)
	}

	engine := approval.NewEngine(infra.Store, router, atomicWriter)
	engine.RootKey = infra.RootKey
	engine.IssuerID = infra.Config.Controller.ControllerID
	engine.ExecutionTokenTTL = infra.Config.Approval.ExecutionTokenTTL

	return &ApprovalModule{
		infra:    infra,
		engine:   engine,
		executor: jobs.NewNIBDeviceExecutor(infra.Store),
		atomic:   atomicWriter,
	}, nil
}

func (m *ApprovalModule) Name() string { return "approval" }

func (m *ApprovalModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.Engine = m.engine
}

func (m *ApprovalModule) RegisterWorkers(workers *river.Workers) {
	if workers == nil || m == nil {
		return
	}
	river.AddWorker(workers, jobs.NewExecuteConfigWorker(m.infra.Store, m.executor, m.atomic, m.infra.RootKey, m.infra.Config.Controller.ControllerID))
	river.AddWorker(workers, jobs.NewRollbackConfigWorker(m.infra.Store, m.executor))
}

func (m *ApprovalModule) Shutdown(context.Context) error { return nil }
