// Package handlers implements the HTTP surface of a PDSNO controller: the
// controller-to-controller message endpoint (/message/:type) and the
// operator-dashboard REST/websocket surface, both backed by the same
// manual-DI Server struct.
//
// Import Path: pdsno.io/controller/internal/api/handlers
package handlers

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"pdsno.io/controller/internal/admission"
	"pdsno.io/controller/internal/api/middleware"
	"pdsno.io/controller/internal/approval"
	"pdsno.io/controller/internal/discovery"
	"pdsno.io/controller/internal/domain"
	"pdsno.io/controller/internal/envelope"
	"pdsno.io/controller/internal/nib"
	"pdsno.io/controller/internal/transport"
)

// OperatorCredential is one entry in the static operator credential list
// that gates dashboard login. A handful of named operators with flat
// roles covers the human-approval surface without a full user-management
// subsystem nothing here asks for.
type OperatorCredential struct {
	OperatorID   string
	Username     string
	PasswordHash string // bcrypt hash
	Roles        []string
}

// Server implements every HTTP handler PDSNO exposes, both the
// controller-to-controller message endpoint and the operator dashboard
// surface.
type Server struct {
	store nib.Store

	selfID   string
	selfRole domain.ControllerRole
	region   string

	authenticator *envelope.Authenticator
	admissionSrv  *admission.Server
	engine        *approval.Engine
	orchestrator  *discovery.Orchestrator
	merger        *discovery.Merger
	deltaTracker  *discovery.DeltaTracker
	dispatcher    transport.Dispatcher

	operatorFeed    *transport.OperatorFeed
	eventDispatcher *domain.EventDispatcher

	jwtCfg    middleware.JWTConfig
	operators []OperatorCredential

	pool *pgxpool.Pool // readiness check only; nil when running on the Badger backend
}

// ServerDeps holds all dependencies for creating a Server (manual DI, no
// Wire/Dig).
type ServerDeps struct {
	Store nib.Store

	SelfID   string
	SelfRole domain.ControllerRole
	Region   string

	Authenticator *envelope.Authenticator
	AdmissionSrv  *admission.Server
	Engine        *approval.Engine
	Orchestrator  *discovery.Orchestrator
	Merger        *discovery.Merger
	DeltaTracker  *discovery.DeltaTracker
	Dispatcher    transport.Dispatcher

	OperatorFeed    *transport.OperatorFeed
	EventDispatcher *domain.EventDispatcher

	JWTCfg    middleware.JWTConfig
	Operators []OperatorCredential

	Pool *pgxpool.Pool
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		store:           deps.Store,
		selfID:          deps.SelfID,
		selfRole:        deps.SelfRole,
		region:          deps.Region,
		authenticator:   deps.Authenticator,
		admissionSrv:    deps.AdmissionSrv,
		engine:          deps.Engine,
		orchestrator:    deps.Orchestrator,
		merger:          deps.Merger,
		deltaTracker:    deps.DeltaTracker,
		dispatcher:      deps.Dispatcher,
		operatorFeed:    deps.OperatorFeed,
		eventDispatcher: deps.EventDispatcher,
		jwtCfg:          deps.JWTCfg,
		operators:       deps.Operators,
		pool:            deps.Pool,
	}
}

// operatorFromCtx extracts the authenticated operator ID from the request
// context.
func operatorFromCtx(c interface{ GetString(string) string }) string {
	if id := c.GetString("operator_id"); id != "" {
		return id
	}
	return "anonymous"
}
