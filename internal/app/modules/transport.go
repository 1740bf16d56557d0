package modules

import (
	"context"
	"net/http"

	"github.com/riverqueue/river"

	"pdsno.io/controller/internal/api/handlers"
	"pdsno.io/controller/internal/domain"
	"pdsno.io/controller/internal/transport"
)

// TransportModule wires the message carrier to this controller's parent,
// the operator's live event feed, and the in-process event dispatcher
// that bridges NIB writes to that feed.
type TransportModule struct {
	dispatcher      transport.Dispatcher
	operatorFeed    *transport.OperatorFeed
	eventDispatcher *domain.EventDispatcher
}

// NewTransportModule creates the transport module. Every tier but global
// has a parent endpoint to dispatch upstream messages to; global has no
// parent and never dispatches outbound, only receives.
func NewTransportModule(infra *Infrastructure) *TransportModule {
	var dispatcher transport.Dispatcher
	if infra.Config.Controller.ParentEndpoint != "" {
		dispatcher = transport.NewHTTPDispatcher(transport.HTTPConfig{
			BaseURL:        infra.Config.Controller.ParentEndpoint,
			RequestTimeout: infra.Config.Transport.RequestTimeout,
			MaxAttempts:    infra.Config.Transport.RetryMaxAttempts,
			BaseDelay:      infra.Config.Transport.RetryBaseDelay,
		})
	}

	operatorFeed := transport.NewOperatorFeed(func(r *http.Request) bool { return true })

	eventDispatcher := domain.NewEventDispatcher()
	broadcast := func(ctx context.Context, event *domain.Event) error {
		operatorFeed.Broadcast(event)
		return nil
	}
	for _, eventType := range []domain.EventType{
		domain.EventControllerValidated,
		domain.EventControllerRevoked,
		domain.EventValidationFailed,
		domain.EventMACConflict,
		domain.EventDiscoveryReportAcked,
		domain.EventConfigStateChanged,
		domain.EventExecutionSucceeded,
		domain.EventExecutionFailed,
		domain.EventRollbackApplied,
		domain.EventDeviceDegraded,
		domain.EventDegradedCleared,
		domain.EventLockAcquired,
		domain.EventLockReleased,
	} {
		eventDispatcher.Register(eventType, broadcast)
	}

	return &TransportModule{
		dispatcher:      dispatcher,
		operatorFeed:    operatorFeed,
		eventDispatcher: eventDispatcher,
	}
}

func (m *TransportModule) Name() string { return "transport" }

func (m *TransportModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.Dispatcher = m.dispatcher
	deps.OperatorFeed = m.operatorFeed
	deps.EventDispatcher = m.eventDispatcher
}

func (m *TransportModule) RegisterWorkers(_ *river.Workers) {}

func (m *TransportModule) Shutdown(context.Context) error { return nil }
