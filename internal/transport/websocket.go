package transport

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pdsno.io/controller/internal/domain"
	"pdsno.io/controller/internal/pkg/logger"
)

// OperatorFeed rebroadcasts approval-engine state transitions to connected
// operator dashboards over a websocket. It is outside the core transport
// fabric but rides on the same domain events the NIB appends.
type OperatorFeed struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	conns    map[*websocket.Conn]struct{}
}

// NewOperatorFeed creates an operator feed accepting same-origin and
// explicitly allowed cross-origin upgrade requests.
func NewOperatorFeed(checkOrigin func(r *http.Request) bool) *OperatorFeed {
	return &OperatorFeed{
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		conns:    make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the connection and keeps it registered until it closes.
func (f *OperatorFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("operator feed upgrade failed", zap.Error(err))
		return
	}

	f.mu.Lock()
	f.conns[conn] = struct{}{}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.conns, conn)
		f.mu.Unlock()
		conn.Close()
	}()

	// Drain and discard any client-sent frames; this feed is broadcast-only.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends event as JSON to every connected operator client.
func (f *OperatorFeed) Broadcast(event *domain.Event) {
	body, err := json.Marshal(event)
	if err != nil {
		logger.Warn("operator feed marshal failed", zap.Error(err))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.conns {
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			logger.Debug("operator feed write failed, dropping connection", zap.Error(err))
			conn.Close()
			delete(f.conns, conn)
		}
	}
}
