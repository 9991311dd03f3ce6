package rpc

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jangala-dev/daqd/internal/registry"

	"github.com/jangala-dev/daqd/bus"
)

// moduleHealth is one device's last-observed status (spec.md's Health
// subsystem supplement — not named in the distilled scan/archive spec, but
// present across the original system's module-status sweep).
type moduleHealth struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	OK       bool      `json:"ok"`
	LastSeen time.Time `json:"last_seen"`
	Detail   string    `json:"detail,omitempty"`
}

// healthTracker periodically re-reads every registered device's readable
// or position-bearing trait to confirm it still answers, the way the
// original's module heartbeat loop did. A device that implements neither
// trait is reported ok=true without a live probe — registration itself is
// the only signal available.
type healthTracker struct {
	reg *registry.Registry

	mu       sync.RWMutex
	statuses map[string]moduleHealth
}

func newHealthTracker(reg *registry.Registry) *healthTracker {
	return &healthTracker{reg: reg, statuses: map[string]moduleHealth{}}
}

// sweep re-probes every registered device and, if pub is non-nil, publishes
// the resulting snapshot on topicHealth for websocket subscribers.
func (h *healthTracker) sweep(pub *bus.Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, handle := range h.reg.List() {
		status := moduleHealth{ID: handle.ID, Type: handle.Type, OK: true, LastSeen: time.Now()}

		if rd, ok := handle.AsReadable(); ok {
			if _, err := rd.Read(ctx); err != nil {
				status.OK = false
				status.Detail = err.Error()
			}
		} else if mv, ok := handle.AsMovable(); ok {
			if _, err := mv.Position(ctx); err != nil {
				status.OK = false
				status.Detail = err.Error()
			}
		}

		h.mu.Lock()
		h.statuses[handle.ID] = status
		h.mu.Unlock()
	}

	if pub != nil {
		pub.Publish(pub.NewMessage(topicHealth, h.snapshot(), true))
	}
}

func (h *healthTracker) snapshot() []moduleHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]moduleHealth, 0, len(h.statuses))
	for _, s := range h.statuses {
		out = append(out, s)
	}
	return out
}

func (s *Server) handleHealthStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health.snapshot())
}

// handleHealthStream upgrades to a websocket connection and pushes the
// health snapshot published by each cron sweep (topicHealth is retained, so
// a newly connecting client receives the last snapshot immediately) until
// the client disconnects.
func (s *Server) handleHealthStream(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer wsConn.Close()

	busConn := s.bus.NewConnection("healthStream")
	defer busConn.Disconnect()
	sub := busConn.Subscribe(topicHealth)
	defer sub.Unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case m, ok := <-sub.Channel():
			if !ok {
				return
			}
			if err := wsConn.WriteJSON(m.Payload); err != nil {
				return
			}
		}
	}
}
