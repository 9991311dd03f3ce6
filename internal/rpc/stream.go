package rpc

import (
	"net/http"

	"github.com/jangala-dev/daqd/internal/document"
)

// handleDocumentStream upgrades to a websocket and forwards every document
// published on topicRunDocs, encoded as JSON, until the active run's Stop
// document arrives or the client disconnects (spec.md §4.10's streaming
// surface, substituting gRPC server-streaming with a websocket push loop —
// see DESIGN.md).
func (s *Server) handleDocumentStream(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	eng := s.engine
	s.mu.Unlock()
	if eng == nil {
		writeError(w, errNoActiveRun)
		return
	}

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer wsConn.Close()

	busConn := s.bus.NewConnection("documentStream")
	defer busConn.Disconnect()
	sub := busConn.Subscribe(topicRunDocs)
	defer sub.Unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case m, ok := <-sub.Channel():
			if !ok {
				return
			}
			env, ok := m.Payload.(document.Envelope)
			if !ok {
				continue
			}
			msg := struct {
				Kind    document.Kind `json:"kind"`
				Payload interface{}   `json:"payload"`
			}{Kind: env.Kind, Payload: env.Payload}
			if err := wsConn.WriteJSON(msg); err != nil {
				return
			}
			if env.Kind == document.KindStop {
				return
			}
		}
	}
}
