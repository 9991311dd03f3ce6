package rpc

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/jangala-dev/daqd/internal/blocking"
	"github.com/jangala-dev/daqd/internal/daqerr"
	"github.com/jangala-dev/daqd/internal/document"
	"github.com/jangala-dev/daqd/internal/plan"
	"github.com/jangala-dev/daqd/internal/runengine"
)

// scan1DRequest mirrors plan.Scan1D's fields for JSON submission (spec.md
// §4.6, §8 scenario 1).
type scan1DRequest struct {
	Name      string  `json:"name"`
	MoverID   string  `json:"mover_id"`
	DetID     string  `json:"det_id"`
	Start     float64 `json:"start"`
	Stop      float64 `json:"stop"`
	Steps     int     `json:"steps"`
	StreamKey string  `json:"stream_name"`
}

// handleQueueScan1D builds a Scan1D plan and starts a fresh Engine running
// it in the background (spec.md §4.7 "single-task: one plan, one dispatch
// loop" — a prior active run must finish before a new one is queued).
func (s *Server) handleQueueScan1D(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.engine != nil && s.engine.State() != runengine.StateComplete && s.engine.State() != runengine.StateIdle {
		s.mu.Unlock()
		writeError(w, daqerr.New(daqerr.StateInvalid, "rpc.handleQueueScan1D", "a run is already active"))
		return
	}
	s.mu.Unlock()

	var req scan1DRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, daqerr.Wrap(daqerr.InvalidArgument, "rpc.handleQueueScan1D", err))
		return
	}
	if req.StreamKey == "" {
		req.StreamKey = "primary"
	}

	p := plan.NewScan1D(req.Name, map[string]string{"mover_id": req.MoverID, "det_id": req.DetID},
		req.MoverID, []string{req.DetID}, req.Start, req.Stop, req.Steps, req.StreamKey)

	pool := blocking.New(0)
	var frames runengine.FrameSink
	if s.docRing != nil {
		frames = s.docRing
	}
	eng := runengine.New(s.reg, pool, runengine.DefaultRetryPolicy(), 16, frames)

	s.mu.Lock()
	s.engine = eng
	s.mu.Unlock()

	go s.drainToRing(eng)

	go func() {
		_ = eng.Run(context.Background(), p)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// drainToRing is the sole reader of eng.Documents(). It encodes every
// document into the process ring buffer, nudging the archive flusher so
// storage catches up promptly instead of waiting for its next timer tick
// (spec.md §4.8 "timer tick or an explicit nudge"), and publishes the same
// envelope onto topicRunDocs for handleDocumentStream's websocket
// subscribers. A single reader is required because document.Envelope
// carries no replay mechanism — two independent consumers racing on the
// same channel would each see only a subset of the run.
func (s *Server) drainToRing(eng *runengine.Engine) {
	conn := s.bus.NewConnection("drainToRing")
	defer conn.Disconnect()

	for env := range eng.Documents() {
		if s.docRing != nil {
			if encoded, err := document.Encode(env.Kind, env.Payload); err == nil {
				if _, err := s.docRing.Write(encoded); err == nil && s.flusher != nil {
					s.flusher.Nudge()
				}
			}
		}
		conn.Publish(conn.NewMessage(topicRunDocs, env, false))
	}
}

func (s *Server) handleRunControl(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		eng := s.engine
		s.mu.Unlock()
		if eng == nil {
			writeError(w, errNoActiveRun)
			return
		}

		var err error
		switch action {
		case "pause":
			err = eng.Pause(r.Context())
		case "resume":
			err = eng.Resume(r.Context())
		case "abort":
			err = eng.Abort(r.Context())
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": action})
	}
}
