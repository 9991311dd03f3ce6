package rpc

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jangala-dev/daqd/internal/capability"
	"github.com/jangala-dev/daqd/internal/daqerr"
	"github.com/jangala-dev/daqd/internal/registry"
)

type deviceView struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Capabilities string `json:"capabilities"`
}

// handleListDevices answers GET /devices, optionally filtered by
// ?capability=movable (spec.md §4.2 "lookup by capability").
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var handles []*registry.Handle
	if c := r.URL.Query().Get("capability"); c != "" {
		cap, ok := capabilityByName(c)
		if !ok {
			writeError(w, daqerr.New(daqerr.InvalidArgument, "rpc.handleListDevices", "unknown capability "+c))
			return
		}
		handles = s.reg.ListByCapability(cap)
	} else {
		handles = s.reg.List()
	}

	out := make([]deviceView, 0, len(handles))
	for _, h := range handles {
		out = append(out, deviceView{ID: h.ID, Type: h.Type, Capabilities: h.Caps.String()})
	}
	writeJSON(w, http.StatusOK, out)
}

func capabilityByName(name string) (capability.Set, bool) {
	switch name {
	case "movable":
		return capability.Movable, true
	case "readable":
		return capability.Readable, true
	case "triggerable":
		return capability.Triggerable, true
	case "exposure_control":
		return capability.ExposureControl, true
	case "frame_producer":
		return capability.FrameProducer, true
	case "settable":
		return capability.Settable, true
	case "switchable":
		return capability.Switchable, true
	case "parameterized":
		return capability.Parameterized, true
	default:
		return 0, false
	}
}

type moveRequest struct {
	Position float64 `json:"position"`
	Relative bool    `json:"relative"`
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h, err := s.reg.Lookup(id)
	if err != nil {
		writeError(w, err)
		return
	}
	mov, ok := h.AsMovable()
	if !ok {
		writeError(w, daqerr.New(daqerr.InvalidArgument, "rpc.handleMove", id+" is not movable"))
		return
	}
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, daqerr.Wrap(daqerr.InvalidArgument, "rpc.handleMove", err))
		return
	}
	if req.Relative {
		err = mov.MoveRel(r.Context(), req.Position)
	} else {
		err = mov.MoveAbs(r.Context(), req.Position)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h, err := s.reg.Lookup(id)
	if err != nil {
		writeError(w, err)
		return
	}
	rd, ok := h.AsReadable()
	if !ok {
		writeError(w, daqerr.New(daqerr.InvalidArgument, "rpc.handleRead", id+" is not readable"))
		return
	}
	v, err := rd.Read(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"value": v})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h, err := s.reg.Lookup(id)
	if err != nil {
		writeError(w, err)
		return
	}
	trig, ok := h.AsTriggerable()
	if !ok {
		writeError(w, daqerr.New(daqerr.InvalidArgument, "rpc.handleTrigger", id+" is not triggerable"))
		return
	}
	armed, err := trig.IsArmed(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if !armed {
		if err := trig.Arm(r.Context()); err != nil {
			writeError(w, err)
			return
		}
	}
	if err := trig.Trigger(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type setRequest struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h, err := s.reg.Lookup(id)
	if err != nil {
		writeError(w, err)
		return
	}
	st, ok := h.AsSettable()
	if !ok {
		writeError(w, daqerr.New(daqerr.InvalidArgument, "rpc.handleSet", id+" is not settable"))
		return
	}
	var req setRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, daqerr.Wrap(daqerr.InvalidArgument, "rpc.handleSet", err))
		return
	}
	if err := st.SetValue(r.Context(), req.Name, capability.FloatValue(req.Value)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h, err := s.reg.Lookup(id)
	if err != nil {
		writeError(w, err)
		return
	}
	st, ok := h.AsSettable()
	if !ok {
		writeError(w, daqerr.New(daqerr.InvalidArgument, "rpc.handleGet", id+" is not settable"))
		return
	}
	name := r.URL.Query().Get("name")
	v, err := st.GetValue(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// writeJSON is the success-path twin of writeError.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
