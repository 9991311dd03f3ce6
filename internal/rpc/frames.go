package rpc

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jangala-dev/daqd/internal/document"
)

type frameMessage struct {
	SeqNum    uint64 `json:"seq_num"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Timestamp int64  `json:"timestamp"`
	Data      string `json:"data"` // base64-encoded frame payload
}

// handleFrameStream upgrades to a websocket and forwards frames pulled from
// a FrameProducer device one at a time, starting the device's stream on
// connect and stopping it on disconnect (spec.md §4.10/§6.4 "stream frames
// (server-streaming)").
func (s *Server) handleFrameStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h, err := s.reg.Lookup(id)
	if err != nil {
		writeError(w, err)
		return
	}
	fp, ok := h.AsFrameProducer()
	if !ok {
		writeError(w, errNotFrameProducer(id))
		return
	}

	ctx := r.Context()
	if err := fp.StartStream(ctx); err != nil {
		writeError(w, err)
		return
	}
	defer func() { _ = fp.StopStream(context.Background()) }()

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer wsConn.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		ch, err := fp.TakeFrameReceiver(ctx)
		if err != nil {
			return
		}
		select {
		case fr, ok := <-ch:
			if !ok {
				return
			}
			msg := frameMessage{
				SeqNum:    fr.SeqNum,
				Width:     fr.Width,
				Height:    fr.Height,
				Timestamp: fr.Timestamp,
				Data:      base64.StdEncoding.EncodeToString(fr.Data),
			}
			if err := wsConn.WriteJSON(msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

type observableMessage struct {
	DeviceID string  `json:"device_id"`
	Value    float64 `json:"value"`
	TimeNS   int64   `json:"time_ns"`
}

// handleObservableStream upgrades to a websocket and polls a Readable
// device at a fixed interval, pushing each scalar value as it's read
// (spec.md §4.10/§6.4 "stream observables (numeric scalar streams)"). The
// poll period defaults to 200ms and is overridable via ?interval_ms=.
func (s *Server) handleObservableStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h, err := s.reg.Lookup(id)
	if err != nil {
		writeError(w, err)
		return
	}
	rd, ok := h.AsReadable()
	if !ok {
		writeError(w, errNotReadable(id))
		return
	}

	interval := 200 * time.Millisecond
	if raw := r.URL.Query().Get("interval_ms"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			interval = time.Duration(ms) * time.Millisecond
		}
	}

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer wsConn.Close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v, err := rd.Read(ctx)
			if err != nil {
				return
			}
			msg := observableMessage{DeviceID: id, Value: v, TimeNS: document.NowNS()}
			if err := wsConn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}
