// Package rpc implements the external RPC surface (spec.md §4.10/§6.4,
// C10): a thin translation from HTTP requests to registry lookups,
// capability calls, and RunEngine commands. Request/response calls route
// through go-chi/chi/v5; server-streaming calls (frame/document/health
// streams) upgrade to gorilla/websocket and push newline-delimited JSON.
// Both libraries are required directly by r3e-network-service_layer in the
// retrieval pack; the original system's gRPC/tonic surface has no
// generated stub in the pack to carry forward; see DESIGN.md for the
// substitution rationale.
package rpc

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/robfig/cron/v3"

	"github.com/jangala-dev/daqd/internal/archive"
	"github.com/jangala-dev/daqd/internal/registry"
	"github.com/jangala-dev/daqd/internal/ring"
	"github.com/jangala-dev/daqd/internal/runengine"

	"github.com/jangala-dev/daqd/bus"
)

// topicRunDocs and topicHealth are the bus topics run documents and health
// sweeps are published on (spec.md §4.10's websocket fan-out, grounded on
// bus.Bus's trie/retained-message engine — see DESIGN.md "Kept-but-adapted
// teacher code").
var (
	topicRunDocs = bus.T("run", "doc")
	topicHealth  = bus.T("health", "status")
)

// Server wires the registry, RunEngine, ring buffer, and archive flusher
// into an HTTP surface (spec.md §4.10).
type Server struct {
	reg     *registry.Registry
	docRing *ring.Buffer
	flusher *archive.Flusher
	cron    *cron.Cron
	bus     *bus.Bus

	mu         sync.Mutex
	engine     *runengine.Engine // the currently active run, if any
	storageRun *storageRun

	upgrader websocket.Upgrader
	router   chi.Router

	health *healthTracker
}

// NewServer builds a Server and its chi router. docRing is the ring buffer
// document.Envelope payloads are written into on their way to the archive
// flusher; it may be nil, in which case queued runs execute but nothing is
// persisted or replayed to websocket subscribers.
func NewServer(reg *registry.Registry, docRing *ring.Buffer, flusher *archive.Flusher) *Server {
	s := &Server{
		reg:      reg,
		docRing:  docRing,
		flusher:  flusher,
		cron:     cron.New(),
		bus:      bus.NewBus(8),
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		health:   newHealthTracker(reg),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/devices", s.handleListDevices)
	r.Post("/devices/{id}/move", s.handleMove)
	r.Get("/devices/{id}/read", s.handleRead)
	r.Post("/devices/{id}/set", s.handleSet)
	r.Get("/devices/{id}/get", s.handleGet)
	r.Post("/devices/{id}/trigger", s.handleTrigger)
	r.Get("/devices/{id}/frames", s.handleFrameStream)
	r.Get("/devices/{id}/observe", s.handleObservableStream)

	r.Post("/run/queue", s.handleQueueScan1D)
	r.Post("/run/pause", s.handleRunControl("pause"))
	r.Post("/run/resume", s.handleRunControl("resume"))
	r.Post("/run/abort", s.handleRunControl("abort"))
	r.Get("/run/documents", s.handleDocumentStream)

	r.Post("/storage/start", s.handleStorageStart)
	r.Post("/storage/stop", s.handleStorageStop)

	r.Get("/health/status", s.handleHealthStatus)
	r.Get("/health/stream", s.handleHealthStream)

	s.router = r
}

// StartHealthSweep runs the periodic module-status sweep on the given cron
// spec (spec.md's Health subsystem supplement; default every 10s).
func (s *Server) StartHealthSweep(ctx context.Context, spec string) error {
	if spec == "" {
		spec = "@every 10s"
	}
	healthConn := s.bus.NewConnection("healthSweep")
	_, err := s.cron.AddFunc(spec, func() { s.health.sweep(healthConn) })
	if err != nil {
		return err
	}
	s.cron.Start()
	go func() {
		<-ctx.Done()
		s.cron.Stop()
		healthConn.Disconnect()
	}()
	return nil
}
