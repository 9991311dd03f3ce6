package runengine

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/jangala-dev/daqd/internal/blocking"
	"github.com/jangala-dev/daqd/internal/daqerr"
	"github.com/jangala-dev/daqd/internal/document"
	"github.com/jangala-dev/daqd/internal/plan"
	"github.com/jangala-dev/daqd/internal/registry"
)

// FrameSink receives ring-buffer-bound payloads emitted alongside Event
// documents (spec.md §4.7's "frames... simultaneously pushed into the ring
// buffer"). Left nil, frames are silently dropped — the engine's own
// responsibility ends at the document stream.
type FrameSink interface {
	Write(payload []byte) (seq uint64, err error)
}

// Engine is the central orchestrator: consumes a Plan, drives drivers
// through capability traits via the registry, emits documents, and answers
// pause/resume/abort (spec.md §4.7, C7). One Engine runs exactly one plan
// at a time; "single-task: one plan, one dispatch loop" (spec.md §4.7).
type Engine struct {
	reg     *registry.Registry
	pool    *blocking.Pool
	retry   RetryPolicy
	docs    chan document.Envelope
	control chan Control
	frames  FrameSink

	mu    sync.Mutex
	state State

	accumMu sync.Mutex
	accum   map[string]float64 // device id -> last Read value since the prior EmitEvent
}

// New builds an Engine. docsCapacity bounds the document channel (spec.md
// §4.7 back-pressure: "When full, the engine awaits capacity rather than
// dropping documents"). pool may be nil, in which case capability calls run
// directly on the calling goroutine instead of the blocking-offload pool —
// fine for mock drivers in tests, wrong for real vendor SDK drivers.
func New(reg *registry.Registry, pool *blocking.Pool, retry RetryPolicy, docsCapacity int, frames FrameSink) *Engine {
	if docsCapacity < 1 {
		docsCapacity = 1
	}
	return &Engine{
		reg:     reg,
		pool:    pool,
		retry:   retry,
		docs:    make(chan document.Envelope, docsCapacity),
		control: make(chan Control, 4),
		frames:  frames,
		state:   StateIdle,
	}
}

// Documents returns the channel downstream consumers (flusher, live
// subscribers) read emitted documents from.
func (e *Engine) Documents() <-chan document.Envelope { return e.docs }

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// sendControl enqueues a control command and blocks until the engine has
// applied it (or ctx is done). Once the run loop has exited nothing drains
// the control channel or closes the ack, so a call then waits until ctx is
// done and returns ctx's error; callers should check State first.
func (e *Engine) sendControl(ctx context.Context, kind ControlKind) error {
	ack := make(chan struct{})
	select {
	case e.control <- Control{Kind: kind, Ack: ack}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) Pause(ctx context.Context) error  { return e.sendControl(ctx, ControlPause) }
func (e *Engine) Resume(ctx context.Context) error { return e.sendControl(ctx, ControlResume) }
func (e *Engine) Abort(ctx context.Context) error  { return e.sendControl(ctx, ControlAbort) }

// stashRead records a Read command's result for the current event-
// accumulator (spec.md §4.7 responsibility 2: "Read... stash the value in
// the current event-accumulator"). mergeAccum drains it into an Event's
// Data at EmitEvent time.
func (e *Engine) stashRead(deviceID string, v float64) {
	e.accumMu.Lock()
	defer e.accumMu.Unlock()
	if e.accum == nil {
		e.accum = map[string]float64{}
	}
	e.accum[deviceID] = v
}

// mergeAccum returns cmd.Data merged with every Read result accumulated
// since the previous EmitEvent, then clears the accumulator so values don't
// leak into the next event.
func (e *Engine) mergeAccum(cmdData map[string]float64) map[string]float64 {
	e.accumMu.Lock()
	defer e.accumMu.Unlock()
	out := make(map[string]float64, len(cmdData)+len(e.accum))
	for k, v := range cmdData {
		out[k] = v
	}
	for k, v := range e.accum {
		out[k] = v
	}
	e.accum = nil
	return out
}

// emit sends a document onto the bounded document channel, awaiting
// capacity if it is momentarily full, honoring ctx cancellation.
func (e *Engine) emit(ctx context.Context, kind document.Kind, payload interface{}) error {
	select {
	case e.docs <- document.Envelope{Kind: kind, Payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes p to completion, emitting Start, a Manifest when the plan
// names any devices, one Descriptor per stream ahead of that stream's first
// Event, zero or more Events, and a terminal Stop (spec.md §4.7's five
// responsibilities).
// It is meant to be called from its own goroutine; callers drive pause/
// resume/abort concurrently via Pause/Resume/Abort and observe progress via
// Documents().
func (e *Engine) Run(ctx context.Context, p plan.Plan) error {
	e.setState(StateRunning)

	runUID := document.NewRunUID()
	start := document.Start{
		UID:      runUID,
		PlanType: p.PlanType(),
		PlanName: p.PlanName(),
		PlanArgs: p.PlanArgs(),
		TimeNS:   document.NowNS(),
	}
	if err := e.emit(ctx, document.KindStart, start); err != nil {
		e.setState(StateComplete)
		return err
	}
	log.Info().Str("run_uid", runUID).Str("plan", start.PlanName).Msg("runengine: run started")

	if err := e.emitManifest(ctx, runUID, p); err != nil {
		e.setState(StateComplete)
		return err
	}

	streams := map[string]*document.Stream{}
	eventCount := 0

	finish := func(status document.ExitStatus, reason string) error {
		stop := document.Stop{
			UID:        document.NewDocUID(),
			RunUID:     runUID,
			ExitStatus: status,
			Reason:     reason,
			TimeNS:     document.NowNS(),
			NumEvents:  eventCount,
		}
		e.setState(StateComplete)
		ev := log.Info()
		if status != document.ExitSuccess {
			ev = log.Warn()
		}
		ev.Str("run_uid", runUID).Str("status", string(status)).Int("num_events", eventCount).
			Str("reason", reason).Msg("runengine: run finished")
		return e.emit(ctx, document.KindStop, stop)
	}

	paused := false
	for {
		// Drain pending control commands before (and, while paused,
		// instead of) advancing the plan.
		for {
			select {
			case c := <-e.control:
				switch c.Kind {
				case ControlPause:
					paused = true
					e.setState(StatePaused)
					log.Info().Str("run_uid", runUID).Msg("runengine: paused")
				case ControlResume:
					paused = false
					e.setState(StateRunning)
					log.Info().Str("run_uid", runUID).Msg("runengine: resumed")
				case ControlAbort:
					close(c.Ack)
					return finish(document.ExitAbort, "aborted by control command")
				}
				close(c.Ack)
				continue
			default:
			}
			break
		}
		if paused {
			select {
			case <-ctx.Done():
				return finish(document.ExitFail, ctx.Err().Error())
			case c := <-e.control:
				switch c.Kind {
				case ControlResume:
					paused = false
					e.setState(StateRunning)
				case ControlAbort:
					close(c.Ack)
					return finish(document.ExitAbort, "aborted by control command")
				case ControlPause:
				}
				close(c.Ack)
			}
			continue
		}

		if ctx.Err() != nil {
			return finish(document.ExitFail, ctx.Err().Error())
		}

		cmd, ok := p.Next()
		if !ok {
			return finish(document.ExitSuccess, "")
		}

		if cmd.Kind == plan.EmitEvent {
			data := e.mergeAccum(cmd.Data)
			stream, isNew := e.openStream(streams, runUID, cmd)
			if isNew {
				desc := e.describeStream(runUID, cmd, data)
				stream = document.NewStream(runUID, desc)
				streams[cmd.StreamName] = stream
				if err := e.emit(ctx, document.KindDescriptor, desc); err != nil {
					return finish(document.ExitFail, err.Error())
				}
			}
			ev := document.Event{
				UID:           document.NewDocUID(),
				RunUID:        runUID,
				DescriptorUID: stream.DescriptorUID,
				SeqNum:        stream.NextSeq(),
				TimeNS:        document.NowNS(),
				Data:          data,
				Positions:     cmd.Positions,
			}
			if err := stream.Validate(ev); err != nil {
				return finish(document.ExitFail, daqerr.New(daqerr.Internal, "runengine.Run", err.Error()).Error())
			}
			eventCount++
			if err := e.emit(ctx, document.KindEvent, ev); err != nil {
				return finish(document.ExitFail, err.Error())
			}
			continue
		}

		if err := e.dispatch(ctx, cmd); err != nil {
			if daqerr.Of(err) == daqerr.Cancelled || ctx.Err() != nil {
				return finish(document.ExitFail, "cancelled")
			}
			return finish(document.ExitFail, err.Error())
		}
	}
}

// emitManifest snapshots the configuration of every device the plan
// references into a document.Manifest (spec.md §4.7 responsibility 1).
// spec.md §3.2 marks Manifest optional in the document order ("Manifest?")
// -- a plan touching no devices (e.g. a purely manual ImperativePlan) skips
// it rather than emitting an empty one.
func (e *Engine) emitManifest(ctx context.Context, runUID string, p plan.Plan) error {
	ids := append(append([]string(nil), p.Movers()...), p.Detectors()...)
	if len(ids) == 0 {
		return nil
	}

	seen := map[string]struct{}{}
	devices := map[string]map[string]string{}
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		h, err := e.reg.Lookup(id)
		if err != nil {
			return err
		}
		cfg := make(map[string]string, len(h.Config))
		for k, v := range h.Config {
			cfg[k] = v
		}
		devices[id] = cfg
	}

	manifest := document.Manifest{
		UID:     document.NewDocUID(),
		RunUID:  runUID,
		Devices: devices,
		TimeNS:  document.NowNS(),
	}
	return e.emit(ctx, document.KindManifest, manifest)
}

func (e *Engine) openStream(streams map[string]*document.Stream, runUID string, cmd plan.Command) (*document.Stream, bool) {
	s, ok := streams[cmd.StreamName]
	return s, !ok
}

func (e *Engine) describeStream(runUID string, cmd plan.Command, data map[string]float64) document.Descriptor {
	keys := map[string]document.DataKey{}
	for k := range data {
		keys[k] = document.DataKey{DType: document.DTypeNumber, Source: k, Unit: ""}
	}
	for k := range cmd.Positions {
		if _, exists := keys[k]; !exists {
			keys[k] = document.DataKey{DType: document.DTypeNumber, Source: k, Unit: ""}
		}
	}
	return document.Descriptor{
		UID:        document.NewDocUID(),
		RunUID:     runUID,
		StreamName: cmd.StreamName,
		DataKeys:   keys,
		TimeNS:     document.NowNS(),
	}
}
