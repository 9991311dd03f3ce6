package runengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jangala-dev/daqd/internal/document"
	"github.com/jangala-dev/daqd/internal/mockdriver"
	"github.com/jangala-dev/daqd/internal/plan"
	"github.com/jangala-dev/daqd/internal/registry"
)

func newTestRegistry(t *testing.T) (*registry.Registry, *mockdriver.Mover, *mockdriver.Camera) {
	t.Helper()
	reg := registry.New()
	mov := mockdriver.NewMover(0)
	cam := mockdriver.NewCamera()
	_, err := reg.Register("stg", "mock.mover", mov, nil)
	require.NoError(t, err)
	_, err = reg.Register("det", "mock.camera", cam, nil)
	require.NoError(t, err)
	return reg, mov, cam
}

func collectDocs(t *testing.T, e *Engine, done <-chan struct{}) []document.Envelope {
	t.Helper()
	var docs []document.Envelope
	for {
		select {
		case d := <-e.Documents():
			docs = append(docs, d)
		case <-done:
			// Drain whatever is already buffered before returning.
			for {
				select {
				case d := <-e.Documents():
					docs = append(docs, d)
					continue
				default:
				}
				return docs
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for documents")
			return docs
		}
	}
}

// TestSimple1DScan grounds spec.md §8 scenario 1: a 3-point scan of
// detector "det" over mover "stg" from 0.0 to 10.0.
func TestSimple1DScan(t *testing.T) {
	reg, _, cam := newTestRegistry(t)
	e := New(reg, nil, DefaultRetryPolicy(), 32, nil)
	p := plan.NewScan1D("scan", nil, "stg", []string{"det"}, 0.0, 10.0, 3, "primary")

	done := make(chan struct{})
	var runErr error
	go func() {
		runErr = e.Run(context.Background(), p)
		close(done)
	}()

	docs := collectDocs(t, e, done)
	require.NoError(t, runErr)

	var start document.Start
	var manifestSeen bool
	var events []document.Event
	var stop document.Stop
	for _, d := range docs {
		switch d.Kind {
		case document.KindStart:
			start = d.Payload.(document.Start)
		case document.KindManifest:
			manifestSeen = true
			m := d.Payload.(document.Manifest)
			assert.Contains(t, m.Devices, "stg")
			assert.Contains(t, m.Devices, "det")
		case document.KindEvent:
			events = append(events, d.Payload.(document.Event))
		case document.KindStop:
			stop = d.Payload.(document.Stop)
		}
	}

	assert.Equal(t, "Scan1D", start.PlanType)
	assert.True(t, manifestSeen, "expected a Manifest document before the first Descriptor")
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, float64(i+1), ev.Data["det"], "event %d should carry det's accumulated read, not stg's position", i)
		assert.Equal(t, []float64{0.0, 5.0, 10.0}[i], ev.Positions["stg"])
	}
	assert.Equal(t, document.ExitSuccess, stop.ExitStatus)
	assert.Equal(t, 3, stop.NumEvents)
	assert.Equal(t, 3, cam.TriggerCount())
	assert.Equal(t, StateComplete, e.State())
}

// TestAbortMidRun grounds spec.md §8 scenario 2: a 10-point plan aborted
// after event 4 yields exactly 4 events then Stop{abort}.
func TestAbortMidRun(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	e := New(reg, nil, DefaultRetryPolicy(), 1, nil) // unbuffered-ish: forces backpressure
	p := plan.NewScan1D("scan", nil, "stg", nil, 0, 9, 10, "primary")

	done := make(chan struct{})
	go func() { _ = e.Run(context.Background(), p); close(done) }()

	var nEvents int
	var stop document.Stop
loop:
	for {
		select {
		case d := <-e.Documents():
			if d.Kind == document.KindEvent {
				nEvents++
				if nEvents == 4 {
					ctx, cancel := context.WithTimeout(context.Background(), time.Second)
					require.NoError(t, e.Abort(ctx))
					cancel()
				}
			}
			if d.Kind == document.KindStop {
				stop = d.Payload.(document.Stop)
				break loop
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for abort to take effect")
		}
	}
	<-done

	assert.Equal(t, 4, nEvents)
	assert.Equal(t, document.ExitAbort, stop.ExitStatus)
	assert.Equal(t, 4, stop.NumEvents)
}

// TestEmptyPlanEmitsZeroEventStop grounds spec.md §8's boundary case: a plan
// whose Next() returns ok=false immediately yields Start, zero events, then
// Stop(success, num_events=0).
func TestEmptyPlanEmitsZeroEventStop(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	e := New(reg, nil, DefaultRetryPolicy(), 4, nil)
	empty := plan.NewImperativePlan("noop", nil, nil, nil, nil)

	done := make(chan struct{})
	go func() { _ = e.Run(context.Background(), empty); close(done) }()

	docs := collectDocs(t, e, done)
	require.Len(t, docs, 2)
	assert.Equal(t, document.KindStart, docs[0].Kind)
	assert.Equal(t, document.KindStop, docs[1].Kind)
	stop := docs[1].Payload.(document.Stop)
	assert.Equal(t, document.ExitSuccess, stop.ExitStatus)
	assert.Equal(t, 0, stop.NumEvents)
}

// fakeFrameSink is an in-memory FrameSink recording every payload written.
type fakeFrameSink struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (f *fakeFrameSink) Write(payload []byte) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return uint64(len(f.payloads)), nil
}

// TestTriggerPushesFrameIntoSink grounds spec.md §4.7 responsibility 2's
// "frames... simultaneously pushed into the ring buffer": triggering a
// device that is both Triggerable and a FrameProducer must hand its frame
// to the engine's FrameSink, not just bump a trigger count.
func TestTriggerPushesFrameIntoSink(t *testing.T) {
	reg := registry.New()
	cam := mockdriver.NewFrameCamera(8, 4)
	_, err := reg.Register("cam", "mock.frame_camera", cam, nil)
	require.NoError(t, err)

	sink := &fakeFrameSink{}
	e := New(reg, nil, DefaultRetryPolicy(), 8, sink)
	p := plan.NewImperativePlan("manual", nil, nil, []string{"cam"}, []plan.Command{
		{Kind: plan.Trigger, DeviceID: "cam"},
		{Kind: plan.EmitEvent, StreamName: "primary"},
	})

	done := make(chan struct{})
	go func() { _ = e.Run(context.Background(), p); close(done) }()
	_ = collectDocs(t, e, done)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.payloads, 1)
}

func TestPauseResumeContinuesDispatch(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	e := New(reg, nil, DefaultRetryPolicy(), 8, nil)
	p := plan.NewScan1D("scan", nil, "stg", nil, 0, 1, 2, "primary")

	done := make(chan struct{})
	go func() { _ = e.Run(context.Background(), p); close(done) }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	require.NoError(t, e.Pause(ctx))
	cancel()
	assert.Equal(t, StatePaused, e.State())

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	require.NoError(t, e.Resume(ctx2))
	cancel2()

	docs := collectDocs(t, e, done)
	var stop document.Stop
	for _, d := range docs {
		if d.Kind == document.KindStop {
			stop = d.Payload.(document.Stop)
		}
	}
	assert.Equal(t, document.ExitSuccess, stop.ExitStatus)
}
