// Package mockdriver provides in-repo device drivers implementing the
// capability interfaces, used by registry/runengine/rpc tests and by plan
// simulation (spec.md §4.6: plans must be replayable without real hardware).
package mockdriver

import (
	"context"
	"sync"

	"github.com/jangala-dev/daqd/internal/capability"
	"github.com/jangala-dev/daqd/internal/daqerr"
)

// Mover is a mock Movable device: an in-memory position with a settle delay
// of zero (tests drive time explicitly via context deadlines where needed).
type Mover struct {
	mu  sync.Mutex
	pos float64
}

func NewMover(start float64) *Mover { return &Mover{pos: start} }

func (m *Mover) Capabilities() capability.Set { return capability.Movable }

func (m *Mover) MoveAbs(ctx context.Context, pos float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos = pos
	return nil
}

func (m *Mover) MoveRel(ctx context.Context, delta float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos += delta
	return nil
}

func (m *Mover) Position(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos, nil
}

func (m *Mover) WaitSettled(ctx context.Context) error { return nil }
func (m *Mover) Stop(ctx context.Context) error        { return nil }

// Detector is a mock Readable device returning a caller-supplied sequence of
// values, repeating the last one once exhausted.
type Detector struct {
	mu     sync.Mutex
	values []float64
	idx    int
}

func NewDetector(values ...float64) *Detector {
	if len(values) == 0 {
		values = []float64{0}
	}
	return &Detector{values: values}
}

func (d *Detector) Capabilities() capability.Set { return capability.Readable }

func (d *Detector) Read(ctx context.Context) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := d.values[d.idx]
	if d.idx < len(d.values)-1 {
		d.idx++
	}
	return v, nil
}

// Camera is a mock Triggerable+Readable device: triggering "fires" an
// acquisition and bumps a count, and Read hands back the last acquisition's
// scalar value -- the trigger-then-read shape of a scalar instrument like a
// power meter, rather than a true framegrabber (see FrameCamera for that).
type Camera struct {
	mu      sync.Mutex
	armed   bool
	trigCnt int
	lastVal float64
}

func NewCamera() *Camera { return &Camera{} }

func (c *Camera) Capabilities() capability.Set { return capability.Triggerable | capability.Readable }

func (c *Camera) Arm(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = true
	return nil
}

func (c *Camera) Trigger(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trigCnt++
	c.lastVal = float64(c.trigCnt)
	return nil
}

func (c *Camera) IsArmed(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed, nil
}

func (c *Camera) TriggerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trigCnt
}

// Read returns the value from the most recent Trigger. Calling it before
// any trigger has fired is a usage error, not a zero reading.
func (c *Camera) Read(ctx context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trigCnt == 0 {
		return 0, daqerr.New(daqerr.StateInvalid, "mockdriver.Camera.Read", "read before any trigger")
	}
	return c.lastVal, nil
}

// FrameCamera is a mock Triggerable+FrameProducer device: Trigger arms a
// single frame that TakeFrameReceiver hands back on its one-shot channel,
// modeling a real framegrabber rather than a scalar instrument.
type FrameCamera struct {
	mu        sync.Mutex
	armed     bool
	trigCnt   int
	streaming bool
	width     int
	height    int
}

func NewFrameCamera(width, height int) *FrameCamera {
	return &FrameCamera{width: width, height: height}
}

func (c *FrameCamera) Capabilities() capability.Set {
	return capability.Triggerable | capability.FrameProducer
}

func (c *FrameCamera) Arm(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = true
	return nil
}

func (c *FrameCamera) Trigger(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trigCnt++
	return nil
}

func (c *FrameCamera) IsArmed(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed, nil
}

func (c *FrameCamera) TriggerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trigCnt
}

func (c *FrameCamera) StartStream(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streaming = true
	return nil
}

func (c *FrameCamera) StopStream(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streaming = false
	return nil
}

func (c *FrameCamera) IsStreaming(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming, nil
}

func (c *FrameCamera) Resolution(ctx context.Context) (int, int, error) {
	return c.width, c.height, nil
}

func (c *FrameCamera) FrameCount(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(c.trigCnt), nil
}

// TakeFrameReceiver hands back a channel carrying exactly one synthetic
// frame -- trigCnt's value as a single byte payload, enough for callers to
// verify sequencing without a real sensor behind it.
func (c *FrameCamera) TakeFrameReceiver(ctx context.Context) (<-chan capability.Frame, error) {
	c.mu.Lock()
	seq := uint64(c.trigCnt)
	w, h := c.width, c.height
	c.mu.Unlock()

	ch := make(chan capability.Frame, 1)
	ch <- capability.Frame{
		SeqNum:    seq,
		Width:     w,
		Height:    h,
		Timestamp: 0,
		Data:      []byte{byte(seq)},
	}
	close(ch)
	return ch, nil
}
