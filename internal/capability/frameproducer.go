package capability

import "context"

// Frame is one image/payload handed off by a FrameProducer. The payload is
// opaque to the capability layer; the ring buffer (internal/ring) stores it
// as a length-prefixed record.
type Frame struct {
	SeqNum    uint64
	Width     int
	Height    int
	Timestamp int64 // unix ns
	Data      []byte
}

// FrameProducer is satisfied by cameras and other streaming image sources.
type FrameProducer interface {
	StartStream(ctx context.Context) error
	StopStream(ctx context.Context) error
	Resolution(ctx context.Context) (width, height int, err error)
	// TakeFrameReceiver returns a one-shot channel delivering the next frame.
	// The channel is closed after delivering exactly one Frame, or on error.
	TakeFrameReceiver(ctx context.Context) (<-chan Frame, error)
	IsStreaming(ctx context.Context) (bool, error)
	FrameCount(ctx context.Context) (uint64, error)
}
