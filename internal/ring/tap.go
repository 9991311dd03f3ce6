package ring

import "sync/atomic"

// Tap is a named, low-latency subscriber to a Buffer (spec.md §4.4 "Taps").
// Delivery is non-blocking: a full queue drops the record for that tap and
// bumps Dropped, the per-tap counter spec.md's boundary test names
// (a never-drained, queue-depth-1 tap sees Dropped == n-1 after n writes).
type Tap struct {
	Name    string
	NthFrame uint64 // decimation factor; 1 delivers every record

	ch      chan Record
	Dropped atomic.Uint64
}

// Channel returns the tap's delivery channel. Ordering matches producer
// write ordering (spec.md §4.4/§5 concurrency contract).
func (t *Tap) Channel() <-chan Record { return t.ch }

// RegisterTap creates and attaches a tap with the given bounded queue depth
// and nth-frame decimation factor. nthFrame must be >= 1.
func (b *Buffer) RegisterTap(name string, queueDepth int, nthFrame uint64) *Tap {
	if nthFrame == 0 {
		nthFrame = 1
	}
	t := &Tap{Name: name, NthFrame: nthFrame, ch: make(chan Record, queueDepth)}

	b.tapsMu.Lock()
	b.taps[name] = t
	b.tapsMu.Unlock()
	return t
}

// UnregisterTap detaches and drops a tap's queue.
func (b *Buffer) UnregisterTap(name string) {
	b.tapsMu.Lock()
	t, ok := b.taps[name]
	if ok {
		delete(b.taps, name)
	}
	b.tapsMu.Unlock()
	if ok {
		for drained := false; !drained; {
			select {
			case <-t.ch:
			default:
				drained = true
			}
		}
		close(t.ch)
	}
}

func (b *Buffer) broadcastToTaps(seq uint64, rec []byte) {
	b.tapsMu.RLock()
	defer b.tapsMu.RUnlock()

	// rec already carries the seq/length header; hand taps the decoded form
	// directly so consumers never re-parse it.
	payload := rec[recordHeaderSize:]
	r := Record{Seq: seq, Payload: payload}

	for _, t := range b.taps {
		if seq%t.NthFrame != 0 {
			continue
		}
		select {
		case t.ch <- r:
		default:
			t.Dropped.Add(1)
		}
	}
}
