// Package archive implements the background persistence flusher (spec.md
// §4.8, C8): a long-lived task that wakes on a timer and on a high-water
// mark signal, drains the ring buffer, and writes hierarchical
// run→stream→record archive entries. The timer-rearm-then-select shape is
// grounded on services/hal/internal/worker/measure_worker.go's MeasureWorker
// loop. Storage is go.etcd.io/bbolt rather than literal HDF5 — see
// DESIGN.md's "Open Question resolutions" for why: bbolt is pure Go,
// cgo-free, and its nested-bucket model reproduces the same run→stream→
// record hierarchy spec.md names, without binding libhdf5.
package archive

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jangala-dev/daqd/internal/document"
	"github.com/jangala-dev/daqd/internal/ring"
)

var (
	bucketRuns = []byte("runs")
)

// Flusher drains Source into a bbolt-backed archive file (spec.md §4.8).
type Flusher struct {
	db     *bbolt.DB
	source Source
	tick   time.Duration
	nudge  chan struct{}

	runs map[string]int // allocated by Open but never read or written; gap detection uses each events bucket's sequence
}

// Source is the subset of *ring.Buffer the flusher needs — narrowed so
// tests can substitute an in-memory fake.
type Source interface {
	Snapshot() []byte
	AdvanceTail(n uint64)
}

// Open creates or opens a bbolt database at path and returns a Flusher
// draining src every tick (or on Nudge).
func Open(path string, src Source, tick time.Duration) (*Flusher, error) {
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	if tick <= 0 {
		tick = time.Second
	}
	return &Flusher{db: db, source: src, tick: tick, nudge: make(chan struct{}, 1), runs: map[string]int{}}, nil
}

func (f *Flusher) Close() error { return f.db.Close() }

// Nudge signals the flusher to wake immediately instead of waiting for the
// next tick — the "high-water-mark signal from the ring buffer" of
// spec.md §4.8. Non-blocking: a pending nudge is coalesced.
func (f *Flusher) Nudge() {
	select {
	case f.nudge <- struct{}{}:
	default:
	}
}

// Run drains the source until ctx is cancelled, flushing once more before
// returning so no buffered record is lost on shutdown.
func (f *Flusher) Run(ctx context.Context) error {
	timer := time.NewTimer(f.tick)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			_ = f.flush()
			return nil

		case <-timer.C:
			if err := f.flush(); err != nil {
				return err
			}
			timer.Reset(f.tick)

		case <-f.nudge:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			if err := f.flush(); err != nil {
				return err
			}
			timer.Reset(f.tick)
		}
	}
}

// flush snapshots the ring, decodes complete records, and writes each
// document into the archive, advancing the ring's read tail past
// everything it durably wrote (spec.md §4.8 steps 1-3).
func (f *Flusher) flush() error {
	snap := f.source.Snapshot()
	if len(snap) == 0 {
		return nil
	}
	records, trailing := ring.Decode(snap)
	if len(records) == 0 {
		return nil
	}

	err := f.db.Update(func(tx *bbolt.Tx) error {
		for _, rec := range records {
			if err := f.writeRecord(tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	f.source.AdvanceTail(uint64(len(snap) - trailing))
	return nil
}

func (f *Flusher) writeRecord(tx *bbolt.Tx, rec ring.Record) error {
	kind, v, err := document.Decode(rec.Payload)
	if err != nil {
		// A corrupt or foreign record must not wedge the flusher; skip it
		// and keep draining (spec.md §4.8 makes no promise about malformed
		// ring payloads beyond "does not stall").
		return nil
	}

	runsBkt := tx.Bucket(bucketRuns)
	switch kind {
	case document.KindStart:
		d := v.(*document.Start)
		runBkt, err := runsBkt.CreateBucketIfNotExists([]byte(d.UID))
		if err != nil {
			return err
		}
		if _, err := runBkt.CreateBucketIfNotExists([]byte("streams")); err != nil {
			return err
		}
		b, _ := document.Encode(kind, d)
		return runBkt.Put([]byte("start"), b)

	case document.KindManifest:
		d := v.(*document.Manifest)
		runBkt := runsBkt.Bucket([]byte(d.RunUID))
		if runBkt == nil {
			return nil // run never opened here (archive started mid-run); drop silently
		}
		b, _ := document.Encode(kind, d)
		return runBkt.Put([]byte("manifest"), b)

	case document.KindDescriptor:
		d := v.(*document.Descriptor)
		runBkt := runsBkt.Bucket([]byte(d.RunUID))
		if runBkt == nil {
			return nil
		}
		streamsBkt := runBkt.Bucket([]byte("streams"))
		streamBkt, err := streamsBkt.CreateBucketIfNotExists([]byte(d.StreamName))
		if err != nil {
			return err
		}
		if _, err := streamBkt.CreateBucketIfNotExists([]byte("events")); err != nil {
			return err
		}
		b, _ := document.Encode(kind, d)
		return streamBkt.Put([]byte("descriptor"), b)

	case document.KindEvent:
		d := v.(*document.Event)
		runBkt := runsBkt.Bucket([]byte(d.RunUID))
		if runBkt == nil {
			return nil
		}
		streamsBkt := runBkt.Bucket([]byte("streams"))
		streamBkt := f.findStreamBucket(streamsBkt, d.DescriptorUID)
		if streamBkt == nil {
			return nil
		}
		eventsBkt := streamBkt.Bucket([]byte("events"))
		if prev := eventsBkt.Sequence(); uint64(d.SeqNum) > prev+1 && prev != 0 {
			// A gap in seq_num means the ring overwrote events before the
			// flusher reached them; record a sentinel so readers can tell
			// "missing" apart from "never happened".
			gapKey := fmt.Sprintf("gap-%020d", prev+1)
			_ = eventsBkt.Put([]byte(gapKey), []byte(fmt.Sprintf(`{"from":%d,"to":%d}`, prev+1, d.SeqNum-1)))
		}
		_ = eventsBkt.SetSequence(uint64(d.SeqNum))
		b, _ := document.Encode(kind, d)
		return eventsBkt.Put(seqKey(d.SeqNum), b)

	case document.KindStop:
		d := v.(*document.Stop)
		runBkt := runsBkt.Bucket([]byte(d.RunUID))
		if runBkt == nil {
			return nil
		}
		b, _ := document.Encode(kind, d)
		return runBkt.Put([]byte("stop"), b)
	}
	return nil
}

// findStreamBucket locates the stream bucket whose descriptor carries the
// given UID. Streams are few per run, so a linear scan is cheap and avoids
// keeping a parallel descriptor_uid -> stream_name index.
func (f *Flusher) findStreamBucket(streamsBkt *bbolt.Bucket, descriptorUID string) *bbolt.Bucket {
	var found *bbolt.Bucket
	_ = streamsBkt.ForEach(func(k, _ []byte) error {
		if found != nil {
			return nil
		}
		b := streamsBkt.Bucket(k)
		if b == nil {
			return nil
		}
		raw := b.Get([]byte("descriptor"))
		if raw == nil {
			return nil
		}
		_, v, err := document.Decode(raw)
		if err != nil {
			return nil
		}
		if d, ok := v.(*document.Descriptor); ok && d.UID == descriptorUID {
			found = b
		}
		return nil
	})
	return found
}

func seqKey(seq int) []byte {
	return []byte(fmt.Sprintf("seq-%020d", seq))
}
