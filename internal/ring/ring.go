// Package ring implements the memory-mapped single-producer
// multi-consumer ring buffer (spec.md §4.4, §6.2): one contiguous region
// backed by a file mapping, two ever-increasing atomic cursors
// (write_head/read_tail), and named taps for low-latency live preview.
//
// The span-acquire/commit algorithm is adapted from
// x/shmring.Ring (an in-process SPSC byte ring in the teacher repo): the
// same "reserve, copy with wraparound, publish" shape, generalized from a
// raw byte pipe to a length-prefixed record log with a persistent,
// externally-mappable header, matching the file layout spec.md §6.2 names:
//
//	offset 0    : 64B header (magic, version, capacity, write_head, read_tail)
//	offset 64   : capacity-byte circular data region
package ring

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/edsrzf/mmap-go"
)

const (
	Magic      uint32 = 0x44415152 // "DAQR"
	Version    uint32 = 1
	HeaderSize        = 64

	recordHeaderSize = 8 + 4 // seq (uint64) + length (uint32)
)

// Buffer is the mmap-backed ring described in spec.md §4.4/§6.2.
type Buffer struct {
	file *os.File
	mm   mmap.MMap

	header []byte
	region []byte
	cap    uint64

	writeHead atomic.Uint64
	readTail  atomic.Uint64
	recSeq    atomic.Uint64 // next sequence number to assign

	produceMu sync.Mutex // one producer by contract; guards the reserve-copy-publish sequence
	lostBytes atomic.Uint64
	lostRecs  atomic.Uint64

	tapsMu sync.RWMutex
	taps   map[string]*Tap
}

// Create opens (creating if necessary) a ring-buffer file of the given
// circular-region capacity and maps it read-write.
func Create(path string, capacity uint64) (*Buffer, error) {
	if capacity == 0 {
		return nil, fmt.Errorf("ring: capacity must be > 0")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ring: open %s: %w", path, err)
	}
	total := int64(HeaderSize + capacity)
	if err := f.Truncate(total); err != nil {
		f.Close()
		return nil, fmt.Errorf("ring: truncate %s: %w", path, err)
	}
	m, err := mmap.MapRegion(f, int(total), mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ring: mmap %s: %w", path, err)
	}

	b := &Buffer{
		file:   f,
		mm:     m,
		header: m[:HeaderSize],
		region: m[HeaderSize:total],
		cap:    capacity,
		taps:   map[string]*Tap{},
	}

	existingMagic := binary.LittleEndian.Uint32(b.header[0:4])
	if existingMagic == Magic {
		b.writeHead.Store(binary.LittleEndian.Uint64(b.header[16:24]))
		b.readTail.Store(binary.LittleEndian.Uint64(b.header[24:32]))
	} else {
		b.writeHeaderMeta()
	}
	return b, nil
}

func (b *Buffer) writeHeaderMeta() {
	binary.LittleEndian.PutUint32(b.header[0:4], Magic)
	binary.LittleEndian.PutUint32(b.header[4:8], Version)
	binary.LittleEndian.PutUint64(b.header[8:16], b.cap)
	b.persistCursors()
}

// persistCursors release-stores write_head/read_tail into the mapped
// header so external tools reading the file see a consistent pair
// (spec.md §6.2).
func (b *Buffer) persistCursors() {
	binary.LittleEndian.PutUint64(b.header[16:24], b.writeHead.Load())
	binary.LittleEndian.PutUint64(b.header[24:32], b.readTail.Load())
}

func (b *Buffer) Close() error {
	if err := b.mm.Flush(); err != nil {
		return err
	}
	if err := b.mm.Unmap(); err != nil {
		return err
	}
	return b.file.Close()
}

func (b *Buffer) Capacity() uint64 { return b.cap }

// WriteHead and ReadTail expose the raw ever-increasing cursors, mostly for
// tests and external snapshot tools.
func (b *Buffer) WriteHead() uint64 { return b.writeHead.Load() }
func (b *Buffer) ReadTail() uint64  { return b.readTail.Load() }

// LostStats reports the ring-wide "lost" counters (spec.md §4.4 step 2 —
// distinct from a tap's own drop counter): records is the number of writes
// that overwrote unread data, bytes the total of unread bytes overwritten.
// One such write counts once even if it overwrote several records.
func (b *Buffer) LostStats() (records, bytes uint64) {
	return b.lostRecs.Load(), b.lostBytes.Load()
}

// Write appends payload as one length-prefixed record, assigning it the next
// monotonic sequence number. If the reservation would overrun
// read_tail+capacity, the producer overwrites the oldest data and the
// overwritten region's bytes are tallied in LostStats (spec.md §4.4 step 2).
func (b *Buffer) Write(payload []byte) (seq uint64, err error) {
	recLen := uint64(recordHeaderSize + len(payload))
	if recLen > b.cap {
		return 0, fmt.Errorf("ring: record of %d bytes exceeds capacity %d", recLen, b.cap)
	}

	b.produceMu.Lock()
	defer b.produceMu.Unlock()

	seq = b.recSeq.Add(1) - 1

	rec := make([]byte, recLen)
	binary.LittleEndian.PutUint64(rec[0:8], seq)
	binary.LittleEndian.PutUint32(rec[8:12], uint32(len(payload)))
	copy(rec[recordHeaderSize:], payload)

	wh := b.writeHead.Load()
	newWH := wh + recLen

	rt := b.readTail.Load()
	if newWH-rt > b.cap {
		overrun := (newWH - b.cap) - rt
		b.readTail.Store(newWH - b.cap)
		b.lostBytes.Add(overrun)
		b.lostRecs.Add(1)
	}

	b.writeAt(wh, rec)
	b.writeHead.Store(newWH) // release: readers must see the copy above first
	b.persistCursors()

	b.broadcastToTaps(seq, rec)
	return seq, nil
}

func (b *Buffer) writeAt(offset uint64, data []byte) {
	start := offset % b.cap
	n := copy(b.region[start:], data)
	if n < len(data) {
		copy(b.region[:], data[n:])
	}
}

func (b *Buffer) readAt(offset uint64, n uint64) []byte {
	out := make([]byte, n)
	start := offset % b.cap
	first := uint64(len(b.region)) - start
	if first > n {
		first = n
	}
	copy(out, b.region[start:start+first])
	if n > first {
		copy(out[first:], b.region[:n-first])
	}
	return out
}

// Snapshot copies out the currently readable range [read_tail, write_head)
// (spec.md §4.4's "snapshot read": acquire write_head first, then
// read_tail, so the range never claims unwritten bytes).
func (b *Buffer) Snapshot() []byte {
	wh := b.writeHead.Load()
	rt := b.readTail.Load()
	if wh <= rt {
		return nil
	}
	return b.readAt(rt, wh-rt)
}

// AdvanceTail marks n bytes, previously returned by Snapshot, as consumed.
func (b *Buffer) AdvanceTail(n uint64) {
	rt := b.readTail.Load()
	wh := b.writeHead.Load()
	if rt+n > wh {
		n = wh - rt
	}
	b.readTail.Store(rt + n)
	b.persistCursors()
}

// Record is one decoded length-prefixed record, as produced by Write and
// consumed by Decode/flusher parsing.
type Record struct {
	Seq     uint64
	Payload []byte
}

// Decode walks a byte range previously obtained from Snapshot and splits it
// into length-prefixed records, per spec.md §4.8 step 2. It returns the
// records found and the number of trailing bytes that did not form a
// complete record (left for the next snapshot to complete).
func Decode(buf []byte) (records []Record, trailing int) {
	off := 0
	for off+recordHeaderSize <= len(buf) {
		seq := binary.LittleEndian.Uint64(buf[off : off+8])
		length := binary.LittleEndian.Uint32(buf[off+8 : off+12])
		end := off + recordHeaderSize + int(length)
		if end > len(buf) {
			break
		}
		records = append(records, Record{Seq: seq, Payload: buf[off+recordHeaderSize : end]})
		off = end
	}
	return records, len(buf) - off
}
