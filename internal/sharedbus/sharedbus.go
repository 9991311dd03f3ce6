// Package sharedbus implements the multidrop-serial bus manager (spec.md
// §4.3): one physical serial port shared by several addressed devices. Each
// device driver holds a shared *Port handle plus its own address byte —
// never a reference to another device — the same "device holds a shared
// handle, not a pointer to other devices" shape as drivers/ltc4015/bus.go in
// the teacher repo. Exclusive access is a single mutex; wire order equals
// lock-acquisition order (spec.md §5).
package sharedbus

import (
	"context"
	"sync"

	"github.com/jangala-dev/daqd/internal/daqerr"
)

// PortOpener abstracts the physical transport so tests can substitute an
// in-memory fake instead of a real serial device. A realistic production
// implementation wraps go.bug.st/serial (not present in the retrieval pack,
// named per DESIGN.md's out-of-pack-dependency rule).
type PortOpener interface {
	Write(p []byte) (int, error)
	// ReadUntil reads bytes up to and including terminator, or returns
	// ctx's error if the deadline elapses first.
	ReadUntil(ctx context.Context, terminator byte) ([]byte, error)
}

// Port owns one physical serial connection shared by several addressed
// devices (spec.md §3.4 "Shared serial port").
type Port struct {
	mu   sync.Mutex
	conn PortOpener
	path string
	baud int
}

func NewPort(path string, baud int, conn PortOpener) *Port {
	return &Port{conn: conn, path: path, baud: baud}
}

func (p *Port) Path() string { return p.path }
func (p *Port) Baud() int    { return p.baud }

// Exchange acquires the port's exclusive lock, writes address+command+
// terminator, reads a response up to terminator (if expectResponse), and
// releases the lock. A timeout exceeded mid-exchange releases the lock and
// surfaces daqerr.Timeout (spec.md §4.3, §5 cancellation contract).
func (p *Port) Exchange(ctx context.Context, address byte, command []byte, terminator byte, expectResponse bool) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	wire := make([]byte, 0, len(command)+2)
	wire = append(wire, address)
	wire = append(wire, command...)
	wire = append(wire, terminator)

	if _, err := p.conn.Write(wire); err != nil {
		return nil, daqerr.Wrap(daqerr.Communication, "sharedbus.Exchange", err)
	}
	if !expectResponse {
		return nil, nil
	}

	resp, err := p.conn.ReadUntil(ctx, terminator)
	if err != nil {
		if ctx.Err() != nil {
			return nil, daqerr.Wrap(daqerr.Timeout, "sharedbus.Exchange", ctx.Err())
		}
		return nil, daqerr.Wrap(daqerr.Communication, "sharedbus.Exchange", err)
	}
	return resp, nil
}

// Device is the address-plus-shared-handle pair a driver embeds (spec.md
// §4.3's "every device driver is constructed with a clone of a shared handle
// plus its own address").
type Device struct {
	Port    *Port
	Address byte
}

func (d Device) Exchange(ctx context.Context, command []byte, terminator byte, expectResponse bool) ([]byte, error) {
	return d.Port.Exchange(ctx, d.Address, command, terminator, expectResponse)
}
