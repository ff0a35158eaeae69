package client

import (
	"sync/atomic"

	"github.com/bnema/wlkit/internal/wire"
)

// Object is anything addressable by a protocol object id.
type Object interface {
	ID() uint32
}

// Proxy is a client-side handle to a remote protocol object. Concrete proxy
// types embed BaseProxy and override Dispatch to decode their events.
type Proxy interface {
	Object
	SetID(uint32)
	SetDisplay(*Display)
	Dispatch(*Event)
}

// BaseProxy provides the bookkeeping shared by all proxy types.
type BaseProxy struct {
	id      uint32
	display *Display
	stale   atomic.Bool
}

// ID returns the proxy's object id, or 0 if unregistered.
func (p *BaseProxy) ID() uint32 { return p.id }

// SetID records the proxy's object id. Called by the display on registration.
func (p *BaseProxy) SetID(id uint32) { p.id = id }

// SetDisplay attaches the proxy to its connection.
func (p *BaseProxy) SetDisplay(d *Display) { p.display = d }

// Display returns the connection this proxy belongs to.
func (p *BaseProxy) Display() *Display { return p.display }

// Dispatch is a no-op; proxy types that receive events override it.
func (p *BaseProxy) Dispatch(*Event) {}

// MarkStale flags the proxy after its global has been removed. Subsequent
// requests fail with ErrStaleHandle instead of faulting on a dead object.
func (p *BaseProxy) MarkStale() { p.stale.Store(true) }

// Stale reports whether the proxy's global has been removed.
func (p *BaseProxy) Stale() bool { return p.stale.Load() }

// SendRequest marshals and sends a request on this proxy.
func (p *BaseProxy) SendRequest(opcode uint16, args ...interface{}) error {
	if p.stale.Load() {
		return ErrStaleHandle
	}
	return p.display.SendRequest(p.id, opcode, args...)
}

// Event is one inbound protocol event. The accessor methods consume
// arguments in wire order; reads past the end of the body yield zero values,
// matching the behavior of a malformed-but-tolerated compositor message.
type Event struct {
	Object uint32
	Opcode uint16

	conn *wire.Conn
	data []byte
	off  int
}

// Uint32 reads a uint argument.
func (e *Event) Uint32() uint32 {
	if e.off+4 > len(e.data) {
		return 0
	}
	v := uint32(e.data[e.off]) | uint32(e.data[e.off+1])<<8 |
		uint32(e.data[e.off+2])<<16 | uint32(e.data[e.off+3])<<24
	e.off += 4
	return v
}

// Int32 reads an int argument.
func (e *Event) Int32() int32 { return int32(e.Uint32()) }

// Fixed reads a 24.8 fixed-point argument.
func (e *Event) Fixed() wire.Fixed { return wire.Fixed(e.Int32()) }

// String reads a string argument, excluding the NUL terminator.
func (e *Event) String() string {
	n := int(e.Uint32())
	if n == 0 || e.off+n > len(e.data) {
		return ""
	}
	s := string(e.data[e.off : e.off+n-1])
	e.off += n + (4-n%4)%4
	return s
}

// Array reads an array argument as raw bytes.
func (e *Event) Array() []byte {
	n := int(e.Uint32())
	if n == 0 || e.off+n > len(e.data) {
		return nil
	}
	b := make([]byte, n)
	copy(b, e.data[e.off:e.off+n])
	e.off += n + (4-n%4)%4
	return b
}

// FD takes the next out-of-band file descriptor received with this event.
func (e *Event) FD() (int, error) {
	return e.conn.TakeFD()
}
