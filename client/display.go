// Package client implements the core of a Wayland client connection: the
// display, the object table, the registry of advertised globals and the
// single-threaded event dispatch loop that routes inbound protocol events to
// proxy objects.
package client

import (
	"fmt"
	"net"
	"sync"

	"github.com/bnema/wlkit/internal/logger"
	"github.com/bnema/wlkit/internal/wire"
)

// displayID is the fixed object id of wl_display.
const displayID = 1

const (
	displayRequestSync        = 0
	displayRequestGetRegistry = 1

	displayEventError    = 0
	displayEventDeleteID = 1
)

// Display is a connection to a Wayland compositor. Event processing is
// cooperative and single-threaded: one goroutine calls Dispatch (directly or
// via Roundtrip) and handler callbacks run synchronously on it. Callbacks
// must not re-enter Dispatch.
type Display struct {
	conn *wire.Conn

	mu      sync.Mutex
	objects map[uint32]Proxy
	nextID  uint32

	registry *Registry

	errMu sync.Mutex
	err   error
	hooks []func(error)
}

// Connect dials the named Wayland display socket (empty for the default) and
// requests the registry. Callers normally follow up with a Roundtrip so the
// initial burst of global announcements is processed.
func Connect(name string) (*Display, error) {
	conn, err := wire.Dial(name)
	if err != nil {
		return nil, err
	}
	return NewDisplay(conn)
}

// ConnectTo wraps an already-established socket, for callers that obtained
// the connection some other way (e.g. WAYLAND_SOCKET inheritance or tests).
func ConnectTo(c *net.UnixConn) (*Display, error) {
	return NewDisplay(wire.NewConn(c))
}

// NewDisplay builds a display over a wire connection and requests the
// registry.
func NewDisplay(conn *wire.Conn) (*Display, error) {
	d := &Display{
		conn:    conn,
		objects: make(map[uint32]Proxy),
		nextID:  2,
	}

	reg := &Registry{globals: make(map[uint32]Global)}
	d.Register(reg)
	if err := d.SendRequest(displayID, displayRequestGetRegistry, reg.ID()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to get registry: %w", err)
	}
	d.registry = reg
	return d, nil
}

// Registry returns the global registry for this connection.
func (d *Display) Registry() *Registry {
	return d.registry
}

// Register assigns a fresh object id to the proxy and adds it to the object
// table. Registration happens before the creating request is sent so an
// immediate event on the new object finds its handler.
func (d *Display) Register(p Proxy) uint32 {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	p.SetID(id)
	p.SetDisplay(d)
	d.objects[id] = p
	d.mu.Unlock()
	return id
}

// RegisterID adds a proxy under a server-allocated id (e.g. a wl_data_offer
// announced by a data_offer event).
func (d *Display) RegisterID(id uint32, p Proxy) {
	p.SetID(id)
	p.SetDisplay(d)
	d.mu.Lock()
	d.objects[id] = p
	d.mu.Unlock()
}

// Unregister drops an object from the table immediately. Used for
// delete_id and for proxies the server never learned about (e.g. a failed
// creating request). Objects the server knows take the Destroyed path
// instead.
func (d *Display) Unregister(id uint32) {
	d.mu.Lock()
	delete(d.objects, id)
	d.mu.Unlock()
}

// tombstone occupies the table slot of a client-destroyed object until the
// server retires the id, so events already in flight for it are dropped
// instead of tripping the unknown-object check.
var tombstone Proxy = &BaseProxy{}

// Destroyed marks an object destroyed by this client. The destructor request
// and any events the server sent before processing it cross on the wire, so
// the table entry is replaced with a tombstone that swallows late events;
// the server's delete_id removes it for good.
func (d *Display) Destroyed(id uint32) {
	d.mu.Lock()
	if _, ok := d.objects[id]; ok {
		d.objects[id] = tombstone
	}
	d.mu.Unlock()
}

// Object looks up a live proxy by id. Destroyed objects awaiting delete_id
// are not live.
func (d *Display) Object(id uint32) (Proxy, bool) {
	d.mu.Lock()
	p, ok := d.objects[id]
	d.mu.Unlock()
	if !ok || p == tombstone {
		return nil, false
	}
	return p, ok
}

// SendRequest marshals and sends one request. Supported argument types are
// uint32, int32, wire.Fixed, string, []byte, Object, wire.FD and nil (a null
// object reference).
func (d *Display) SendRequest(object uint32, opcode uint16, args ...interface{}) error {
	if err := d.Err(); err != nil {
		return err
	}

	msg := wire.NewRequest(object, opcode)
	for _, arg := range args {
		switch v := arg.(type) {
		case uint32:
			msg.PutUint32(v)
		case int32:
			msg.PutInt32(v)
		case wire.Fixed:
			msg.PutFixed(v)
		case string:
			msg.PutString(v)
		case []byte:
			msg.PutArray(v)
		case wire.FD:
			msg.PutFD(int(v))
		case Object:
			msg.PutUint32(v.ID())
		case nil:
			msg.PutUint32(0)
		default:
			return fmt.Errorf("unsupported request argument type %T", arg)
		}
	}
	return d.conn.WriteMessage(msg)
}

// Dispatch reads exactly one event and delivers it synchronously to the
// target proxy. Events for one object are delivered in the order the server
// emitted them. An event addressed to an id this client does not know is a
// fatal protocol error: Dispatch returns a *ProtocolError and the display is
// terminal afterwards.
func (d *Display) Dispatch() error {
	if err := d.Err(); err != nil {
		return err
	}

	msg, err := d.conn.ReadMessage()
	if err != nil {
		d.fail(fmt.Errorf("%w: %v", ErrConnClosed, err))
		return d.Err()
	}

	if msg.Object == displayID {
		return d.handleDisplayEvent(msg)
	}

	d.mu.Lock()
	p, ok := d.objects[msg.Object]
	d.mu.Unlock()
	if !ok {
		perr := &ProtocolError{Object: msg.Object, Message: "event for unknown object id"}
		d.fail(perr)
		return perr
	}
	if p == tombstone {
		logger.Debugf("dropping event %d for destroyed object %d", msg.Opcode, msg.Object)
		return nil
	}

	p.Dispatch(&Event{Object: msg.Object, Opcode: msg.Opcode, conn: d.conn, data: msg.Data})
	return nil
}

func (d *Display) handleDisplayEvent(msg *wire.Message) error {
	ev := &Event{Object: msg.Object, Opcode: msg.Opcode, conn: d.conn, data: msg.Data}
	switch msg.Opcode {
	case displayEventError:
		perr := &ProtocolError{
			Object:  ev.Uint32(),
			Code:    ev.Uint32(),
			Message: ev.String(),
		}
		logger.Errorf("fatal protocol error: %v", perr)
		d.fail(perr)
		return perr

	case displayEventDeleteID:
		d.Unregister(ev.Uint32())
	}
	return nil
}

// Callback is a wl_callback proxy. Done fires once with the callback data
// and the object is dropped from the table afterwards.
type Callback struct {
	BaseProxy
	Done func(data uint32)
}

// Dispatch implements Proxy.
func (c *Callback) Dispatch(e *Event) {
	if e.Opcode != 0 {
		return
	}
	data := e.Uint32()
	c.Display().Unregister(c.ID())
	if c.Done != nil {
		c.Done(data)
	}
}

// Sync sends wl_display.sync and returns the pending callback.
func (d *Display) Sync(done func(data uint32)) (*Callback, error) {
	cb := &Callback{Done: done}
	d.Register(cb)
	if err := d.SendRequest(displayID, displayRequestSync, cb.ID()); err != nil {
		d.Unregister(cb.ID())
		return nil, err
	}
	return cb, nil
}

// Roundtrip blocks until the compositor has processed every request sent so
// far, dispatching any events that arrive in the meantime.
func (d *Display) Roundtrip() error {
	done := false
	if _, err := d.Sync(func(uint32) { done = true }); err != nil {
		return err
	}
	for !done {
		if err := d.Dispatch(); err != nil {
			return err
		}
	}
	return nil
}

// OnClose registers a teardown hook. Hooks run exactly once, when the
// connection becomes terminal, so holders of in-flight work (e.g. buffer
// leases) can fail it instead of hanging.
func (d *Display) OnClose(hook func(error)) {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	if d.err != nil {
		go hook(d.err)
		return
	}
	d.hooks = append(d.hooks, hook)
}

// Err returns the terminal error, if any.
func (d *Display) Err() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.err
}

func (d *Display) fail(err error) {
	d.errMu.Lock()
	if d.err != nil {
		d.errMu.Unlock()
		return
	}
	d.err = err
	hooks := d.hooks
	d.hooks = nil
	d.errMu.Unlock()

	for _, hook := range hooks {
		hook(err)
	}
}

// Close tears the connection down: the display becomes terminal, teardown
// hooks fire with ErrConnClosed, every proxy is marked stale and the socket
// is closed.
func (d *Display) Close() error {
	d.fail(ErrConnClosed)

	d.mu.Lock()
	for id, p := range d.objects {
		if bp, ok := p.(interface{ MarkStale() }); ok {
			bp.MarkStale()
		}
		delete(d.objects, id)
	}
	d.mu.Unlock()

	return d.conn.Close()
}
