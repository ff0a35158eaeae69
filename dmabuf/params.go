package dmabuf

import (
	"github.com/bnema/wlkit/client"
	"github.com/bnema/wlkit/internal/wire"
)

const (
	reqParamsDestroy     = 0
	reqParamsAdd         = 1
	reqParamsCreate      = 2
	reqParamsCreateImmed = 3

	eventParamsCreated = 0
	eventParamsFailed  = 1
)

// ParamsHandlers reports the outcome of an asynchronous Create. Exactly one
// of the two fires.
type ParamsHandlers struct {
	OnCreated func(buffer *ImportedBuffer)
	OnFailed  func()
}

// Params is a zwp_linux_buffer_params_v1 under construction: add one plane
// per fd, then create the buffer.
type Params struct {
	client.BaseProxy
	state    *State
	handlers ParamsHandlers
}

// Add attaches one plane. The descriptor is duplicated by the kernel on
// send; the caller keeps ownership of fd.
func (p *Params) Add(fd int, planeIndex, offset, stride uint32, modifier uint64) error {
	return p.SendRequest(reqParamsAdd, wire.FD(fd), planeIndex, offset, stride,
		uint32(modifier>>32), uint32(modifier&0xffffffff))
}

// Create asks for a wl_buffer asynchronously; the result arrives through
// the handlers.
func (p *Params) Create(width, height int32, format uint32, flags uint32) error {
	return p.SendRequest(reqParamsCreate, width, height, format, flags)
}

// CreateImmed creates the wl_buffer in one round: invalid dmabufs become a
// protocol error instead of a failed event.
func (p *Params) CreateImmed(width, height int32, format uint32, flags uint32) (*ImportedBuffer, error) {
	buf := &ImportedBuffer{display: p.state.display}
	p.state.display.Register(buf)
	if err := p.SendRequest(reqParamsCreateImmed, buf, width, height, format, flags); err != nil {
		p.state.display.Unregister(buf.ID())
		return nil, err
	}
	return buf, nil
}

// Destroy releases the params object. Safe after create.
func (p *Params) Destroy() error {
	err := p.SendRequest(reqParamsDestroy)
	p.MarkStale()
	p.state.display.Destroyed(p.ID())
	return err
}

// Dispatch implements client.Proxy.
func (p *Params) Dispatch(e *client.Event) {
	switch e.Opcode {
	case eventParamsCreated:
		id := e.Uint32()
		buf := &ImportedBuffer{display: p.state.display}
		p.state.display.RegisterID(id, buf)
		if p.handlers.OnCreated != nil {
			p.handlers.OnCreated(buf)
		}
	case eventParamsFailed:
		if p.handlers.OnFailed != nil {
			p.handlers.OnFailed()
		}
	}
}

// ImportedBuffer is a wl_buffer produced from dmabuf planes. Unlike shm
// buffers it has no client-side storage; releases are surfaced through
// OnRelease.
type ImportedBuffer struct {
	client.BaseProxy
	display   *client.Display
	onRelease func()
}

// OnRelease sets the compositor-release callback.
func (b *ImportedBuffer) OnRelease(fn func()) { b.onRelease = fn }

// Destroy releases the buffer.
func (b *ImportedBuffer) Destroy() error {
	err := b.SendRequest(0)
	b.MarkStale()
	b.display.Destroyed(b.ID())
	return err
}

// Dispatch implements client.Proxy.
func (b *ImportedBuffer) Dispatch(e *client.Event) {
	if e.Opcode == 0 && b.onRelease != nil {
		b.onRelease()
	}
}
