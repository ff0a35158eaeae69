// Package dmabuf implements zwp_linux_dmabuf_v1: the v3 format/modifier
// lists and the v4 feedback objects, whose format table arrives as a
// memory-mapped file and whose preference tranches are coalesced until the
// done event.
package dmabuf

import (
	"fmt"
	"sync"

	"github.com/bnema/wlkit/client"
	"github.com/bnema/wlkit/internal/logger"
)

const (
	interfaceName = "zwp_linux_dmabuf_v1"
	maxVersion    = 4
)

const (
	reqDestroy            = 0
	reqCreateParams       = 1
	reqGetDefaultFeedback = 2
	reqGetSurfaceFeedback = 3

	eventFormat   = 0
	eventModifier = 1
)

const feedbackSinceVersion = 4

// ModifierInvalid means the driver picks the layout.
const ModifierInvalid uint64 = 0x00ffffff_ffffffff

// Format pairs a DRM fourcc with a layout modifier.
type Format struct {
	Format   uint32
	Modifier uint64
}

// State binds zwp_linux_dmabuf_v1.
type State struct {
	display *client.Display

	mu      sync.RWMutex
	proxy   *dmabufProxy
	version uint32
	formats []Format
}

// NewState registers with the registry.
func NewState(display *client.Display) *State {
	s := &State{display: display}
	display.Registry().AddListener(s)
	return s
}

// GlobalAdded implements client.GlobalListener.
func (s *State) GlobalAdded(g client.Global) {
	if g.Interface != interfaceName {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proxy != nil {
		return
	}
	p := &dmabufProxy{state: s}
	version, err := s.display.Registry().BindName(g.Name, 3, maxVersion, p)
	if err != nil {
		logger.Warnf("failed to bind zwp_linux_dmabuf_v1: %v", err)
		return
	}
	s.proxy = p
	s.version = version
}

// GlobalRemoved implements client.GlobalListener.
func (s *State) GlobalRemoved(name uint32) {}

// Bound reports whether the global has been bound yet.
func (s *State) Bound() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proxy != nil
}

// Version returns the bound protocol version.
func (s *State) Version() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Formats returns the format/modifier pairs advertised through the v3
// events. On v4 compositors prefer feedback, which also carries device and
// preference information.
func (s *State) Formats() []Format {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Format(nil), s.formats...)
}

// GetDefaultFeedback requests the compositor's default feedback. Requires
// protocol v4.
func (s *State) GetDefaultFeedback(handler func(FeedbackInfo)) (*Feedback, error) {
	return s.feedback(reqGetDefaultFeedback, nil, handler)
}

// GetSurfaceFeedback requests feedback scoped to one surface, which may
// change as the surface moves between devices.
func (s *State) GetSurfaceFeedback(surface client.Object, handler func(FeedbackInfo)) (*Feedback, error) {
	return s.feedback(reqGetSurfaceFeedback, surface, handler)
}

func (s *State) feedback(opcode uint16, surface client.Object, handler func(FeedbackInfo)) (*Feedback, error) {
	s.mu.RLock()
	proxy, version := s.proxy, s.version
	s.mu.RUnlock()
	if proxy == nil {
		return nil, fmt.Errorf("zwp_linux_dmabuf_v1 not bound: %w", client.ErrNotAvailable)
	}
	if version < feedbackSinceVersion {
		return nil, fmt.Errorf("dmabuf feedback needs v4, compositor has v%d: %w",
			version, client.ErrNotAvailable)
	}

	f := &Feedback{state: s, handler: handler}
	s.display.Register(f)
	var err error
	if surface != nil {
		err = proxy.SendRequest(opcode, f, surface)
	} else {
		err = proxy.SendRequest(opcode, f)
	}
	if err != nil {
		s.display.Unregister(f.ID())
		return nil, err
	}
	return f, nil
}

// CreateParams starts a dmabuf import. The returned params collect planes
// and produce a wl_buffer.
func (s *State) CreateParams(handlers ParamsHandlers) (*Params, error) {
	s.mu.RLock()
	proxy := s.proxy
	s.mu.RUnlock()
	if proxy == nil {
		return nil, fmt.Errorf("zwp_linux_dmabuf_v1 not bound: %w", client.ErrNotAvailable)
	}
	p := &Params{state: s, handlers: handlers}
	s.display.Register(p)
	if err := proxy.SendRequest(reqCreateParams, p); err != nil {
		s.display.Unregister(p.ID())
		return nil, err
	}
	return p, nil
}

type dmabufProxy struct {
	client.BaseProxy
	state *State
}

func (p *dmabufProxy) Dispatch(e *client.Event) {
	s := p.state
	switch e.Opcode {
	case eventFormat:
		// Pre-modifier form; record with an implicit modifier.
		f := Format{Format: e.Uint32(), Modifier: ModifierInvalid}
		s.mu.Lock()
		s.formats = append(s.formats, f)
		s.mu.Unlock()

	case eventModifier:
		format := e.Uint32()
		hi := e.Uint32()
		lo := e.Uint32()
		f := Format{Format: format, Modifier: uint64(hi)<<32 | uint64(lo)}
		s.mu.Lock()
		s.formats = append(s.formats, f)
		s.mu.Unlock()
	}
}
