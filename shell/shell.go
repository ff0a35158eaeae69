// Package shell implements xdg_wm_base windows. Toplevel configuration is
// buffered across the xdg negotiation burst and delivered as one callback
// per xdg_surface.configure, already acked.
package shell

import (
	"fmt"
	"sync"

	"github.com/bnema/wlkit/client"
	"github.com/bnema/wlkit/internal/logger"
)

const (
	interfaceName = "xdg_wm_base"
	maxVersion    = 6
)

const (
	reqWmBaseDestroy          = 0
	reqWmBaseCreatePositioner = 1
	reqWmBaseGetXdgSurface    = 2
	reqWmBasePong             = 3

	eventWmBasePing = 0
)

// State binds xdg_wm_base and answers its pings.
type State struct {
	display *client.Display

	mu    sync.RWMutex
	proxy *wmBaseProxy
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
	p := &wmBaseProxy{}
	if _, err := s.display.Registry().BindName(g.Name, 1, maxVersion, p); err != nil {
		logger.Warnf("failed to bind xdg_wm_base: %v", err)
		return
	}
	s.proxy = p
}

// GlobalRemoved implements client.GlobalListener.
func (s *State) GlobalRemoved(name uint32) {}

// Bound reports whether xdg_wm_base has been bound yet.
func (s *State) Bound() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proxy != nil
}

// CreateWindow wraps a wl_surface in an xdg_surface/xdg_toplevel pair. The
// window is mapped after an initial commit with no buffer attached, followed
// by the first configure callback.
func (s *State) CreateWindow(surface client.Object, handlers WindowHandlers) (*Window, error) {
	s.mu.RLock()
	proxy := s.proxy
	s.mu.RUnlock()
	if proxy == nil {
		return nil, fmt.Errorf("xdg_wm_base not bound: %w", client.ErrNotAvailable)
	}

	w := &Window{shell: s, handlers: handlers}
	w.xdgSurface = &xdgSurfaceProxy{window: w}
	w.toplevel = &toplevelProxy{window: w}

	d := s.display
	d.Register(w.xdgSurface)
	if err := proxy.SendRequest(reqWmBaseGetXdgSurface, w.xdgSurface, surface); err != nil {
		d.Unregister(w.xdgSurface.ID())
		return nil, err
	}
	d.Register(w.toplevel)
	if err := w.xdgSurface.SendRequest(reqXdgSurfaceGetToplevel, w.toplevel); err != nil {
		d.Unregister(w.toplevel.ID())
		return nil, err
	}
	return w, nil
}

type wmBaseProxy struct {
	client.BaseProxy
}

func (p *wmBaseProxy) Dispatch(e *client.Event) {
	if e.Opcode != eventWmBasePing {
		return
	}
	serial := e.Uint32()
	if err := p.SendRequest(reqWmBasePong, serial); err != nil {
		logger.Warnf("failed to answer xdg_wm_base ping: %v", err)
	}
}
