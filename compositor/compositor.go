// Package compositor binds the wl_compositor global and provides surfaces
// and regions, the basic drawing primitives every shell and lock screen
// builds on.
package compositor

import (
	"fmt"
	"sync"

	"github.com/bnema/wlkit/client"
)

const (
	interfaceName = "wl_compositor"
	maxVersion    = 6
)

const (
	reqCreateSurface = 0
	reqCreateRegion  = 1
)

// State owns the bound wl_compositor proxy.
type State struct {
	display *client.Display

	mu      sync.RWMutex
	proxy   *compositorProxy
	name    uint32
	version uint32
}

type compositorProxy struct {
	client.BaseProxy
}

// NewState registers with the registry and binds wl_compositor as soon as it
// is announced.
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
	p := &compositorProxy{}
	version, err := s.display.Registry().BindName(g.Name, 1, maxVersion, p)
	if err != nil {
		return
	}
	s.proxy, s.name, s.version = p, g.Name, version
}

// GlobalRemoved implements client.GlobalListener. wl_compositor is a
// capability global and is not expected to vanish, but a stale proxy beats a
// faulting one.
func (s *State) GlobalRemoved(name uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proxy != nil && s.name == name {
		s.proxy.MarkStale()
		s.proxy = nil
	}
}

// Bound reports whether wl_compositor has been bound.
func (s *State) Bound() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proxy != nil
}

// Version returns the negotiated wl_compositor version.
func (s *State) Version() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *State) bound() (*compositorProxy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.proxy == nil {
		return nil, fmt.Errorf("%w: %s", client.ErrNotAvailable, interfaceName)
	}
	return s.proxy, nil
}

// CreateSurface creates a wl_surface with the given handlers (all optional).
func (s *State) CreateSurface(handlers SurfaceHandlers) (*Surface, error) {
	p, err := s.bound()
	if err != nil {
		return nil, err
	}
	surface := &Surface{handlers: handlers, outputs: make(map[uint32]struct{})}
	s.display.Register(surface)
	if err := p.SendRequest(reqCreateSurface, surface); err != nil {
		s.display.Unregister(surface.ID())
		return nil, err
	}
	return surface, nil
}

// CreateRegion creates a wl_region.
func (s *State) CreateRegion() (*Region, error) {
	p, err := s.bound()
	if err != nil {
		return nil, err
	}
	region := &Region{}
	s.display.Register(region)
	if err := p.SendRequest(reqCreateRegion, region); err != nil {
		s.display.Unregister(region.ID())
		return nil, err
	}
	return region, nil
}

// Region is a wl_region proxy.
type Region struct {
	client.BaseProxy
}

const (
	regionReqAdd      = 0
	regionReqSubtract = 1
	regionReqDestroy  = 2
)

// Add includes a rectangle in the region.
func (r *Region) Add(x, y, width, height int32) error {
	return r.SendRequest(regionReqAdd, x, y, width, height)
}

// Subtract excludes a rectangle from the region.
func (r *Region) Subtract(x, y, width, height int32) error {
	return r.SendRequest(regionReqSubtract, x, y, width, height)
}

// Destroy destroys the region.
func (r *Region) Destroy() error {
	err := r.SendRequest(regionReqDestroy)
	if err == nil {
		r.Display().Destroyed(r.ID())
	}
	return err
}
