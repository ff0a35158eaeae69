package compositor

import (
	"sync"

	"github.com/bnema/wlkit/client"
)

const (
	surfaceReqDestroy            = 0
	surfaceReqAttach             = 1
	surfaceReqDamage             = 2
	surfaceReqFrame              = 3
	surfaceReqSetOpaqueRegion    = 4
	surfaceReqSetInputRegion     = 5
	surfaceReqCommit             = 6
	surfaceReqSetBufferTransform = 7
	surfaceReqSetBufferScale     = 8
	surfaceReqDamageBuffer       = 9
	surfaceReqOffset             = 10
)

const (
	surfaceEventEnter              = 0
	surfaceEventLeave              = 1
	surfaceEventPreferredScale     = 2
	surfaceEventPreferredTransform = 3
)

// SurfaceHandlers holds the optional callbacks a surface consumer may supply.
type SurfaceHandlers struct {
	// OnEnter is called when the surface starts being displayed on an output.
	OnEnter func(s *Surface, output uint32)
	// OnLeave is called when the surface stops being displayed on an output.
	OnLeave func(s *Surface, output uint32)
	// OnPreferredScale is called when the compositor's preferred buffer
	// scale for this surface changes.
	OnPreferredScale func(s *Surface, scale int32)
	// OnPreferredTransform is called when the preferred buffer transform
	// changes.
	OnPreferredTransform func(s *Surface, transform uint32)
}

// Surface is a wl_surface proxy. It tracks which outputs currently show the
// surface and the compositor's preferred buffer scale.
type Surface struct {
	client.BaseProxy
	handlers SurfaceHandlers

	mu             sync.RWMutex
	outputs        map[uint32]struct{}
	preferredScale int32
}

// Dispatch implements client.Proxy.
func (s *Surface) Dispatch(e *client.Event) {
	switch e.Opcode {
	case surfaceEventEnter:
		output := e.Uint32()
		s.mu.Lock()
		s.outputs[output] = struct{}{}
		s.mu.Unlock()
		if s.handlers.OnEnter != nil {
			s.handlers.OnEnter(s, output)
		}

	case surfaceEventLeave:
		output := e.Uint32()
		s.mu.Lock()
		delete(s.outputs, output)
		s.mu.Unlock()
		if s.handlers.OnLeave != nil {
			s.handlers.OnLeave(s, output)
		}

	case surfaceEventPreferredScale:
		scale := e.Int32()
		s.mu.Lock()
		s.preferredScale = scale
		s.mu.Unlock()
		if s.handlers.OnPreferredScale != nil {
			s.handlers.OnPreferredScale(s, scale)
		}

	case surfaceEventPreferredTransform:
		if s.handlers.OnPreferredTransform != nil {
			s.handlers.OnPreferredTransform(s, e.Uint32())
		}
	}
}

// Outputs returns the registry names of the outputs currently showing the
// surface.
func (s *Surface) Outputs() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uint32, 0, len(s.outputs))
	for id := range s.outputs {
		out = append(out, id)
	}
	return out
}

// PreferredScale returns the compositor's preferred buffer scale, or 0 if
// none was announced yet.
func (s *Surface) PreferredScale() int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preferredScale
}

// Attach sets the pending buffer. Pass nil to detach.
func (s *Surface) Attach(buffer client.Object, x, y int32) error {
	if buffer == nil {
		return s.SendRequest(surfaceReqAttach, nil, x, y)
	}
	return s.SendRequest(surfaceReqAttach, buffer, x, y)
}

// Damage marks a surface-coordinate rectangle as needing redraw.
func (s *Surface) Damage(x, y, width, height int32) error {
	return s.SendRequest(surfaceReqDamage, x, y, width, height)
}

// DamageBuffer marks a buffer-coordinate rectangle as needing redraw.
func (s *Surface) DamageBuffer(x, y, width, height int32) error {
	return s.SendRequest(surfaceReqDamageBuffer, x, y, width, height)
}

// Frame requests a frame callback; done receives the callback timestamp in
// milliseconds.
func (s *Surface) Frame(done func(time uint32)) (*client.Callback, error) {
	cb := &client.Callback{Done: done}
	s.Display().Register(cb)
	if err := s.SendRequest(surfaceReqFrame, cb); err != nil {
		s.Display().Unregister(cb.ID())
		return nil, err
	}
	return cb, nil
}

// SetOpaqueRegion declares the opaque part of the surface. A nil region
// resets to fully transparent-capable.
func (s *Surface) SetOpaqueRegion(r *Region) error {
	if r == nil {
		return s.SendRequest(surfaceReqSetOpaqueRegion, nil)
	}
	return s.SendRequest(surfaceReqSetOpaqueRegion, r)
}

// SetInputRegion declares where the surface accepts input.
func (s *Surface) SetInputRegion(r *Region) error {
	if r == nil {
		return s.SendRequest(surfaceReqSetInputRegion, nil)
	}
	return s.SendRequest(surfaceReqSetInputRegion, r)
}

// Commit atomically applies the pending surface state.
func (s *Surface) Commit() error {
	return s.SendRequest(surfaceReqCommit)
}

// SetBufferTransform declares the transform pre-applied to buffer contents.
func (s *Surface) SetBufferTransform(transform int32) error {
	return s.SendRequest(surfaceReqSetBufferTransform, transform)
}

// SetBufferScale declares the scale pre-applied to buffer contents.
func (s *Surface) SetBufferScale(scale int32) error {
	return s.SendRequest(surfaceReqSetBufferScale, scale)
}

// Offset moves the pending buffer relative to the surface (v5+).
func (s *Surface) Offset(x, y int32) error {
	return s.SendRequest(surfaceReqOffset, x, y)
}

// Destroy destroys the surface.
func (s *Surface) Destroy() error {
	err := s.SendRequest(surfaceReqDestroy)
	if err == nil {
		s.Display().Destroyed(s.ID())
	}
	return err
}
