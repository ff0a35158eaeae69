// Package sessionlock implements ext_session_lock_v1 for screen lockers.
// The compositor blanks all outputs while a lock is held; the locker renders
// to dedicated lock surfaces, one per output.
package sessionlock

import (
	"fmt"
	"sync"

	"github.com/bnema/wlkit/client"
	"github.com/bnema/wlkit/internal/logger"
)

const (
	interfaceName = "ext_session_lock_manager_v1"
	maxVersion    = 1
)

const (
	reqManagerDestroy = 0
	reqManagerLock    = 1
)

const (
	reqLockDestroy          = 0
	reqLockGetLockSurface   = 1
	reqLockUnlockAndDestroy = 2

	eventLockLocked   = 0
	eventLockFinished = 1
)

const (
	reqLockSurfaceDestroy      = 0
	reqLockSurfaceAckConfigure = 1

	eventLockSurfaceConfigure = 0
)

// State binds ext_session_lock_manager_v1.
type State struct {
	display *client.Display

	mu    sync.RWMutex
	proxy *managerProxy
}

type managerProxy struct {
	client.BaseProxy
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
	p := &managerProxy{}
	if _, err := s.display.Registry().BindName(g.Name, 1, maxVersion, p); err != nil {
		logger.Warnf("failed to bind ext_session_lock_manager_v1: %v", err)
		return
	}
	s.proxy = p
}

// GlobalRemoved implements client.GlobalListener.
func (s *State) GlobalRemoved(name uint32) {}

// Bound reports whether the compositor supports session locking.
func (s *State) Bound() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proxy != nil
}

// LockHandlers configures lock lifecycle callbacks; nil fields are skipped.
type LockHandlers struct {
	// OnLocked fires once the session is actually locked. Lock surfaces
	// should only be created from here on.
	OnLocked func()
	// OnFinished fires when the compositor denies or revokes the lock,
	// e.g. another locker is active. The lock object is dead afterwards.
	OnFinished func()
}

// Lock requests a session lock. The compositor answers with either locked or
// finished.
func (s *State) Lock(handlers LockHandlers) (*Lock, error) {
	s.mu.RLock()
	proxy := s.proxy
	s.mu.RUnlock()
	if proxy == nil {
		return nil, fmt.Errorf("ext_session_lock_manager_v1 not bound: %w", client.ErrNotAvailable)
	}

	l := &Lock{state: s, handlers: handlers}
	s.display.Register(l)
	if err := proxy.SendRequest(reqManagerLock, l); err != nil {
		s.display.Unregister(l.ID())
		return nil, err
	}
	return l, nil
}

// Lock is one ext_session_lock_v1.
type Lock struct {
	client.BaseProxy
	state    *State
	handlers LockHandlers

	mu       sync.RWMutex
	locked   bool
	finished bool
}

// Locked reports whether the compositor confirmed the lock.
func (l *Lock) Locked() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.locked
}

// Finished reports whether the compositor ended the lock.
func (l *Lock) Finished() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.finished
}

// Dispatch implements client.Proxy.
func (l *Lock) Dispatch(e *client.Event) {
	switch e.Opcode {
	case eventLockLocked:
		l.mu.Lock()
		l.locked = true
		l.mu.Unlock()
		if l.handlers.OnLocked != nil {
			l.handlers.OnLocked()
		}
	case eventLockFinished:
		l.mu.Lock()
		l.finished = true
		l.locked = false
		l.mu.Unlock()
		if l.handlers.OnFinished != nil {
			l.handlers.OnFinished()
		}
	}
}

// SurfaceHandlers configures lock surface callbacks.
type SurfaceHandlers struct {
	// OnConfigure fires with the size the surface must assume, after the
	// configure has been acked. The locker then commits a buffer of
	// exactly that size.
	OnConfigure func(serial uint32, width, height uint32)
}

// GetLockSurface assigns a wl_surface as the lock surface for an output.
// The surface must be bare: no buffer, no role.
func (l *Lock) GetLockSurface(surface, output client.Object, handlers SurfaceHandlers) (*Surface, error) {
	if l.Finished() {
		return nil, fmt.Errorf("session lock finished: %w", client.ErrStaleHandle)
	}
	ls := &Surface{lock: l, handlers: handlers}
	l.state.display.Register(ls)
	if err := l.SendRequest(reqLockGetLockSurface, ls, surface, output); err != nil {
		l.state.display.Unregister(ls.ID())
		return nil, err
	}
	return ls, nil
}

// UnlockAndDestroy unlocks the session and destroys the lock object. This is
// the only way out of a confirmed lock; a plain destroy while locked is a
// protocol error.
func (l *Lock) UnlockAndDestroy() error {
	err := l.SendRequest(reqLockUnlockAndDestroy)
	l.MarkStale()
	l.state.display.Destroyed(l.ID())
	return err
}

// Destroy destroys a lock that never got confirmed (after finished).
func (l *Lock) Destroy() error {
	err := l.SendRequest(reqLockDestroy)
	l.MarkStale()
	l.state.display.Destroyed(l.ID())
	return err
}

// Surface is one ext_session_lock_surface_v1.
type Surface struct {
	client.BaseProxy
	lock     *Lock
	handlers SurfaceHandlers

	mu            sync.RWMutex
	width, height uint32
}

// Size returns the last configured size.
func (s *Surface) Size() (width, height uint32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width, s.height
}

// Destroy releases the lock surface role.
func (s *Surface) Destroy() error {
	err := s.SendRequest(reqLockSurfaceDestroy)
	s.MarkStale()
	s.lock.state.display.Destroyed(s.ID())
	return err
}

// Dispatch implements client.Proxy.
func (s *Surface) Dispatch(e *client.Event) {
	if e.Opcode != eventLockSurfaceConfigure {
		return
	}
	serial := e.Uint32()
	width := e.Uint32()
	height := e.Uint32()

	s.mu.Lock()
	s.width, s.height = width, height
	s.mu.Unlock()

	// Lock surfaces must ack every configure they intend to obey; ack
	// first so the callback's commit lands after it.
	if err := s.SendRequest(reqLockSurfaceAckConfigure, serial); err != nil {
		logger.Warnf("failed to ack lock surface configure: %v", err)
		return
	}
	if s.handlers.OnConfigure != nil {
		s.handlers.OnConfigure(serial, width, height)
	}
}
