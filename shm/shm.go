// Package shm implements wl_shm buffer management: a raw shared-memory pool
// over a sealed memfd, and a slot allocator on top of it that recycles buffer
// storage as the compositor releases it.
package shm

import (
	"fmt"
	"sync"

	"github.com/bnema/wlkit/client"
	"github.com/bnema/wlkit/internal/logger"
	"github.com/bnema/wlkit/internal/wire"
)

const (
	interfaceName = "wl_shm"
	maxVersion    = 1
)

const (
	reqCreatePool = 0

	eventFormat = 0
)

// Format is a wl_shm pixel format. The two mandatory formats have the wl_shm
// enum values 0 and 1; everything else is a DRM fourcc code.
type Format uint32

const (
	Argb8888 Format = 0
	Xrgb8888 Format = 1
)

func (f Format) String() string {
	switch f {
	case Argb8888:
		return "ARGB8888"
	case Xrgb8888:
		return "XRGB8888"
	}
	b := [4]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08x", uint32(f))
		}
	}
	return string(b[:])
}

// State binds wl_shm and records the formats the compositor advertises.
type State struct {
	display *client.Display

	mu      sync.RWMutex
	proxy   *shmProxy
	formats []Format
}

// NewState registers with the registry. The binding completes during the
// next roundtrip.
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
	p := &shmProxy{state: s}
	if _, err := s.display.Registry().BindName(g.Name, 1, maxVersion, p); err != nil {
		logger.Warnf("failed to bind wl_shm: %v", err)
		return
	}
	s.proxy = p
}

// GlobalRemoved implements client.GlobalListener. Compositors never withdraw
// wl_shm in practice; tolerate it anyway.
func (s *State) GlobalRemoved(name uint32) {}

// Bound reports whether wl_shm has been bound yet.
func (s *State) Bound() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proxy != nil
}

// Formats returns the advertised pixel formats. ARGB8888 and XRGB8888 are
// always present once the initial burst has been dispatched.
func (s *State) Formats() []Format {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Format(nil), s.formats...)
}

// FormatSupported reports whether the compositor advertised f.
func (s *State) FormatSupported(f Format) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, got := range s.formats {
		if got == f {
			return true
		}
	}
	return false
}

// createPool sends wl_shm.create_pool for an already-registered pool proxy.
func (s *State) createPool(p client.Proxy, fd int, size int32) error {
	s.mu.RLock()
	proxy := s.proxy
	s.mu.RUnlock()
	if proxy == nil {
		return fmt.Errorf("wl_shm not bound: %w", client.ErrNotAvailable)
	}
	s.display.Register(p)
	if err := proxy.SendRequest(reqCreatePool, p, wire.FD(fd), size); err != nil {
		s.display.Unregister(p.ID())
		return err
	}
	return nil
}

type shmProxy struct {
	client.BaseProxy
	state *State
}

func (p *shmProxy) Dispatch(e *client.Event) {
	if e.Opcode != eventFormat {
		return
	}
	f := Format(e.Uint32())
	s := p.state
	s.mu.Lock()
	s.formats = append(s.formats, f)
	s.mu.Unlock()
}
