package client

import (
	"fmt"
	"sync"

	"github.com/bnema/wlkit/internal/logger"
)

const (
	registryRequestBind = 0

	registryEventGlobal       = 0
	registryEventGlobalRemove = 1
)

// Global describes one advertised global protocol object. Globals are
// immutable once announced; the compositor withdraws them with a
// global_remove event.
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
}

// GlobalListener receives registry announcements. Capability state modules
// implement this to bind globals of their family and to release proxies
// when the compositor withdraws a global.
type GlobalListener interface {
	GlobalAdded(g Global)
	GlobalRemoved(name uint32)
}

// Registry tracks the globals advertised by the compositor and binds them
// into typed proxies.
type Registry struct {
	BaseProxy

	mu        sync.RWMutex
	globals   map[uint32]Global
	listeners []GlobalListener
}

// AddListener registers a listener and replays every already-known global to
// it, so setup order does not matter.
func (r *Registry) AddListener(l GlobalListener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	known := make([]Global, 0, len(r.globals))
	for _, g := range r.globals {
		known = append(known, g)
	}
	r.mu.Unlock()

	for _, g := range known {
		l.GlobalAdded(g)
	}
}

// Globals returns a snapshot of all currently advertised globals.
func (r *Registry) Globals() []Global {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Global, 0, len(r.globals))
	for _, g := range r.globals {
		out = append(out, g)
	}
	return out
}

// Lookup finds an advertised global by interface name.
func (r *Registry) Lookup(iface string) (Global, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, g := range r.globals {
		if g.Interface == iface {
			return g, true
		}
	}
	return Global{}, false
}

// Bind binds the global implementing iface. The bound version is the lower
// of maxVersion and the advertised version; if that falls below minVersion
// the bind fails with ErrNotAvailable, as it does when no such global was
// announced. On success the proxy is registered and the negotiated version
// returned.
func (r *Registry) Bind(iface string, minVersion, maxVersion uint32, p Proxy) (uint32, error) {
	g, ok := r.Lookup(iface)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotAvailable, iface)
	}
	return r.BindName(g.Name, minVersion, maxVersion, p)
}

// BindName binds a specific global by registry name. Used for interfaces
// with multiple globals (wl_output, wl_seat) where Lookup is ambiguous.
func (r *Registry) BindName(name uint32, minVersion, maxVersion uint32, p Proxy) (uint32, error) {
	r.mu.RLock()
	g, ok := r.globals[name]
	r.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: global %d", ErrNotAvailable, name)
	}

	version := min(g.Version, maxVersion)
	if version < minVersion {
		return 0, fmt.Errorf("%w: %s version %d (compositor advertises %d)",
			ErrNotAvailable, g.Interface, minVersion, g.Version)
	}

	d := r.Display()
	id := d.Register(p)
	if err := r.SendRequest(registryRequestBind, name, g.Interface, version, id); err != nil {
		d.Unregister(id)
		return 0, err
	}
	logger.Debugf("bound global [%d] %s v%d as object %d", name, g.Interface, version, id)
	return version, nil
}

// Dispatch implements Proxy.
func (r *Registry) Dispatch(e *Event) {
	switch e.Opcode {
	case registryEventGlobal:
		g := Global{
			Name:      e.Uint32(),
			Interface: e.String(),
			Version:   e.Uint32(),
		}
		r.mu.Lock()
		r.globals[g.Name] = g
		listeners := append([]GlobalListener(nil), r.listeners...)
		r.mu.Unlock()

		logger.Debugf("global announced: %s v%d (name=%d)", g.Interface, g.Version, g.Name)
		for _, l := range listeners {
			l.GlobalAdded(g)
		}

	case registryEventGlobalRemove:
		name := e.Uint32()
		r.mu.Lock()
		g, known := r.globals[name]
		delete(r.globals, name)
		listeners := append([]GlobalListener(nil), r.listeners...)
		r.mu.Unlock()

		if known {
			logger.Debugf("global removed: %s (name=%d)", g.Interface, name)
		}
		for _, l := range listeners {
			l.GlobalRemoved(name)
		}
	}
}
