// Package output tracks wl_output globals and aggregates their state.
//
// Output properties arrive as a burst of geometry/mode/scale/name events
// terminated by a done event. The package buffers the burst and delivers one
// coalesced callback per logical update, so consumers never observe a
// half-applied configuration.
package output

import (
	"sync"

	"github.com/bnema/wlkit/client"
	"github.com/bnema/wlkit/internal/logger"
)

const (
	interfaceName = "wl_output"
	minVersion    = 2
	maxVersion    = 4
)

const (
	reqRelease = 0

	eventGeometry    = 0
	eventMode        = 1
	eventDone        = 2
	eventScale       = 3
	eventName        = 4
	eventDescription = 5
)

// releaseSinceVersion is the first wl_output version with the release request.
const releaseSinceVersion = 3

// Mode flags from the wire.
const (
	modeFlagCurrent   = 1
	modeFlagPreferred = 2
)

// Mode is one display mode advertised by an output.
type Mode struct {
	Width     int32
	Height    int32
	Refresh   int32 // mHz
	Current   bool
	Preferred bool
}

// Info is the coalesced state of one output. It is a value: callbacks and
// accessors hand out copies, so holding one across dispatches is safe.
type Info struct {
	// ID is the registry name of the wl_output global.
	ID uint32
	// Name is the connector name ("DP-1", "HDMI-A-2"), empty below v4.
	Name        string
	Description string
	Make        string
	Model       string

	X              int32
	Y              int32
	PhysicalWidth  int32
	PhysicalHeight int32
	Subpixel       int32
	Transform      int32
	Scale          int32

	Modes []Mode
}

// CurrentMode returns the active mode, if the compositor reported one.
func (i Info) CurrentMode() (Mode, bool) {
	for _, m := range i.Modes {
		if m.Current {
			return m, true
		}
	}
	return Mode{}, false
}

func (i Info) clone() Info {
	out := i
	out.Modes = append([]Mode(nil), i.Modes...)
	return out
}

// Handler receives coalesced output callbacks. All callbacks run on the
// dispatch goroutine.
type Handler interface {
	// NewOutput fires after a newly bound output's first done event.
	NewOutput(info Info)
	// OutputUpdated fires once per subsequent done event.
	OutputUpdated(info Info)
	// OutputRemoved fires when the compositor withdraws the global.
	OutputRemoved(info Info)
}

// State binds every advertised wl_output and owns their proxies.
type State struct {
	display *client.Display
	handler Handler

	mu      sync.RWMutex
	outputs map[uint32]*outputProxy
}

// NewState registers with the registry; handler may be nil for pure
// accessor-style use.
func NewState(display *client.Display, handler Handler) *State {
	s := &State{
		display: display,
		handler: handler,
		outputs: make(map[uint32]*outputProxy),
	}
	display.Registry().AddListener(s)
	return s
}

// GlobalAdded implements client.GlobalListener.
func (s *State) GlobalAdded(g client.Global) {
	if g.Interface != interfaceName {
		return
	}
	p := &outputProxy{state: s}
	p.pending.ID = g.Name
	p.pending.Scale = 1

	version, err := s.display.Registry().BindName(g.Name, minVersion, maxVersion, p)
	if err != nil {
		logger.Warnf("failed to bind wl_output %d: %v", g.Name, err)
		return
	}
	p.version = version

	s.mu.Lock()
	s.outputs[g.Name] = p
	s.mu.Unlock()
}

// GlobalRemoved implements client.GlobalListener.
func (s *State) GlobalRemoved(name uint32) {
	s.mu.Lock()
	p, ok := s.outputs[name]
	delete(s.outputs, name)
	s.mu.Unlock()
	if !ok {
		return
	}

	if p.version >= releaseSinceVersion {
		_ = p.SendRequest(reqRelease)
	}
	p.MarkStale()
	s.display.Destroyed(p.ID())

	if s.handler != nil && p.ready {
		s.handler.OutputRemoved(p.current.clone())
	}
}

// Outputs returns the coalesced info of every output that has completed its
// initial burst.
func (s *State) Outputs() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Info, 0, len(s.outputs))
	for _, p := range s.outputs {
		if p.ready {
			out = append(out, p.current.clone())
		}
	}
	return out
}

// OutputInfo returns the coalesced info for one output by registry name.
func (s *State) OutputInfo(id uint32) (Info, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.outputs[id]
	if !ok || !p.ready {
		return Info{}, false
	}
	return p.current.clone(), true
}

type outputProxy struct {
	client.BaseProxy
	state   *State
	version uint32

	// pending accumulates sub-events until done commits them; only the
	// dispatch goroutine touches it.
	pending Info
	current Info
	ready   bool
}

// Dispatch implements client.Proxy.
func (p *outputProxy) Dispatch(e *client.Event) {
	switch e.Opcode {
	case eventGeometry:
		p.pending.X = e.Int32()
		p.pending.Y = e.Int32()
		p.pending.PhysicalWidth = e.Int32()
		p.pending.PhysicalHeight = e.Int32()
		p.pending.Subpixel = e.Int32()
		p.pending.Make = e.String()
		p.pending.Model = e.String()
		p.pending.Transform = e.Int32()

	case eventMode:
		flags := e.Uint32()
		mode := Mode{
			Width:     e.Int32(),
			Height:    e.Int32(),
			Refresh:   e.Int32(),
			Current:   flags&modeFlagCurrent != 0,
			Preferred: flags&modeFlagPreferred != 0,
		}
		p.applyMode(mode)

	case eventScale:
		p.pending.Scale = e.Int32()

	case eventName:
		p.pending.Name = e.String()

	case eventDescription:
		p.pending.Description = e.String()

	case eventDone:
		p.commit()
	}
}

// applyMode replaces a mode with matching dimensions and refresh, or appends
// a new one. A mode that becomes current clears the flag on the others.
func (p *outputProxy) applyMode(mode Mode) {
	if mode.Current {
		for i := range p.pending.Modes {
			p.pending.Modes[i].Current = false
		}
	}
	for i, m := range p.pending.Modes {
		if m.Width == mode.Width && m.Height == mode.Height && m.Refresh == mode.Refresh {
			p.pending.Modes[i] = mode
			return
		}
	}
	p.pending.Modes = append(p.pending.Modes, mode)
}

// commit publishes the pending state and fires exactly one callback for the
// whole update.
func (p *outputProxy) commit() {
	s := p.state

	s.mu.Lock()
	p.current = p.pending.clone()
	first := !p.ready
	p.ready = true
	info := p.current.clone()
	s.mu.Unlock()

	if s.handler == nil {
		return
	}
	if first {
		s.handler.NewOutput(info)
	} else {
		s.handler.OutputUpdated(info)
	}
}
