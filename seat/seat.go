// Package seat tracks wl_seat globals and their input devices. Devices are
// created on demand per capability and retired automatically when the
// compositor withdraws the capability or the seat.
package seat

import (
	"fmt"
	"sync"

	"github.com/bnema/wlkit/client"
	"github.com/bnema/wlkit/internal/logger"
)

const (
	interfaceName = "wl_seat"
	maxVersion    = 7
)

const (
	reqGetPointer  = 0
	reqGetKeyboard = 1
	reqGetTouch    = 2
	reqRelease     = 3

	eventCapabilities = 0
	eventName         = 1
)

const seatReleaseSinceVersion = 5

// Capability is a bitmask of the input devices a seat offers.
type Capability uint32

const (
	CapabilityPointer  Capability = 1 << 0
	CapabilityKeyboard Capability = 1 << 1
	CapabilityTouch    Capability = 1 << 2
)

func (c Capability) String() string {
	s := ""
	if c&CapabilityPointer != 0 {
		s += "pointer "
	}
	if c&CapabilityKeyboard != 0 {
		s += "keyboard "
	}
	if c&CapabilityTouch != 0 {
		s += "touch "
	}
	if s == "" {
		return "none"
	}
	return s[:len(s)-1]
}

// Handler receives seat lifecycle callbacks on the dispatch goroutine.
type Handler interface {
	// NewSeat fires when a seat global is bound. Capabilities and name
	// arrive afterwards.
	NewSeat(s *Seat)
	// SeatCapabilitiesChanged fires whenever the capability set changes.
	SeatCapabilitiesChanged(s *Seat)
	// SeatRemoved fires when the compositor withdraws the seat.
	SeatRemoved(s *Seat)
}

// State binds every advertised wl_seat.
type State struct {
	display *client.Display
	handler Handler

	mu    sync.RWMutex
	seats map[uint32]*Seat
}

// NewState registers with the registry; handler may be nil.
func NewState(display *client.Display, handler Handler) *State {
	s := &State{
		display: display,
		handler: handler,
		seats:   make(map[uint32]*Seat),
	}
	display.Registry().AddListener(s)
	return s
}

// GlobalAdded implements client.GlobalListener.
func (s *State) GlobalAdded(g client.Global) {
	if g.Interface != interfaceName {
		return
	}
	seat := &Seat{state: s, regName: g.Name}
	version, err := s.display.Registry().BindName(g.Name, 1, maxVersion, seat)
	if err != nil {
		logger.Warnf("failed to bind wl_seat %d: %v", g.Name, err)
		return
	}
	seat.version = version

	s.mu.Lock()
	s.seats[g.Name] = seat
	s.mu.Unlock()

	if s.handler != nil {
		s.handler.NewSeat(seat)
	}
}

// GlobalRemoved implements client.GlobalListener.
func (s *State) GlobalRemoved(name uint32) {
	s.mu.Lock()
	seat, ok := s.seats[name]
	delete(s.seats, name)
	s.mu.Unlock()
	if !ok {
		return
	}
	seat.retire()
	if s.handler != nil {
		s.handler.SeatRemoved(seat)
	}
}

// Seats returns the currently bound seats.
func (s *State) Seats() []*Seat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Seat, 0, len(s.seats))
	for _, seat := range s.seats {
		out = append(out, seat)
	}
	return out
}

// Seat is one wl_seat and its devices.
type Seat struct {
	client.BaseProxy
	state   *State
	regName uint32
	version uint32

	mu       sync.RWMutex
	caps     Capability
	name     string
	pointer  *Pointer
	keyboard *Keyboard
	touch    *Touch
}

// Name returns the seat's compositor-assigned name ("seat0"). Empty until
// the name event arrives.
func (s *Seat) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// Capabilities returns the seat's current capability set.
func (s *Seat) Capabilities() Capability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caps
}

// HasPointer reports whether the seat offers a pointer.
func (s *Seat) HasPointer() bool { return s.Capabilities()&CapabilityPointer != 0 }

// HasKeyboard reports whether the seat offers a keyboard.
func (s *Seat) HasKeyboard() bool { return s.Capabilities()&CapabilityKeyboard != 0 }

// HasTouch reports whether the seat offers touch input.
func (s *Seat) HasTouch() bool { return s.Capabilities()&CapabilityTouch != 0 }

// GetPointer creates the seat's pointer device. It fails with
// ErrNotAvailable when the seat has no pointer capability.
func (s *Seat) GetPointer(handlers PointerHandlers) (*Pointer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.caps&CapabilityPointer == 0 {
		return nil, fmt.Errorf("seat %q has no pointer: %w", s.name, client.ErrNotAvailable)
	}
	if s.pointer != nil {
		return s.pointer, nil
	}
	p := &Pointer{seat: s, handlers: handlers}
	if err := s.newDevice(reqGetPointer, p); err != nil {
		return nil, err
	}
	s.pointer = p
	return p, nil
}

// GetKeyboard creates the seat's keyboard device. It fails with
// ErrNotAvailable when the seat has no keyboard capability.
func (s *Seat) GetKeyboard(handlers KeyboardHandlers) (*Keyboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.caps&CapabilityKeyboard == 0 {
		return nil, fmt.Errorf("seat %q has no keyboard: %w", s.name, client.ErrNotAvailable)
	}
	if s.keyboard != nil {
		return s.keyboard, nil
	}
	k := &Keyboard{seat: s, handlers: handlers}
	if err := s.newDevice(reqGetKeyboard, k); err != nil {
		return nil, err
	}
	s.keyboard = k
	return k, nil
}

// GetTouch creates the seat's touch device. It fails with ErrNotAvailable
// when the seat has no touch capability.
func (s *Seat) GetTouch(handlers TouchHandlers) (*Touch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.caps&CapabilityTouch == 0 {
		return nil, fmt.Errorf("seat %q has no touch: %w", s.name, client.ErrNotAvailable)
	}
	if s.touch != nil {
		return s.touch, nil
	}
	tp := &Touch{seat: s, handlers: handlers}
	if err := s.newDevice(reqGetTouch, tp); err != nil {
		return nil, err
	}
	s.touch = tp
	return tp, nil
}

func (s *Seat) newDevice(opcode uint16, p client.Proxy) error {
	d := s.state.display
	d.Register(p)
	if err := s.SendRequest(opcode, p); err != nil {
		d.Unregister(p.ID())
		return err
	}
	return nil
}

// Dispatch implements client.Proxy.
func (s *Seat) Dispatch(e *client.Event) {
	switch e.Opcode {
	case eventCapabilities:
		caps := Capability(e.Uint32())
		s.applyCapabilities(caps)
		if s.state.handler != nil {
			s.state.handler.SeatCapabilitiesChanged(s)
		}
	case eventName:
		s.mu.Lock()
		s.name = e.String()
		s.mu.Unlock()
	}
}

// applyCapabilities updates the set and retires devices whose capability was
// withdrawn.
func (s *Seat) applyCapabilities(caps Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lost := s.caps &^ caps
	s.caps = caps

	if lost&CapabilityPointer != 0 && s.pointer != nil {
		s.pointer.release()
		s.pointer = nil
	}
	if lost&CapabilityKeyboard != 0 && s.keyboard != nil {
		s.keyboard.release()
		s.keyboard = nil
	}
	if lost&CapabilityTouch != 0 && s.touch != nil {
		s.touch.release()
		s.touch = nil
	}
}

// retire releases the seat's devices and the seat itself after a global
// remove.
func (s *Seat) retire() {
	s.mu.Lock()
	if s.pointer != nil {
		s.pointer.release()
		s.pointer = nil
	}
	if s.keyboard != nil {
		s.keyboard.release()
		s.keyboard = nil
	}
	if s.touch != nil {
		s.touch.release()
		s.touch = nil
	}
	s.caps = 0
	s.mu.Unlock()

	if s.version >= seatReleaseSinceVersion {
		_ = s.SendRequest(reqRelease)
	}
	s.MarkStale()
	s.state.display.Destroyed(s.ID())
}
