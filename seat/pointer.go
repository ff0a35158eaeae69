package seat

import "github.com/bnema/wlkit/client"

const (
	reqPointerSetCursor = 0
	reqPointerRelease   = 1

	eventPointerEnter        = 0
	eventPointerLeave        = 1
	eventPointerMotion       = 2
	eventPointerButton       = 3
	eventPointerAxis         = 4
	eventPointerFrame        = 5
	eventPointerAxisSource   = 6
	eventPointerAxisStop     = 7
	eventPointerAxisDiscrete = 8
	eventPointerAxisValue120 = 9
)

const pointerFrameSinceVersion = 5

// ButtonState is the state of a pointer button.
type ButtonState uint32

const (
	ButtonReleased ButtonState = 0
	ButtonPressed  ButtonState = 1
)

// AxisSource describes what generated a scroll.
type AxisSource uint32

const (
	AxisSourceWheel      AxisSource = 0
	AxisSourceFinger     AxisSource = 1
	AxisSourceContinuous AxisSource = 2
	AxisSourceWheelTilt  AxisSource = 3
)

const (
	axisVertical   = 0
	axisHorizontal = 1
)

// PointerEventKind discriminates the events inside a frame.
type PointerEventKind int

const (
	PointerEnter PointerEventKind = iota
	PointerLeave
	PointerMotion
	PointerButton
	PointerAxis
)

// AxisScroll is the accumulated scroll on one axis within a frame.
type AxisScroll struct {
	// Absolute is the scroll distance in surface-local units.
	Absolute float64
	// Discrete is the scroll in whole wheel steps.
	Discrete int32
	// Value120 is the scroll in 1/120 steps.
	Value120 int32
	// Stop marks the end of a kinetic scroll.
	Stop bool
}

// PointerEvent is one logical pointer event. Fields are populated per Kind:
// Surface and position for enter, Surface for leave, position for motion,
// Button and State for button, the axis fields for axis.
type PointerEvent struct {
	Kind    PointerEventKind
	Serial  uint32
	Time    uint32
	Surface uint32
	X, Y    float64

	Button uint32
	State  ButtonState

	Horizontal AxisScroll
	Vertical   AxisScroll
	Source     AxisSource
	HasSource  bool
}

// PointerHandlers configures pointer callbacks. OnFrame receives every event
// of one hardware frame at once, so a diagonal scroll or an
// enter-with-position arrives as a single unit. The slice is reused across
// frames; copy it to retain.
type PointerHandlers struct {
	OnFrame func(events []PointerEvent)
}

// Pointer is one wl_pointer. Sub-events are buffered between frame
// boundaries and delivered together. On compositors older than v5 each
// event is its own frame.
type Pointer struct {
	client.BaseProxy
	seat     *Seat
	handlers PointerHandlers

	// dispatch goroutine only
	pending []PointerEvent
	focus   uint32
}

// Focus returns the id of the surface the pointer is over, zero when none.
func (p *Pointer) Focus() uint32 { return p.focus }

// SetCursor sets the cursor image from a surface; a nil surface hides the
// cursor. serial must come from the latest enter event.
func (p *Pointer) SetCursor(serial uint32, surface client.Object, hotspotX, hotspotY int32) error {
	if surface == nil {
		return p.SendRequest(reqPointerSetCursor, serial, nil, hotspotX, hotspotY)
	}
	return p.SendRequest(reqPointerSetCursor, serial, surface, hotspotX, hotspotY)
}

// release retires the device; the seat lock is held.
func (p *Pointer) release() {
	if p.seat.version >= 3 {
		_ = p.SendRequest(reqPointerRelease)
	}
	p.MarkStale()
	p.seat.state.display.Destroyed(p.ID())
}

// Dispatch implements client.Proxy.
func (p *Pointer) Dispatch(e *client.Event) {
	switch e.Opcode {
	case eventPointerEnter:
		serial := e.Uint32()
		surface := e.Uint32()
		x := e.Fixed().Float64()
		y := e.Fixed().Float64()
		p.focus = surface
		p.pending = append(p.pending, PointerEvent{
			Kind: PointerEnter, Serial: serial, Surface: surface, X: x, Y: y,
		})

	case eventPointerLeave:
		serial := e.Uint32()
		surface := e.Uint32()
		if p.focus == surface {
			p.focus = 0
		}
		p.pending = append(p.pending, PointerEvent{
			Kind: PointerLeave, Serial: serial, Surface: surface,
		})

	case eventPointerMotion:
		time := e.Uint32()
		x := e.Fixed().Float64()
		y := e.Fixed().Float64()
		p.pending = append(p.pending, PointerEvent{
			Kind: PointerMotion, Time: time, Surface: p.focus, X: x, Y: y,
		})

	case eventPointerButton:
		serial := e.Uint32()
		time := e.Uint32()
		button := e.Uint32()
		state := ButtonState(e.Uint32())
		p.pending = append(p.pending, PointerEvent{
			Kind: PointerButton, Serial: serial, Time: time, Surface: p.focus,
			Button: button, State: state,
		})

	case eventPointerAxis:
		time := e.Uint32()
		axis := e.Uint32()
		value := e.Fixed().Float64()
		ev := p.axisEvent()
		ev.Time = time
		if axis == axisHorizontal {
			ev.Horizontal.Absolute += value
		} else {
			ev.Vertical.Absolute += value
		}

	case eventPointerAxisSource:
		ev := p.axisEvent()
		ev.Source = AxisSource(e.Uint32())
		ev.HasSource = true

	case eventPointerAxisStop:
		ev := p.axisEvent()
		ev.Time = e.Uint32()
		if e.Uint32() == axisHorizontal {
			ev.Horizontal.Stop = true
		} else {
			ev.Vertical.Stop = true
		}

	case eventPointerAxisDiscrete:
		ev := p.axisEvent()
		axis := e.Uint32()
		steps := e.Int32()
		if axis == axisHorizontal {
			ev.Horizontal.Discrete += steps
		} else {
			ev.Vertical.Discrete += steps
		}

	case eventPointerAxisValue120:
		ev := p.axisEvent()
		axis := e.Uint32()
		v := e.Int32()
		if axis == axisHorizontal {
			ev.Horizontal.Value120 += v
		} else {
			ev.Vertical.Value120 += v
		}

	case eventPointerFrame:
		p.flush()
		return
	}

	// Pre-frame compositors never send a frame terminator: every event is
	// delivered on its own.
	if p.seat.version < pointerFrameSinceVersion {
		p.flush()
	}
}

// axisEvent returns the frame's single axis accumulator, appending one if
// the frame has none yet. Consecutive axis sub-events merge into it.
func (p *Pointer) axisEvent() *PointerEvent {
	if n := len(p.pending); n > 0 && p.pending[n-1].Kind == PointerAxis {
		return &p.pending[n-1]
	}
	p.pending = append(p.pending, PointerEvent{Kind: PointerAxis, Surface: p.focus})
	return &p.pending[len(p.pending)-1]
}

func (p *Pointer) flush() {
	if len(p.pending) == 0 {
		return
	}
	if p.handlers.OnFrame != nil {
		p.handlers.OnFrame(p.pending)
	}
	p.pending = p.pending[:0]
}
