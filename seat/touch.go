package seat

import "github.com/bnema/wlkit/client"

const (
	reqTouchRelease = 0

	eventTouchDown        = 0
	eventTouchUp          = 1
	eventTouchMotion      = 2
	eventTouchFrame       = 3
	eventTouchCancel      = 4
	eventTouchShape       = 5
	eventTouchOrientation = 6
)

// TouchPoint is the state of one contact within a frame.
type TouchPoint struct {
	ID      int32
	Surface uint32
	X, Y    float64
	// Down and Up mark state transitions that happened in this frame.
	Down bool
	Up   bool
	// Major and Minor are the contact ellipse axes, zero when unknown.
	Major, Minor float64
	Orientation  float64
}

// TouchHandlers configures touch callbacks. OnFrame delivers the contacts
// that changed in one frame; OnCancel voids the current gesture.
type TouchHandlers struct {
	OnFrame  func(points []TouchPoint)
	OnCancel func()
}

// Touch is one wl_touch. Per-contact sub-events are accumulated and
// delivered at each frame boundary.
type Touch struct {
	client.BaseProxy
	seat     *Seat
	handlers TouchHandlers

	// dispatch goroutine only
	pending []TouchPoint
}

func (t *Touch) release() {
	if t.seat.version >= 3 {
		_ = t.SendRequest(reqTouchRelease)
	}
	t.MarkStale()
	t.seat.state.display.Destroyed(t.ID())
}

// point returns the pending entry for a contact id, appending one if needed.
func (t *Touch) point(id int32) *TouchPoint {
	for i := range t.pending {
		if t.pending[i].ID == id {
			return &t.pending[i]
		}
	}
	t.pending = append(t.pending, TouchPoint{ID: id})
	return &t.pending[len(t.pending)-1]
}

// Dispatch implements client.Proxy.
func (t *Touch) Dispatch(e *client.Event) {
	switch e.Opcode {
	case eventTouchDown:
		e.Uint32() // serial
		e.Uint32() // time
		surface := e.Uint32()
		id := e.Int32()
		x := e.Fixed().Float64()
		y := e.Fixed().Float64()
		p := t.point(id)
		p.Surface = surface
		p.X, p.Y = x, y
		p.Down = true

	case eventTouchUp:
		e.Uint32() // serial
		e.Uint32() // time
		id := e.Int32()
		t.point(id).Up = true

	case eventTouchMotion:
		e.Uint32() // time
		id := e.Int32()
		x := e.Fixed().Float64()
		y := e.Fixed().Float64()
		p := t.point(id)
		p.X, p.Y = x, y

	case eventTouchShape:
		id := e.Int32()
		p := t.point(id)
		p.Major = e.Fixed().Float64()
		p.Minor = e.Fixed().Float64()

	case eventTouchOrientation:
		id := e.Int32()
		t.point(id).Orientation = e.Fixed().Float64()

	case eventTouchFrame:
		if len(t.pending) > 0 && t.handlers.OnFrame != nil {
			t.handlers.OnFrame(t.pending)
		}
		t.pending = t.pending[:0]

	case eventTouchCancel:
		t.pending = t.pending[:0]
		if t.handlers.OnCancel != nil {
			t.handlers.OnCancel()
		}
	}
}
