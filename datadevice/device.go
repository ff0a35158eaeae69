package datadevice

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/bnema/wlkit/client"
	"github.com/bnema/wlkit/internal/wire"
)

const (
	reqDeviceStartDrag    = 0
	reqDeviceSetSelection = 1
	reqDeviceRelease      = 2

	eventDeviceDataOffer = 0
	eventDeviceEnter     = 1
	eventDeviceLeave     = 2
	eventDeviceMotion    = 3
	eventDeviceDrop      = 4
	eventDeviceSelection = 5
)

const (
	reqOfferAccept     = 0
	reqOfferReceive    = 1
	reqOfferDestroy    = 2
	reqOfferFinish     = 3
	reqOfferSetActions = 4

	eventOfferOffer         = 0
	eventOfferSourceActions = 1
	eventOfferAction        = 2
)

// DeviceHandlers configures data device callbacks; nil fields are skipped.
// Offers arrive with their MIME list already complete.
type DeviceHandlers struct {
	// OnSelection fires when the selection changes; offer is nil when the
	// selection was cleared.
	OnSelection func(offer *Offer)

	// Drag-and-drop.
	OnEnter  func(serial uint32, surface uint32, x, y float64, offer *Offer)
	OnLeave  func()
	OnMotion func(time uint32, x, y float64)
	OnDrop   func()
}

// Device is the per-seat wl_data_device.
type Device struct {
	client.BaseProxy
	state    *State
	handlers DeviceHandlers

	// dispatch goroutine only: the offer announced by data_offer whose
	// role (selection or dnd) is not yet known.
	pendingOffer *Offer
	dragOffer    *Offer

	mu        sync.RWMutex
	selection *Offer
}

// Selection returns the current selection offer, nil when the clipboard is
// empty.
func (d *Device) Selection() *Offer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selection
}

// SetSelection makes source the clipboard content; a nil source clears it.
// serial must come from the input event that triggered the copy.
func (d *Device) SetSelection(source *Source, serial uint32) error {
	if source == nil {
		return d.SendRequest(reqDeviceSetSelection, nil, serial)
	}
	return d.SendRequest(reqDeviceSetSelection, source, serial)
}

// StartDrag begins a drag from origin. icon may be nil.
func (d *Device) StartDrag(source *Source, origin, icon client.Object, serial uint32) error {
	if icon == nil {
		return d.SendRequest(reqDeviceStartDrag, source, origin, nil, serial)
	}
	return d.SendRequest(reqDeviceStartDrag, source, origin, icon, serial)
}

// Release destroys the device.
func (d *Device) Release() error {
	err := d.SendRequest(reqDeviceRelease)
	d.MarkStale()
	d.state.display.Destroyed(d.ID())
	return err
}

// Dispatch implements client.Proxy.
func (d *Device) Dispatch(e *client.Event) {
	switch e.Opcode {
	case eventDeviceDataOffer:
		id := e.Uint32()
		offer := &Offer{state: d.state}
		d.state.display.RegisterID(id, offer)
		d.pendingOffer = offer

	case eventDeviceEnter:
		serial := e.Uint32()
		surface := e.Uint32()
		x := e.Fixed().Float64()
		y := e.Fixed().Float64()
		offerID := e.Uint32()
		offer := d.takePending(offerID)
		d.dragOffer = offer
		if d.handlers.OnEnter != nil {
			d.handlers.OnEnter(serial, surface, x, y, offer)
		}

	case eventDeviceLeave:
		if d.dragOffer != nil {
			d.dragOffer.Destroy()
			d.dragOffer = nil
		}
		if d.handlers.OnLeave != nil {
			d.handlers.OnLeave()
		}

	case eventDeviceMotion:
		time := e.Uint32()
		x := e.Fixed().Float64()
		y := e.Fixed().Float64()
		if d.handlers.OnMotion != nil {
			d.handlers.OnMotion(time, x, y)
		}

	case eventDeviceDrop:
		if d.handlers.OnDrop != nil {
			d.handlers.OnDrop()
		}

	case eventDeviceSelection:
		offerID := e.Uint32()
		offer := d.takePending(offerID)

		d.mu.Lock()
		old := d.selection
		d.selection = offer
		d.mu.Unlock()
		if old != nil && old != offer {
			old.Destroy()
		}
		if d.handlers.OnSelection != nil {
			d.handlers.OnSelection(offer)
		}
	}
}

// takePending resolves an offer id announced earlier by data_offer. A zero
// id means no offer.
func (d *Device) takePending(id uint32) *Offer {
	if id == 0 {
		return nil
	}
	if d.pendingOffer != nil && d.pendingOffer.ID() == id {
		offer := d.pendingOffer
		d.pendingOffer = nil
		return offer
	}
	if p, ok := d.state.display.Object(id); ok {
		if offer, ok := p.(*Offer); ok {
			return offer
		}
	}
	return nil
}

// Offer is a wl_data_offer: the receiving side of a selection or drag.
type Offer struct {
	client.BaseProxy
	state *State

	mu            sync.RWMutex
	mimeTypes     []string
	sourceActions Action
	action        Action
}

// MimeTypes returns the formats the offer can produce.
func (o *Offer) MimeTypes() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]string(nil), o.mimeTypes...)
}

// Offers reports whether the offer can produce mimeType.
func (o *Offer) Offers(mimeType string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, m := range o.mimeTypes {
		if m == mimeType {
			return true
		}
	}
	return false
}

// SourceActions returns the drag actions the source supports.
func (o *Offer) SourceActions() Action {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sourceActions
}

// Action returns the action chosen by the compositor.
func (o *Offer) Action() Action {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.action
}

// Receive asks the source to write mimeType into a pipe and returns the read
// end. Dispatch must keep running for the data to flow; read from another
// goroutine or after the transfer completes.
func (o *Offer) Receive(mimeType string) (*os.File, error) {
	if !o.Offers(mimeType) {
		return nil, fmt.Errorf("offer has no %q: %w", mimeType, client.ErrNotAvailable)
	}
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("datadevice: pipe: %w", err)
	}
	err := o.SendRequest(reqOfferReceive, mimeType, wire.FD(fds[1]))
	unix.Close(fds[1])
	if err != nil {
		unix.Close(fds[0])
		return nil, err
	}
	return os.NewFile(uintptr(fds[0]), "wl_data_offer-receive"), nil
}

// Accept tells a drag source which MIME type the target would take; empty
// rejects the drop.
func (o *Offer) Accept(serial uint32, mimeType string) error {
	if mimeType == "" {
		return o.SendRequest(reqOfferAccept, serial, nil)
	}
	return o.SendRequest(reqOfferAccept, serial, mimeType)
}

// SetActions negotiates drag actions (v3).
func (o *Offer) SetActions(actions, preferred Action) error {
	return o.SendRequest(reqOfferSetActions, uint32(actions), uint32(preferred))
}

// Finish tells the source a dnd transfer completed (v3).
func (o *Offer) Finish() error {
	return o.SendRequest(reqOfferFinish)
}

// Destroy releases the offer.
func (o *Offer) Destroy() {
	_ = o.SendRequest(reqOfferDestroy)
	o.MarkStale()
	o.state.display.Destroyed(o.ID())
}

// Dispatch implements client.Proxy.
func (o *Offer) Dispatch(e *client.Event) {
	switch e.Opcode {
	case eventOfferOffer:
		mime := e.String()
		o.mu.Lock()
		o.mimeTypes = append(o.mimeTypes, mime)
		o.mu.Unlock()
	case eventOfferSourceActions:
		o.mu.Lock()
		o.sourceActions = Action(e.Uint32())
		o.mu.Unlock()
	case eventOfferAction:
		o.mu.Lock()
		o.action = Action(e.Uint32())
		o.mu.Unlock()
	}
}
