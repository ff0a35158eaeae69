// Package primaryselection implements
// zwp_primary_selection_device_manager_v1: the middle-click paste selection.
// It mirrors the core clipboard but with no drag-and-drop surface.
package primaryselection

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/bnema/wlkit/client"
	"github.com/bnema/wlkit/internal/logger"
	"github.com/bnema/wlkit/internal/wire"
)

const (
	interfaceName = "zwp_primary_selection_device_manager_v1"
	maxVersion    = 1
)

const (
	reqManagerCreateSource = 0
	reqManagerGetDevice    = 1
	reqManagerDestroy      = 2
)

const (
	reqSourceOffer   = 0
	reqSourceDestroy = 1

	eventSourceSend      = 0
	eventSourceCancelled = 1
)

const (
	reqDeviceSetSelection = 0
	reqDeviceDestroy      = 1

	eventDeviceDataOffer = 0
	eventDeviceSelection = 1
)

const (
	reqOfferReceive = 0
	reqOfferDestroy = 1

	eventOfferOffer = 0
)

// State binds the primary selection manager.
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
		logger.Warnf("failed to bind primary selection manager: %v", err)
		return
	}
	s.proxy = p
}

// GlobalRemoved implements client.GlobalListener.
func (s *State) GlobalRemoved(name uint32) {}

// Bound reports whether the compositor supports the primary selection.
func (s *State) Bound() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proxy != nil
}

func (s *State) manager() (*managerProxy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.proxy == nil {
		return nil, fmt.Errorf("primary selection manager not bound: %w", client.ErrNotAvailable)
	}
	return s.proxy, nil
}

// SourceHandlers configures source callbacks. OnSend owns the file and must
// close it.
type SourceHandlers struct {
	OnSend      func(mimeType string, w *os.File)
	OnCancelled func()
}

// CreateSource creates a primary selection source offering the given MIME
// types.
func (s *State) CreateSource(mimeTypes []string, handlers SourceHandlers) (*Source, error) {
	m, err := s.manager()
	if err != nil {
		return nil, err
	}
	src := &Source{state: s, handlers: handlers}
	s.display.Register(src)
	if err := m.SendRequest(reqManagerCreateSource, src); err != nil {
		s.display.Unregister(src.ID())
		return nil, err
	}
	for _, mime := range mimeTypes {
		if err := src.SendRequest(reqSourceOffer, mime); err != nil {
			return nil, err
		}
	}
	return src, nil
}

// DeviceHandlers configures device callbacks. OnSelection receives offers
// with their MIME list complete; nil means the selection was cleared.
type DeviceHandlers struct {
	OnSelection func(offer *Offer)
}

// GetDevice returns the primary selection device for a seat.
func (s *State) GetDevice(seat client.Object, handlers DeviceHandlers) (*Device, error) {
	m, err := s.manager()
	if err != nil {
		return nil, err
	}
	dev := &Device{state: s, handlers: handlers}
	s.display.Register(dev)
	if err := m.SendRequest(reqManagerGetDevice, dev, seat); err != nil {
		s.display.Unregister(dev.ID())
		return nil, err
	}
	return dev, nil
}

// Source is a zwp_primary_selection_source_v1.
type Source struct {
	client.BaseProxy
	state    *State
	handlers SourceHandlers
}

// Destroy drops the source, ending any selection it backs.
func (s *Source) Destroy() error {
	err := s.SendRequest(reqSourceDestroy)
	s.MarkStale()
	s.state.display.Destroyed(s.ID())
	return err
}

// Dispatch implements client.Proxy.
func (s *Source) Dispatch(e *client.Event) {
	switch e.Opcode {
	case eventSourceSend:
		mime := e.String()
		fd, err := e.FD()
		if err != nil {
			logger.Warnf("primary selection send event missing fd: %v", err)
			return
		}
		w := os.NewFile(uintptr(fd), "primary-selection-send")
		if s.handlers.OnSend != nil {
			s.handlers.OnSend(mime, w)
		} else {
			w.Close()
		}
	case eventSourceCancelled:
		if s.handlers.OnCancelled != nil {
			s.handlers.OnCancelled()
		}
	}
}

// Device is the per-seat zwp_primary_selection_device_v1.
type Device struct {
	client.BaseProxy
	state    *State
	handlers DeviceHandlers

	pendingOffer *Offer // dispatch goroutine only

	mu        sync.RWMutex
	selection *Offer
}

// Selection returns the current primary selection offer, nil when empty.
func (d *Device) Selection() *Offer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selection
}

// SetSelection makes source the primary selection; nil clears it. serial
// must come from the triggering input event.
func (d *Device) SetSelection(source *Source, serial uint32) error {
	if source == nil {
		return d.SendRequest(reqDeviceSetSelection, nil, serial)
	}
	return d.SendRequest(reqDeviceSetSelection, source, serial)
}

// Destroy releases the device.
func (d *Device) Destroy() error {
	err := d.SendRequest(reqDeviceDestroy)
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

	case eventDeviceSelection:
		offerID := e.Uint32()
		var offer *Offer
		if offerID != 0 {
			if d.pendingOffer != nil && d.pendingOffer.ID() == offerID {
				offer = d.pendingOffer
			} else if p, ok := d.state.display.Object(offerID); ok {
				offer, _ = p.(*Offer)
			}
		}
		d.pendingOffer = nil

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

// Offer is a zwp_primary_selection_offer_v1.
type Offer struct {
	client.BaseProxy
	state *State

	mu        sync.RWMutex
	mimeTypes []string
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

// Receive asks the source to write mimeType into a pipe and returns the read
// end.
func (o *Offer) Receive(mimeType string) (*os.File, error) {
	if !o.Offers(mimeType) {
		return nil, fmt.Errorf("offer has no %q: %w", mimeType, client.ErrNotAvailable)
	}
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("primaryselection: pipe: %w", err)
	}
	err := o.SendRequest(reqOfferReceive, mimeType, wire.FD(fds[1]))
	unix.Close(fds[1])
	if err != nil {
		unix.Close(fds[0])
		return nil, err
	}
	return os.NewFile(uintptr(fds[0]), "primary-selection-receive"), nil
}

// Destroy releases the offer.
func (o *Offer) Destroy() {
	_ = o.SendRequest(reqOfferDestroy)
	o.MarkStale()
	o.state.display.Destroyed(o.ID())
}

// Dispatch implements client.Proxy.
func (o *Offer) Dispatch(e *client.Event) {
	if e.Opcode != eventOfferOffer {
		return
	}
	mime := e.String()
	o.mu.Lock()
	o.mimeTypes = append(o.mimeTypes, mime)
	o.mu.Unlock()
}
