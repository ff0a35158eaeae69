// Package datadevice implements wl_data_device_manager: clipboard selections
// and drag-and-drop. Offers accumulate their MIME types as events arrive and
// are handed to the application only at selection or enter time, complete.
package datadevice

import (
	"fmt"
	"sync"

	"github.com/bnema/wlkit/client"
	"github.com/bnema/wlkit/internal/logger"
)

const (
	interfaceName = "wl_data_device_manager"
	maxVersion    = 3
)

const (
	reqManagerCreateSource = 0
	reqManagerGetDevice    = 1
)

// Action is a drag-and-drop action bitmask.
type Action uint32

const (
	ActionNone Action = 0
	ActionCopy Action = 1 << 0
	ActionMove Action = 1 << 1
	ActionAsk  Action = 1 << 2
)

// State binds wl_data_device_manager.
type State struct {
	display *client.Display

	mu      sync.RWMutex
	proxy   *managerProxy
	version uint32
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
	version, err := s.display.Registry().BindName(g.Name, 1, maxVersion, p)
	if err != nil {
		logger.Warnf("failed to bind wl_data_device_manager: %v", err)
		return
	}
	s.proxy = p
	s.version = version
}

// GlobalRemoved implements client.GlobalListener.
func (s *State) GlobalRemoved(name uint32) {}

// Bound reports whether the manager has been bound yet.
func (s *State) Bound() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proxy != nil
}

func (s *State) manager() (*managerProxy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.proxy == nil {
		return nil, fmt.Errorf("wl_data_device_manager not bound: %w", client.ErrNotAvailable)
	}
	return s.proxy, nil
}

// CreateSource creates a data source offering the given MIME types. The
// source serves paste requests through its handlers until cancelled.
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

// GetDevice returns the data device for a seat.
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
