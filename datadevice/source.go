package datadevice

import (
	"os"

	"github.com/bnema/wlkit/client"
	"github.com/bnema/wlkit/internal/logger"
)

const (
	reqSourceOffer      = 0
	reqSourceDestroy    = 1
	reqSourceSetActions = 2

	eventSourceTarget           = 0
	eventSourceSend             = 1
	eventSourceCancelled        = 2
	eventSourceDndDropPerformed = 3
	eventSourceDndFinished      = 4
	eventSourceAction           = 5
)

// SourceHandlers configures data source callbacks; nil fields are skipped.
// OnSend owns the file and must close it when done writing.
type SourceHandlers struct {
	OnSend      func(mimeType string, w *os.File)
	OnCancelled func()

	// Drag-and-drop only.
	OnTarget        func(mimeType string)
	OnDropPerformed func()
	OnFinished      func()
	OnAction        func(action Action)
}

// Source is a wl_data_source: the sending side of a selection or drag.
type Source struct {
	client.BaseProxy
	state    *State
	handlers SourceHandlers
}

// SetActions declares the drag-and-drop actions the source supports. Must be
// called before the drag starts; selections don't use actions.
func (s *Source) SetActions(actions Action) error {
	return s.SendRequest(reqSourceSetActions, uint32(actions))
}

// Destroy drops the source. A destroyed source ends any selection it backs.
func (s *Source) Destroy() error {
	err := s.SendRequest(reqSourceDestroy)
	s.MarkStale()
	s.state.display.Destroyed(s.ID())
	return err
}

// Dispatch implements client.Proxy.
func (s *Source) Dispatch(e *client.Event) {
	switch e.Opcode {
	case eventSourceTarget:
		mime := e.String()
		if s.handlers.OnTarget != nil {
			s.handlers.OnTarget(mime)
		}

	case eventSourceSend:
		mime := e.String()
		fd, err := e.FD()
		if err != nil {
			logger.Warnf("data source send event missing fd: %v", err)
			return
		}
		w := os.NewFile(uintptr(fd), "wl_data_source-send")
		if s.handlers.OnSend != nil {
			s.handlers.OnSend(mime, w)
		} else {
			w.Close()
		}

	case eventSourceCancelled:
		if s.handlers.OnCancelled != nil {
			s.handlers.OnCancelled()
		}

	case eventSourceDndDropPerformed:
		if s.handlers.OnDropPerformed != nil {
			s.handlers.OnDropPerformed()
		}

	case eventSourceDndFinished:
		if s.handlers.OnFinished != nil {
			s.handlers.OnFinished()
		}

	case eventSourceAction:
		if s.handlers.OnAction != nil {
			s.handlers.OnAction(Action(e.Uint32()))
		}
	}
}
