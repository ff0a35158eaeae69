package shell

import (
	"encoding/binary"

	"github.com/bnema/wlkit/client"
)

const (
	reqXdgSurfaceDestroy           = 0
	reqXdgSurfaceGetToplevel       = 1
	reqXdgSurfaceGetPopup          = 2
	reqXdgSurfaceSetWindowGeometry = 3
	reqXdgSurfaceAckConfigure      = 4

	eventXdgSurfaceConfigure = 0
)

const (
	reqToplevelDestroy         = 0
	reqToplevelSetParent       = 1
	reqToplevelSetTitle        = 2
	reqToplevelSetAppID        = 3
	reqToplevelShowWindowMenu  = 4
	reqToplevelMove            = 5
	reqToplevelResize          = 6
	reqToplevelSetMaxSize      = 7
	reqToplevelSetMinSize      = 8
	reqToplevelSetMaximized    = 9
	reqToplevelUnsetMaximized  = 10
	reqToplevelSetFullscreen   = 11
	reqToplevelUnsetFullscreen = 12
	reqToplevelSetMinimized    = 13

	eventToplevelConfigure       = 0
	eventToplevelClose           = 1
	eventToplevelConfigureBounds = 2
	eventToplevelWmCapabilities  = 3
)

// ToplevelState is one state flag from a toplevel configure.
type ToplevelState uint32

const (
	StateMaximized   ToplevelState = 1
	StateFullscreen  ToplevelState = 2
	StateResizing    ToplevelState = 3
	StateActivated   ToplevelState = 4
	StateTiledLeft   ToplevelState = 5
	StateTiledRight  ToplevelState = 6
	StateTiledTop    ToplevelState = 7
	StateTiledBottom ToplevelState = 8
	StateSuspended   ToplevelState = 9
)

// ResizeEdge names which window edge a user-driven resize grabs.
type ResizeEdge uint32

const (
	EdgeNone        ResizeEdge = 0
	EdgeTop         ResizeEdge = 1
	EdgeBottom      ResizeEdge = 2
	EdgeLeft        ResizeEdge = 4
	EdgeTopLeft     ResizeEdge = 5
	EdgeBottomLeft  ResizeEdge = 6
	EdgeRight       ResizeEdge = 8
	EdgeTopRight    ResizeEdge = 9
	EdgeBottomRight ResizeEdge = 10
)

// Configure is one complete window configuration. Width or Height of zero
// means the client picks its own size.
type Configure struct {
	Width  int32
	Height int32
	States []ToplevelState

	// BoundsWidth/Height suggest a maximum size, zero when unknown.
	BoundsWidth  int32
	BoundsHeight int32

	// Capabilities lists the wm_capabilities values, empty below v5.
	Capabilities []uint32
}

// Is reports whether the configuration carries the given state flag.
func (c Configure) Is(state ToplevelState) bool {
	for _, s := range c.States {
		if s == state {
			return true
		}
	}
	return false
}

// WindowHandlers configures window callbacks; nil fields are skipped.
// OnConfigure runs once per configure sequence, after the ack has been sent:
// the window then commits a buffer of the configured size.
type WindowHandlers struct {
	OnConfigure func(serial uint32, cfg Configure)
	OnClose     func()
}

// Window is an xdg_surface/xdg_toplevel pair over a wl_surface.
type Window struct {
	shell    *State
	handlers WindowHandlers

	xdgSurface *xdgSurfaceProxy
	toplevel   *toplevelProxy

	// pending accumulates toplevel sub-events until xdg_surface.configure
	// commits them; dispatch goroutine only.
	pending Configure
	current Configure
}

// Configured returns the last acked configuration.
func (w *Window) Configured() Configure { return w.current }

// SetTitle sets the window title.
func (w *Window) SetTitle(title string) error {
	return w.toplevel.SendRequest(reqToplevelSetTitle, title)
}

// SetAppID sets the application identifier used for desktop integration.
func (w *Window) SetAppID(appID string) error {
	return w.toplevel.SendRequest(reqToplevelSetAppID, appID)
}

// SetParent makes the window a transient child of parent; nil unsets.
func (w *Window) SetParent(parent *Window) error {
	if parent == nil {
		return w.toplevel.SendRequest(reqToplevelSetParent, nil)
	}
	return w.toplevel.SendRequest(reqToplevelSetParent, parent.toplevel)
}

// SetMinSize sets the minimum size hint; zero removes the bound.
func (w *Window) SetMinSize(width, height int32) error {
	return w.toplevel.SendRequest(reqToplevelSetMinSize, width, height)
}

// SetMaxSize sets the maximum size hint; zero removes the bound.
func (w *Window) SetMaxSize(width, height int32) error {
	return w.toplevel.SendRequest(reqToplevelSetMaxSize, width, height)
}

// SetMaximized asks the compositor to maximize the window.
func (w *Window) SetMaximized() error {
	return w.toplevel.SendRequest(reqToplevelSetMaximized)
}

// UnsetMaximized asks the compositor to restore the window.
func (w *Window) UnsetMaximized() error {
	return w.toplevel.SendRequest(reqToplevelUnsetMaximized)
}

// SetFullscreen makes the window fullscreen, on a specific output when
// output is non-nil.
func (w *Window) SetFullscreen(output client.Object) error {
	if output == nil {
		return w.toplevel.SendRequest(reqToplevelSetFullscreen, nil)
	}
	return w.toplevel.SendRequest(reqToplevelSetFullscreen, output)
}

// UnsetFullscreen leaves fullscreen.
func (w *Window) UnsetFullscreen() error {
	return w.toplevel.SendRequest(reqToplevelUnsetFullscreen)
}

// SetMinimized asks the compositor to minimize the window.
func (w *Window) SetMinimized() error {
	return w.toplevel.SendRequest(reqToplevelSetMinimized)
}

// Move starts an interactive move; serial comes from the triggering input
// event.
func (w *Window) Move(seat client.Object, serial uint32) error {
	return w.toplevel.SendRequest(reqToplevelMove, seat, serial)
}

// Resize starts an interactive resize from the given edge.
func (w *Window) Resize(seat client.Object, serial uint32, edge ResizeEdge) error {
	return w.toplevel.SendRequest(reqToplevelResize, seat, serial, uint32(edge))
}

// ShowWindowMenu pops up the compositor's window menu at surface-local
// coordinates.
func (w *Window) ShowWindowMenu(seat client.Object, serial uint32, x, y int32) error {
	return w.toplevel.SendRequest(reqToplevelShowWindowMenu, seat, serial, x, y)
}

// SetWindowGeometry declares the visible bounds of the window within its
// surface.
func (w *Window) SetWindowGeometry(x, y, width, height int32) error {
	return w.xdgSurface.SendRequest(reqXdgSurfaceSetWindowGeometry, x, y, width, height)
}

// Destroy tears down the toplevel and the xdg_surface, child first as the
// protocol requires.
func (w *Window) Destroy() error {
	d := w.shell.display
	err := w.toplevel.SendRequest(reqToplevelDestroy)
	w.toplevel.MarkStale()
	d.Destroyed(w.toplevel.ID())

	if err2 := w.xdgSurface.SendRequest(reqXdgSurfaceDestroy); err == nil {
		err = err2
	}
	w.xdgSurface.MarkStale()
	d.Destroyed(w.xdgSurface.ID())
	return err
}

type xdgSurfaceProxy struct {
	client.BaseProxy
	window *Window
}

func (p *xdgSurfaceProxy) Dispatch(e *client.Event) {
	if e.Opcode != eventXdgSurfaceConfigure {
		return
	}
	serial := e.Uint32()
	p.window.commitConfigure(serial)
}

type toplevelProxy struct {
	client.BaseProxy
	window *Window
}

func (p *toplevelProxy) Dispatch(e *client.Event) {
	w := p.window
	switch e.Opcode {
	case eventToplevelConfigure:
		w.pending.Width = e.Int32()
		w.pending.Height = e.Int32()
		raw := e.Array()
		states := make([]ToplevelState, 0, len(raw)/4)
		for i := 0; i+4 <= len(raw); i += 4 {
			states = append(states, ToplevelState(binary.LittleEndian.Uint32(raw[i:])))
		}
		w.pending.States = states

	case eventToplevelConfigureBounds:
		w.pending.BoundsWidth = e.Int32()
		w.pending.BoundsHeight = e.Int32()

	case eventToplevelWmCapabilities:
		raw := e.Array()
		caps := make([]uint32, 0, len(raw)/4)
		for i := 0; i+4 <= len(raw); i += 4 {
			caps = append(caps, binary.LittleEndian.Uint32(raw[i:]))
		}
		w.pending.Capabilities = caps

	case eventToplevelClose:
		if w.handlers.OnClose != nil {
			w.handlers.OnClose()
		}
	}
}

// commitConfigure acks the sequence and fires one coalesced callback.
func (w *Window) commitConfigure(serial uint32) {
	_ = w.xdgSurface.SendRequest(reqXdgSurfaceAckConfigure, serial)
	w.current = w.pending
	w.current.States = append([]ToplevelState(nil), w.pending.States...)
	if w.handlers.OnConfigure != nil {
		w.handlers.OnConfigure(serial, w.current)
	}
}
