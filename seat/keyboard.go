package seat

import (
	"encoding/binary"
	"os"

	"github.com/bnema/wlkit/client"
	"github.com/bnema/wlkit/internal/logger"
)

const (
	reqKeyboardRelease = 0

	eventKeymap     = 0
	eventKeyEnter   = 1
	eventKeyLeave   = 2
	eventKey        = 3
	eventModifiers  = 4
	eventRepeatInfo = 5
)

// KeymapFormat identifies the keymap encoding.
type KeymapFormat uint32

const (
	KeymapNone  KeymapFormat = 0
	KeymapXKBv1 KeymapFormat = 1
)

// KeyState is the state of a key.
type KeyState uint32

const (
	KeyReleased KeyState = 0
	KeyPressed  KeyState = 1
)

// Modifiers is the xkb modifier state delivered with the modifiers event.
type Modifiers struct {
	Depressed uint32
	Latched   uint32
	Locked    uint32
	Group     uint32
}

// KeyboardHandlers configures keyboard callbacks; nil fields are skipped.
// OnKeymap receives the keymap file; the callback owns it and must close it.
type KeyboardHandlers struct {
	OnKeymap     func(format KeymapFormat, file *os.File, size uint32)
	OnEnter      func(serial uint32, surface uint32, keys []uint32)
	OnLeave      func(serial uint32, surface uint32)
	OnKey        func(serial, time uint32, key uint32, state KeyState)
	OnModifiers  func(serial uint32, mods Modifiers)
	OnRepeatInfo func(rate, delay int32)
}

// Keyboard is one wl_keyboard.
type Keyboard struct {
	client.BaseProxy
	seat     *Seat
	handlers KeyboardHandlers

	focus uint32
}

// Focus returns the id of the surface with keyboard focus, zero when none.
func (k *Keyboard) Focus() uint32 { return k.focus }

func (k *Keyboard) release() {
	if k.seat.version >= 3 {
		_ = k.SendRequest(reqKeyboardRelease)
	}
	k.MarkStale()
	k.seat.state.display.Destroyed(k.ID())
}

// Dispatch implements client.Proxy.
func (k *Keyboard) Dispatch(e *client.Event) {
	switch e.Opcode {
	case eventKeymap:
		format := KeymapFormat(e.Uint32())
		fd, err := e.FD()
		if err != nil {
			logger.Warnf("keymap event missing fd: %v", err)
			return
		}
		size := e.Uint32()
		file := os.NewFile(uintptr(fd), "wl_keyboard-keymap")
		if k.handlers.OnKeymap != nil {
			k.handlers.OnKeymap(format, file, size)
		} else {
			file.Close()
		}

	case eventKeyEnter:
		serial := e.Uint32()
		surface := e.Uint32()
		raw := e.Array()
		keys := make([]uint32, 0, len(raw)/4)
		for i := 0; i+4 <= len(raw); i += 4 {
			keys = append(keys, binary.LittleEndian.Uint32(raw[i:]))
		}
		k.focus = surface
		if k.handlers.OnEnter != nil {
			k.handlers.OnEnter(serial, surface, keys)
		}

	case eventKeyLeave:
		serial := e.Uint32()
		surface := e.Uint32()
		if k.focus == surface {
			k.focus = 0
		}
		if k.handlers.OnLeave != nil {
			k.handlers.OnLeave(serial, surface)
		}

	case eventKey:
		serial := e.Uint32()
		time := e.Uint32()
		key := e.Uint32()
		state := KeyState(e.Uint32())
		if k.handlers.OnKey != nil {
			k.handlers.OnKey(serial, time, key, state)
		}

	case eventModifiers:
		serial := e.Uint32()
		mods := Modifiers{
			Depressed: e.Uint32(),
			Latched:   e.Uint32(),
			Locked:    e.Uint32(),
			Group:     e.Uint32(),
		}
		if k.handlers.OnModifiers != nil {
			k.handlers.OnModifiers(serial, mods)
		}

	case eventRepeatInfo:
		rate := e.Int32()
		delay := e.Int32()
		if k.handlers.OnRepeatInfo != nil {
			k.handlers.OnRepeatInfo(rate, delay)
		}
	}
}
