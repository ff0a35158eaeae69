package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAvailable indicates a requested global is not advertised by the
	// compositor, or is advertised at a lower version than required. The
	// caller may retry with a lower version or treat the feature as
	// unsupported.
	ErrNotAvailable = errors.New("global not available")

	// ErrStaleHandle indicates an operation on a proxy whose global has been
	// removed by the compositor. The caller may re-resolve the global.
	ErrStaleHandle = errors.New("stale object handle")

	// ErrConnClosed indicates the connection was torn down while the
	// operation was in flight.
	ErrConnClosed = errors.New("connection closed")
)

// ProtocolError is a fatal connection-level error: either the compositor
// sent a wl_display.error event, or an inbound event referenced an object
// this client never created. Once raised, the display is terminal and every
// further Dispatch returns the same error.
type ProtocolError struct {
	Object  uint32
	Code    uint32
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error on object %d (code %d): %s", e.Object, e.Code, e.Message)
}
