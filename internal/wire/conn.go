package wire

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrNoFD is returned by TakeFD when no descriptor is queued for the
// current message.
var ErrNoFD = errors.New("wire: no file descriptor available")

// Conn is a connection to a Wayland compositor socket. Reads are not
// concurrency-safe; the dispatch loop is the single reader. Writes are
// serialized internally.
type Conn struct {
	conn *net.UnixConn

	sendMu sync.Mutex

	// Descriptors received out-of-band, in arrival order. Consumed by
	// event decoding via TakeFD.
	fdMu sync.Mutex
	fds  []int
}

// Dial connects to the named Wayland display socket. An empty name falls
// back to $WAYLAND_DISPLAY, then "wayland-0". Relative names are resolved
// under $XDG_RUNTIME_DIR.
func Dial(name string) (*Conn, error) {
	if name == "" {
		name = os.Getenv("WAYLAND_DISPLAY")
		if name == "" {
			name = "wayland-0"
		}
	}
	if !filepath.IsAbs(name) {
		runDir := os.Getenv("XDG_RUNTIME_DIR")
		if runDir == "" {
			return nil, errors.New("wire: XDG_RUNTIME_DIR not set")
		}
		name = filepath.Join(runDir, name)
	}

	c, err := net.Dial("unix", name)
	if err != nil {
		return nil, fmt.Errorf("wire: failed to connect to %s: %w", name, err)
	}
	return NewConn(c.(*net.UnixConn)), nil
}

// NewConn wraps an existing unix socket connection.
func NewConn(c *net.UnixConn) *Conn {
	return &Conn{conn: c}
}

// Close closes the underlying socket and any descriptors still queued.
func (c *Conn) Close() error {
	c.fdMu.Lock()
	for _, fd := range c.fds {
		_ = unix.Close(fd)
	}
	c.fds = nil
	c.fdMu.Unlock()
	return c.conn.Close()
}

// WriteMessage frames and sends a message, transferring any queued file
// descriptors with the same sendmsg call.
func (c *Conn) WriteMessage(m *Message) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}

	var oob []byte
	if fds := m.FDs(); len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	n, oobn, err := c.conn.WriteMsgUnix(data, oob, nil)
	if err != nil {
		return fmt.Errorf("wire: send failed: %w", err)
	}
	if n != len(data) || oobn != len(oob) {
		return fmt.Errorf("wire: short send: %d/%d bytes, %d/%d oob", n, len(data), oobn, len(oob))
	}
	return nil
}

// ReadMessage reads one message from the socket. Descriptors arriving
// out-of-band are queued for TakeFD.
func (c *Conn) ReadMessage() (*Message, error) {
	var hdr [HeaderSize]byte
	if err := c.readFull(hdr[:]); err != nil {
		return nil, err
	}
	object, opcode, size := ParseHeader(hdr)
	if size < HeaderSize {
		return nil, fmt.Errorf("wire: invalid message size %d for object %d", size, object)
	}

	msg := &Message{Object: object, Opcode: opcode}
	if size > HeaderSize {
		msg.Data = make([]byte, size-HeaderSize)
		if err := c.readFull(msg.Data); err != nil {
			return nil, fmt.Errorf("wire: failed to read body: %w", err)
		}
	}
	return msg, nil
}

// readFull fills buf, collecting SCM_RIGHTS control data along the way.
func (c *Conn) readFull(buf []byte) error {
	oob := make([]byte, unix.CmsgSpace(4*maxFDsPerRead))
	read := 0
	for read < len(buf) {
		n, oobn, _, _, err := c.conn.ReadMsgUnix(buf[read:], oob)
		if err != nil {
			return err
		}
		if n == 0 && oobn == 0 {
			return io.EOF
		}
		read += n
		if oobn > 0 {
			if err := c.queueFDs(oob[:oobn]); err != nil {
				return err
			}
		}
	}
	return nil
}

// maxFDsPerRead bounds the control buffer; the protocol never packs more
// descriptors than this into one message.
const maxFDsPerRead = 28

func (c *Conn) queueFDs(oob []byte) error {
	cmsgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return fmt.Errorf("wire: bad control message: %w", err)
	}
	for _, cmsg := range cmsgs {
		fds, err := unix.ParseUnixRights(&cmsg)
		if err != nil {
			continue
		}
		c.fdMu.Lock()
		c.fds = append(c.fds, fds...)
		c.fdMu.Unlock()
	}
	return nil
}

// TakeFD dequeues the oldest received file descriptor. Event decoders call
// this once per fd argument, in argument order.
func (c *Conn) TakeFD() (int, error) {
	c.fdMu.Lock()
	defer c.fdMu.Unlock()
	if len(c.fds) == 0 {
		return -1, ErrNoFD
	}
	fd := c.fds[0]
	c.fds = c.fds[1:]
	return fd, nil
}
