// Package wltest provides a scripted fake compositor for exercising the
// client stack over a real unix socketpair, without a running compositor.
package wltest

import (
	"net"
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bnema/wlkit/client"
	"github.com/bnema/wlkit/internal/wire"
)

// Server is the compositor end of a socketpair. Tests script it: write
// events with Send, assert on requests with Recv.
type Server struct {
	t    *testing.T
	sock *net.UnixConn
	conn *wire.Conn
}

// Pair returns a connected Display and the fake compositor driving it.
// Both ends close automatically when the test finishes.
func Pair(t *testing.T) (*client.Display, *Server) {
	t.Helper()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}

	clientConn := fdToUnixConn(t, fds[0], "wltest-client")
	serverConn := fdToUnixConn(t, fds[1], "wltest-server")

	display, err := client.ConnectTo(clientConn)
	if err != nil {
		t.Fatalf("connect display: %v", err)
	}

	srv := &Server{t: t, sock: serverConn, conn: wire.NewConn(serverConn)}
	t.Cleanup(func() {
		_ = display.Close()
		_ = srv.conn.Close()
	})

	// Consume the get_registry request the display sends on connect.
	msg := srv.Recv()
	if msg.Object != 1 || msg.Opcode != 1 {
		t.Fatalf("expected wl_display.get_registry, got object %d opcode %d", msg.Object, msg.Opcode)
	}

	return display, srv
}

func fdToUnixConn(t *testing.T, fd int, name string) *net.UnixConn {
	t.Helper()
	f := os.NewFile(uintptr(fd), name)
	defer f.Close()
	c, err := net.FileConn(f)
	if err != nil {
		t.Fatalf("fileconn: %v", err)
	}
	return c.(*net.UnixConn)
}

// RegistryID returns the object id the display's registry is bound to.
func RegistryID(d *client.Display) uint32 {
	return d.Registry().ID()
}

// Send writes one event to the client. Arguments follow the same typing
// rules as client request marshalling.
func (s *Server) Send(object uint32, opcode uint16, args ...interface{}) {
	s.t.Helper()
	msg := wire.NewRequest(object, opcode)
	for _, arg := range args {
		switch v := arg.(type) {
		case uint32:
			msg.PutUint32(v)
		case int32:
			msg.PutInt32(v)
		case wire.Fixed:
			msg.PutFixed(v)
		case string:
			msg.PutString(v)
		case []byte:
			msg.PutArray(v)
		case wire.FD:
			msg.PutFD(int(v))
		default:
			s.t.Fatalf("wltest: unsupported event argument type %T", arg)
		}
	}
	if err := s.conn.WriteMessage(msg); err != nil {
		s.t.Fatalf("wltest: send event: %v", err)
	}
}

// Recv reads one request from the client, failing the test after a timeout.
func (s *Server) Recv() *wire.Message {
	s.t.Helper()
	_ = s.sock.SetReadDeadline(time.Now().Add(5 * time.Second))
	msg, err := s.conn.ReadMessage()
	if err != nil {
		s.t.Fatalf("wltest: read request: %v", err)
	}
	return msg
}

// TakeFD dequeues a descriptor that arrived with a client request.
func (s *Server) TakeFD() int {
	s.t.Helper()
	fd, err := s.conn.TakeFD()
	if err != nil {
		s.t.Fatalf("wltest: %v", err)
	}
	return fd
}

// Global announces a global on the registry.
func (s *Server) Global(registry uint32, name uint32, iface string, version uint32) {
	s.Send(registry, 0, name, iface, version)
}

// GlobalRemove withdraws a global.
func (s *Server) GlobalRemove(registry uint32, name uint32) {
	s.Send(registry, 1, name)
}

// DeleteID acknowledges a client-side destructor: the server retires the
// object id via wl_display.delete_id.
func (s *Server) DeleteID(id uint32) {
	s.Send(1, 1, id)
}

// Uint32 reads the 32-bit request argument at byte offset off.
func Uint32(t *testing.T, msg *wire.Message, off int) uint32 {
	t.Helper()
	if off+4 > len(msg.Data) {
		t.Fatalf("wltest: request body too short: want %d bytes, have %d", off+4, len(msg.Data))
	}
	return le32(msg.Data[off:])
}

// BindNewID extracts the client-allocated object id from a registry bind
// request. The id is the final argument, after name, interface and version.
func BindNewID(t *testing.T, msg *wire.Message) uint32 {
	t.Helper()
	if len(msg.Data) < 4 {
		t.Fatalf("wltest: bind request too short: %d bytes", len(msg.Data))
	}
	return le32(msg.Data[len(msg.Data)-4:])
}

// ServeRoundtrip answers the next wl_display.sync request so a concurrent
// Roundtrip on the client side completes. Any requests read before the sync
// are returned for inspection.
func (s *Server) ServeRoundtrip() []*wire.Message {
	s.t.Helper()
	var before []*wire.Message
	for {
		msg := s.Recv()
		if msg.Object == 1 && msg.Opcode == 0 {
			// sync carries the new callback id as its only argument
			cb := le32(msg.Data)
			s.Send(cb, 0, uint32(0)) // wl_callback.done
			return before
		}
		before = append(before, msg)
	}
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
