// Package wire implements the Wayland wire format: message framing,
// argument marshalling and file descriptor passing over the display socket.
package wire

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the size in bytes of a message header: the target object id
// followed by a packed size/opcode word.
const HeaderSize = 8

// MaxMessageSize is the largest message the protocol can frame; the size
// field is 16 bits and includes the header.
const MaxMessageSize = 0xFFFF

// FD marks a request argument as a file descriptor. The descriptor travels
// out-of-band via SCM_RIGHTS and contributes no bytes to the message body.
type FD int

// Message is a single protocol message. Outbound messages are built with
// NewRequest and the Put* methods; inbound messages are produced by
// Conn.ReadMessage with Data holding the raw body.
type Message struct {
	Object uint32
	Opcode uint16
	Data   []byte
	fds    []int
}

// NewRequest creates an empty request message addressed to the given object.
func NewRequest(object uint32, opcode uint16) *Message {
	return &Message{Object: object, Opcode: opcode}
}

// PutUint32 appends a uint argument.
func (m *Message) PutUint32(v uint32) {
	m.Data = binary.LittleEndian.AppendUint32(m.Data, v)
}

// PutInt32 appends an int argument.
func (m *Message) PutInt32(v int32) {
	m.PutUint32(uint32(v))
}

// PutFixed appends a 24.8 fixed-point argument.
func (m *Message) PutFixed(v Fixed) {
	m.PutUint32(uint32(v))
}

// PutString appends a string argument: length including the NUL terminator,
// the bytes, the terminator, then padding to a 32-bit boundary.
func (m *Message) PutString(s string) {
	n := len(s) + 1
	m.PutUint32(uint32(n))
	m.Data = append(m.Data, s...)
	m.Data = append(m.Data, 0)
	for pad := (4 - n%4) % 4; pad > 0; pad-- {
		m.Data = append(m.Data, 0)
	}
}

// PutArray appends an array argument: length, bytes, padding.
func (m *Message) PutArray(b []byte) {
	m.PutUint32(uint32(len(b)))
	m.Data = append(m.Data, b...)
	for pad := (4 - len(b)%4) % 4; pad > 0; pad-- {
		m.Data = append(m.Data, 0)
	}
}

// PutFD queues a file descriptor for out-of-band transfer with this message.
func (m *Message) PutFD(fd int) {
	m.fds = append(m.fds, fd)
}

// FDs returns the descriptors queued on the message.
func (m *Message) FDs() []int {
	return m.fds
}

// Size returns the total framed size of the message, header included.
func (m *Message) Size() int {
	return HeaderSize + len(m.Data)
}

// Marshal frames the message into wire bytes.
func (m *Message) Marshal() ([]byte, error) {
	size := m.Size()
	if size > MaxMessageSize {
		return nil, fmt.Errorf("wire: message too large: %d bytes", size)
	}
	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, m.Object)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(size)<<16|uint32(m.Opcode))
	return append(buf, m.Data...), nil
}

// ParseHeader decodes a message header into object id, opcode and total size.
func ParseHeader(hdr [HeaderSize]byte) (object uint32, opcode uint16, size int) {
	object = binary.LittleEndian.Uint32(hdr[0:4])
	word := binary.LittleEndian.Uint32(hdr[4:8])
	return object, uint16(word & 0xFFFF), int(word >> 16)
}
