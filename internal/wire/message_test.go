package wire

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestMarshalHeader(t *testing.T) {
	m := NewRequest(3, 7)
	m.PutUint32(42)

	data, err := m.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if len(data) != 12 {
		t.Fatalf("Expected 12 bytes, got %d", len(data))
	}

	var hdr [HeaderSize]byte
	copy(hdr[:], data)
	object, opcode, size := ParseHeader(hdr)
	if object != 3 {
		t.Errorf("Expected object 3, got %d", object)
	}
	if opcode != 7 {
		t.Errorf("Expected opcode 7, got %d", opcode)
	}
	if size != 12 {
		t.Errorf("Expected size 12, got %d", size)
	}
	if binary.LittleEndian.Uint32(data[8:12]) != 42 {
		t.Errorf("Argument not encoded at offset 8")
	}
}

func TestPutString(t *testing.T) {
	// "wl_shm" is 6 bytes; with the NUL terminator that is 7,
	// padded to 8 on the wire.
	m := NewRequest(1, 0)
	m.PutString("wl_shm")

	if len(m.Data) != 4+8 {
		t.Fatalf("Expected 12 body bytes, got %d", len(m.Data))
	}
	if n := binary.LittleEndian.Uint32(m.Data[0:4]); n != 7 {
		t.Errorf("Expected encoded length 7, got %d", n)
	}
	if !bytes.Equal(m.Data[4:11], []byte("wl_shm\x00")) {
		t.Errorf("String bytes wrong: %q", m.Data[4:11])
	}
	if m.Data[11] != 0 {
		t.Errorf("Padding byte not zero")
	}
}

func TestPutStringAligned(t *testing.T) {
	// 3 bytes + NUL is already aligned; no padding should be added.
	m := NewRequest(1, 0)
	m.PutString("abc")
	if len(m.Data) != 8 {
		t.Errorf("Expected 8 body bytes, got %d", len(m.Data))
	}
}

func TestPutArray(t *testing.T) {
	m := NewRequest(1, 0)
	m.PutArray([]byte{1, 2, 3, 4, 5})

	if len(m.Data) != 4+8 {
		t.Fatalf("Expected 12 body bytes, got %d", len(m.Data))
	}
	if n := binary.LittleEndian.Uint32(m.Data[0:4]); n != 5 {
		t.Errorf("Expected encoded length 5, got %d", n)
	}
}

func TestMarshalTooLarge(t *testing.T) {
	m := NewRequest(1, 0)
	m.Data = make([]byte, MaxMessageSize)
	if _, err := m.Marshal(); err == nil {
		t.Error("Expected error for oversized message")
	}
}

func TestFixedConversions(t *testing.T) {
	if f := FixedFromInt(100); f != 100<<8 {
		t.Errorf("FixedFromInt(100) = %d", f)
	}
	if v := FixedFromFloat64(1.5).Float64(); v != 1.5 {
		t.Errorf("Expected 1.5, got %f", v)
	}
	if FixedFromFloat64(-288.1875).Float64() != -288.1875 {
		t.Error("Negative fixed-point roundtrip failed")
	}
	if FixedFromInt(-2).Int() != -2 {
		t.Error("Negative int roundtrip failed")
	}
}
