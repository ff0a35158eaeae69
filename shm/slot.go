package shm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bnema/wlkit/client"
)

const (
	reqBufferDestroy = 0

	eventBufferRelease = 0
)

// slotAlign keeps neighbouring slots off the same cache line.
const slotAlign = 64

var (
	// ErrOutOfMemory means the backing pool could not grow.
	ErrOutOfMemory = errors.New("shm: pool growth failed")
	// ErrSlotInUse means the slot's buffer is held by the compositor.
	ErrSlotInUse = errors.New("shm: slot in use")
	// ErrSlotTooSmall means a buffer does not fit its slot.
	ErrSlotTooSmall = errors.New("shm: slot too small for buffer")
	// ErrPoolMismatch means a slot was used with a pool it did not come from.
	ErrPoolMismatch = errors.New("shm: slot belongs to a different pool")
)

// Surface is the subset of wl_surface a buffer needs to present itself.
// *compositor.Surface satisfies it.
type Surface interface {
	Attach(buffer client.Object, x, y int32) error
	DamageBuffer(x, y, width, height int32) error
}

type span struct {
	off int
	len int
}

// SlotPool carves buffers out of one RawPool and recycles their storage.
// A slot's bytes are never handed to two live buffers at once: storage is
// reused only after the compositor releases the previous buffer.
type SlotPool struct {
	display *client.Display
	raw     *RawPool

	mu       sync.Mutex
	free     []span // sorted by offset, adjacent spans coalesced
	closed   bool
	closeErr error // why the pool is closed, nil while open
}

// NewSlotPool creates a pool with the given initial capacity. The pool grows
// geometrically when an allocation does not fit.
func NewSlotPool(s *State, initial int) (*SlotPool, error) {
	if initial <= 0 {
		return nil, fmt.Errorf("shm: invalid pool size %d", initial)
	}
	initial = alignUp(initial)
	raw, err := NewRawPool(s, initial)
	if err != nil {
		return nil, err
	}
	p := &SlotPool{
		display: s.display,
		raw:     raw,
		free:    []span{{off: 0, len: initial}},
	}
	// A dead connection can never deliver release events, so pending leases
	// would deadlock reuse; drop them all.
	s.display.OnClose(p.failLeases)
	return p, nil
}

// Size returns the pool's current capacity in bytes.
func (p *SlotPool) Size() int {
	return p.raw.Size()
}

// Alloc reserves size bytes from the pool, growing it if needed.
func (p *SlotPool) Alloc(size int) (*Slot, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shm: invalid slot size %d", size)
	}
	size = alignUp(size)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, p.closeErr
	}

	off, ok := p.takeLocked(size)
	if !ok {
		if err := p.growLocked(size); err != nil {
			return nil, err
		}
		off, ok = p.takeLocked(size)
		if !ok {
			return nil, ErrOutOfMemory
		}
	}
	return &Slot{pool: p, off: off, size: size}, nil
}

// takeLocked removes a size-byte span from the free list, first fit.
func (p *SlotPool) takeLocked(size int) (int, bool) {
	for i, s := range p.free {
		if s.len < size {
			continue
		}
		off := s.off
		if s.len == size {
			p.free = append(p.free[:i], p.free[i+1:]...)
		} else {
			p.free[i] = span{off: s.off + size, len: s.len - size}
		}
		return off, true
	}
	return 0, false
}

// growLocked at least doubles the pool so repeated allocation stays O(log n)
// resizes, then adds the new extent to the free list.
func (p *SlotPool) growLocked(need int) error {
	old := p.raw.Size()
	target := old * 2
	if target < old+need {
		target = alignUp(old + need)
	}
	if err := p.raw.Resize(target); err != nil {
		return fmt.Errorf("%w: %v", ErrOutOfMemory, err)
	}
	p.releaseLocked(span{off: old, len: target - old})
	return nil
}

// releaseLocked returns a span to the free list, merging neighbours.
func (p *SlotPool) releaseLocked(s span) {
	i := 0
	for i < len(p.free) && p.free[i].off < s.off {
		i++
	}
	p.free = append(p.free, span{})
	copy(p.free[i+1:], p.free[i:])
	p.free[i] = s

	// Merge with the following span, then the preceding one.
	if i+1 < len(p.free) && p.free[i].off+p.free[i].len == p.free[i+1].off {
		p.free[i].len += p.free[i+1].len
		p.free = append(p.free[:i+1], p.free[i+2:]...)
	}
	if i > 0 && p.free[i-1].off+p.free[i-1].len == p.free[i].off {
		p.free[i-1].len += p.free[i].len
		p.free = append(p.free[:i], p.free[i+1:]...)
	}
}

// CreateBuffer allocates a slot and creates a wl_buffer over it, returning
// the buffer and its pixel canvas.
func (p *SlotPool) CreateBuffer(width, height, stride int32, format Format) (*Buffer, []byte, error) {
	if width <= 0 || height <= 0 || stride < width {
		return nil, nil, fmt.Errorf("shm: invalid buffer geometry %dx%d stride %d", width, height, stride)
	}
	slot, err := p.Alloc(int(stride) * int(height))
	if err != nil {
		return nil, nil, err
	}
	buf, err := p.CreateBufferIn(slot, width, height, stride, format)
	if err != nil {
		_ = slot.Free()
		return nil, nil, err
	}
	return buf, buf.Canvas(), nil
}

// CreateBufferIn creates a wl_buffer over an existing slot.
func (p *SlotPool) CreateBufferIn(slot *Slot, width, height, stride int32, format Format) (*Buffer, error) {
	if slot.pool != p {
		return nil, ErrPoolMismatch
	}
	if int(stride)*int(height) > slot.size {
		return nil, ErrSlotTooSmall
	}

	p.mu.Lock()
	if slot.freed {
		p.mu.Unlock()
		return nil, client.ErrStaleHandle
	}
	if slot.buffer != nil {
		p.mu.Unlock()
		return nil, ErrSlotInUse
	}
	buf := &Buffer{
		pool:   p,
		slot:   slot,
		width:  width,
		height: height,
		stride: stride,
		format: format,
	}
	slot.buffer = buf
	p.mu.Unlock()

	if err := p.raw.createBuffer(buf, int32(slot.off), width, height, stride, format); err != nil {
		p.mu.Lock()
		slot.buffer = nil
		p.mu.Unlock()
		return nil, err
	}
	return buf, nil
}

// failLeases drops all compositor leases after the connection dies. Later
// allocations report the connection error, not a pool-level close.
func (p *SlotPool) failLeases(err error) {
	if !errors.Is(err, client.ErrConnClosed) {
		err = fmt.Errorf("%w: %v", client.ErrConnClosed, err)
	}
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.closeErr = err
	}
	p.mu.Unlock()
}

// Destroy frees the pool and its backing memory. Outstanding buffers become
// stale.
func (p *SlotPool) Destroy() error {
	p.mu.Lock()
	p.closed = true
	p.closeErr = ErrPoolClosed
	p.free = nil
	p.mu.Unlock()
	return p.raw.Destroy()
}

func alignUp(n int) int {
	return (n + slotAlign - 1) &^ (slotAlign - 1)
}

// Slot is a region of pool storage. It moves between three states: free (on
// the pool's free list), acquired (owned by a buffer the client may draw
// into) and committed (attached, awaiting the compositor's release).
type Slot struct {
	pool *SlotPool
	off  int
	size int

	// guarded by pool.mu
	buffer *Buffer
	freed  bool
}

// Offset returns the slot's byte offset within the pool.
func (s *Slot) Offset() int { return s.off }

// Size returns the slot's capacity in bytes.
func (s *Slot) Size() int { return s.size }

// Free returns the slot's storage to the pool. It fails with ErrSlotInUse
// while the compositor still holds the slot's buffer: reusing the bytes
// under an attached buffer would tear whatever is on screen.
func (s *Slot) Free() error {
	p := s.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.freed {
		return nil
	}
	if s.buffer != nil {
		if s.buffer.committed && !p.closed {
			return ErrSlotInUse
		}
		s.buffer.destroyLocked()
	}
	s.freed = true
	if !p.closed {
		p.releaseLocked(span{off: s.off, len: s.size})
	}
	return nil
}

// Buffer is a wl_buffer bound to a slot. Its canvas is writable only while
// the compositor does not hold the buffer.
type Buffer struct {
	client.BaseProxy
	pool *SlotPool
	slot *Slot

	width, height, stride int32
	format                Format

	// guarded by pool.mu
	committed      bool
	destroyPending bool
	onRelease      func()
}

// Dimensions returns the buffer's width, height and stride.
func (b *Buffer) Dimensions() (width, height, stride int32) {
	return b.width, b.height, b.stride
}

// Format returns the buffer's pixel format.
func (b *Buffer) Format() Format { return b.format }

// Slot returns the slot backing the buffer.
func (b *Buffer) Slot() *Slot { return b.slot }

// OnRelease sets a callback invoked from the dispatch goroutine when the
// compositor releases the buffer.
func (b *Buffer) OnRelease(fn func()) {
	b.pool.mu.Lock()
	b.onRelease = fn
	b.pool.mu.Unlock()
}

// Canvas returns the buffer's pixels, or nil while the compositor holds the
// buffer.
func (b *Buffer) Canvas() []byte {
	b.pool.mu.Lock()
	defer b.pool.mu.Unlock()
	if b.committed || b.destroyPending || b.slot.freed {
		return nil
	}
	data := b.pool.raw.Data()
	return data[b.slot.off : b.slot.off+int(b.stride)*int(b.height)]
}

// Committed reports whether the compositor currently holds the buffer.
func (b *Buffer) Committed() bool {
	b.pool.mu.Lock()
	defer b.pool.mu.Unlock()
	return b.committed
}

// AttachTo attaches the buffer to a surface and damages its full extent.
// The caller commits the surface; the buffer's canvas stays unwritable from
// that commit until the compositor's release event.
func (b *Buffer) AttachTo(s Surface, x, y int32) error {
	b.pool.mu.Lock()
	if b.destroyPending {
		b.pool.mu.Unlock()
		return client.ErrStaleHandle
	}
	b.committed = true
	b.pool.mu.Unlock()

	if err := s.Attach(b, x, y); err != nil {
		b.pool.mu.Lock()
		b.committed = false
		b.pool.mu.Unlock()
		return err
	}
	return s.DamageBuffer(0, 0, b.width, b.height)
}

// Destroy releases the wl_buffer. If the compositor still holds it, the
// destroy is deferred until the release event so the frame on screen is not
// yanked away.
func (b *Buffer) Destroy() {
	p := b.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	if b.committed && !p.closed {
		b.destroyPending = true
		return
	}
	b.destroyLocked()
	if !b.slot.freed {
		b.slot.freed = true
		if !p.closed {
			p.releaseLocked(span{off: b.slot.off, len: b.slot.size})
		}
	}
}

// destroyLocked sends wl_buffer.destroy and detaches the buffer from its
// slot. Callers hold pool.mu.
func (b *Buffer) destroyLocked() {
	if b.Stale() {
		return
	}
	_ = b.SendRequest(reqBufferDestroy)
	b.MarkStale()
	if d := b.Display(); d != nil {
		d.Destroyed(b.ID())
	}
	b.slot.buffer = nil
}

// Dispatch implements client.Proxy, handling wl_buffer.release.
func (b *Buffer) Dispatch(e *client.Event) {
	if e.Opcode != eventBufferRelease {
		return
	}
	p := b.pool
	p.mu.Lock()
	b.committed = false
	fn := b.onRelease
	if b.destroyPending {
		b.destroyPending = false
		b.destroyLocked()
		if !b.slot.freed {
			b.slot.freed = true
			if !p.closed {
				p.releaseLocked(span{off: b.slot.off, len: b.slot.size})
			}
		}
		fn = nil
	}
	p.mu.Unlock()

	if fn != nil {
		fn()
	}
}
