package shm

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/bnema/wlkit/client"
	"github.com/bnema/wlkit/internal/logger"
)

const (
	reqPoolCreateBuffer = 0
	reqPoolDestroy      = 1
	reqPoolResize       = 2
)

// ErrPoolClosed is returned for operations on a destroyed pool.
var ErrPoolClosed = errors.New("shm: pool destroyed")

// RawPool is one wl_shm_pool backed by a sealed memfd. It only grows: the
// protocol forbids shrinking a pool, and callers hold byte slices into the
// mapping.
type RawPool struct {
	proxy *poolProxy

	mu   sync.Mutex
	file *os.File
	size int
	data []byte
	// previous mappings stay mapped until Destroy so slices handed out
	// before a grow remain valid; MAP_SHARED keeps them coherent.
	retired [][]byte
	closed  bool
}

type poolProxy struct {
	client.BaseProxy
}

// NewRawPool creates a shared-memory file of the given size and registers it
// with the compositor.
func NewRawPool(s *State, size int) (*RawPool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shm: invalid pool size %d", size)
	}
	file, err := createShmFile(size)
	if err != nil {
		return nil, err
	}
	data, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("shm: mmap: %w", err)
	}

	p := &RawPool{
		proxy: &poolProxy{},
		file:  file,
		size:  size,
		data:  data,
	}
	if err := s.createPool(p.proxy, int(file.Fd()), int32(size)); err != nil {
		_ = unix.Munmap(data)
		file.Close()
		return nil, err
	}
	return p, nil
}

// createShmFile prefers a sealed memfd and falls back to an unlinked temp
// file under XDG_RUNTIME_DIR on kernels without memfd support.
func createShmFile(size int) (*os.File, error) {
	fd, err := unix.MemfdCreate("wlkit-shm", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err == nil {
		f := os.NewFile(uintptr(fd), "wlkit-shm")
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			f.Close()
			return nil, fmt.Errorf("shm: ftruncate: %w", err)
		}
		if _, err := unix.FcntlInt(f.Fd(), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK); err != nil {
			// Sealing is an optimization for the compositor; keep going.
			logger.Debugf("shm: memfd sealing unavailable: %v", err)
		}
		return f, nil
	}

	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "wlkit-shm-*")
	if err != nil {
		return nil, fmt.Errorf("shm: create backing file: %w", err)
	}
	_ = os.Remove(f.Name())
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: truncate: %w", err)
	}
	return f, nil
}

// Size returns the current pool size in bytes.
func (p *RawPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// Data returns the current mapping. The slice is invalidated as a whole by
// Resize; offsets handed out before a grow stay valid through the slices
// they were taken from.
func (p *RawPool) Data() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data
}

// Resize grows the pool. Shrinking is rejected: the mapping is shared with
// the compositor and existing buffers reference the old extent.
func (p *RawPool) Resize(size int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	if size <= p.size {
		if size == p.size {
			return nil
		}
		return fmt.Errorf("shm: cannot shrink pool from %d to %d", p.size, size)
	}

	if err := unix.Ftruncate(int(p.file.Fd()), int64(size)); err != nil {
		return fmt.Errorf("shm: ftruncate: %w", err)
	}
	data, err := unix.Mmap(int(p.file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("shm: mmap: %w", err)
	}
	p.retired = append(p.retired, p.data)
	p.data = data
	p.size = size

	return p.proxy.SendRequest(reqPoolResize, int32(size))
}

// CreateBuffer registers buf as a wl_buffer over the given pool region.
// Callers validate bounds; the slot pool is the only caller.
func (p *RawPool) createBuffer(buf client.Proxy, offset, width, height, stride int32, format Format) error {
	d := p.proxy.Display()
	d.Register(buf)
	err := p.proxy.SendRequest(reqPoolCreateBuffer, buf, offset, width, height, stride, uint32(format))
	if err != nil {
		d.Unregister(buf.ID())
	}
	return err
}

// Destroy releases the pool object, the mapping and the backing file.
// Buffers created from the pool keep their storage alive server-side until
// they are destroyed too.
func (p *RawPool) Destroy() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	err := p.proxy.SendRequest(reqPoolDestroy)
	p.proxy.MarkStale()
	if d := p.proxy.Display(); d != nil {
		d.Destroyed(p.proxy.ID())
	}

	for _, m := range p.retired {
		_ = unix.Munmap(m)
	}
	p.retired = nil
	_ = unix.Munmap(p.data)
	p.data = nil
	_ = p.file.Close()
	return err
}
