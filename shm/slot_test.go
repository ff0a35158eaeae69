package shm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/bnema/wlkit/client"
	"github.com/bnema/wlkit/internal/wltest"
	"github.com/bnema/wlkit/shm"
)

// fakeSurface records attach calls without touching the wire.
type fakeSurface struct {
	attached client.Object
	damages  int
}

func (f *fakeSurface) Attach(b client.Object, x, y int32) error {
	f.attached = b
	return nil
}

func (f *fakeSurface) DamageBuffer(x, y, w, h int32) error {
	f.damages++
	return nil
}

// setup binds wl_shm and creates a slot pool, returning it with the wire ids
// the fake compositor needs.
func setup(t *testing.T, poolSize int) (*client.Display, *wltest.Server, *shm.SlotPool, uint32) {
	t.Helper()
	d, srv := wltest.Pair(t)

	state := shm.NewState(d)
	srv.Global(wltest.RegistryID(d), 1, "wl_shm", 1)
	require.NoError(t, d.Dispatch())
	shmID := wltest.BindNewID(t, srv.Recv())

	srv.Send(shmID, 0, uint32(shm.Argb8888))
	srv.Send(shmID, 0, uint32(shm.Xrgb8888))
	require.NoError(t, d.Dispatch())
	require.NoError(t, d.Dispatch())

	pool, err := shm.NewSlotPool(state, poolSize)
	require.NoError(t, err)

	createPool := srv.Recv()
	assert.Equal(t, shmID, createPool.Object)
	poolID := wltest.Uint32(t, createPool, 0)
	fd := srv.TakeFD()
	t.Cleanup(func() { unix.Close(fd) })

	return d, srv, pool, poolID
}

func TestFormatsAdvertised(t *testing.T) {
	d, srv := wltest.Pair(t)

	state := shm.NewState(d)
	srv.Global(wltest.RegistryID(d), 1, "wl_shm", 1)
	require.NoError(t, d.Dispatch())
	shmID := wltest.BindNewID(t, srv.Recv())

	srv.Send(shmID, 0, uint32(shm.Argb8888))
	srv.Send(shmID, 0, uint32(0x34325258)) // XR24 fourcc alias some compositors also list
	require.NoError(t, d.Dispatch())
	require.NoError(t, d.Dispatch())

	assert.True(t, state.FormatSupported(shm.Argb8888))
	assert.False(t, state.FormatSupported(shm.Xrgb8888))
	assert.Len(t, state.Formats(), 2)
}

func TestBuffersNeverAlias(t *testing.T) {
	_, srv, pool, _ := setup(t, 64*1024)

	b1, c1, err := pool.CreateBuffer(64, 64, 64*4, shm.Argb8888)
	require.NoError(t, err)
	srv.Recv() // create_buffer

	b2, c2, err := pool.CreateBuffer(64, 64, 64*4, shm.Argb8888)
	require.NoError(t, err)
	srv.Recv()

	require.NotNil(t, c1)
	require.NotNil(t, c2)

	s1, s2 := b1.Slot(), b2.Slot()
	end1 := s1.Offset() + s1.Size()
	end2 := s2.Offset() + s2.Size()
	overlap := s1.Offset() < end2 && s2.Offset() < end1
	assert.False(t, overlap, "live buffers share pool bytes: [%d,%d) and [%d,%d)",
		s1.Offset(), end1, s2.Offset(), end2)
}

func TestCanvasGatedByCommit(t *testing.T) {
	_, srv, pool, _ := setup(t, 64*1024)

	buf, canvas, err := pool.CreateBuffer(32, 32, 32*4, shm.Xrgb8888)
	require.NoError(t, err)
	srv.Recv() // create_buffer
	require.Len(t, canvas, 32*32*4)

	surface := &fakeSurface{}
	require.NoError(t, buf.AttachTo(surface, 0, 0))
	assert.Same(t, client.Object(buf), surface.attached)
	assert.Equal(t, 1, surface.damages)

	assert.True(t, buf.Committed())
	assert.Nil(t, buf.Canvas(), "canvas must be unwritable while the compositor holds the buffer")
}

func TestEarlyFreeRejected(t *testing.T) {
	d, srv, pool, _ := setup(t, 64*1024)

	buf, _, err := pool.CreateBuffer(16, 16, 16*4, shm.Argb8888)
	require.NoError(t, err)
	bufID := wltest.Uint32(t, srv.Recv(), 0)

	require.NoError(t, buf.AttachTo(&fakeSurface{}, 0, 0))

	err = buf.Slot().Free()
	assert.ErrorIs(t, err, shm.ErrSlotInUse)

	srv.Send(bufID, 0)
	require.NoError(t, d.Dispatch())

	assert.False(t, buf.Committed())
	assert.NotNil(t, buf.Canvas())
	require.NoError(t, buf.Slot().Free())
}

func TestStorageReusedAfterRelease(t *testing.T) {
	d, srv, pool, _ := setup(t, 16*1024)

	b1, _, err := pool.CreateBuffer(32, 32, 32*4, shm.Argb8888)
	require.NoError(t, err)
	bufID := wltest.Uint32(t, srv.Recv(), 0)
	firstOff := b1.Slot().Offset()

	require.NoError(t, b1.AttachTo(&fakeSurface{}, 0, 0))

	// Deferred destroy: the compositor still holds the buffer.
	b1.Destroy()
	srv.Send(bufID, 0)
	require.NoError(t, d.Dispatch())

	destroy := srv.Recv()
	assert.Equal(t, bufID, destroy.Object)
	assert.Equal(t, uint16(0), destroy.Opcode)

	b2, _, err := pool.CreateBuffer(32, 32, 32*4, shm.Argb8888)
	require.NoError(t, err)
	srv.Recv()
	assert.Equal(t, firstOff, b2.Slot().Offset(), "released storage should be recycled")
}

func TestPoolGrowsGeometrically(t *testing.T) {
	_, srv, pool, poolID := setup(t, 4096)

	// 128x128 XRGB needs 64 KiB, far beyond the initial 4 KiB.
	buf, canvas, err := pool.CreateBuffer(128, 128, 128*4, shm.Xrgb8888)
	require.NoError(t, err)

	resize := srv.Recv()
	assert.Equal(t, poolID, resize.Object)
	assert.Equal(t, uint16(2), resize.Opcode)
	newSize := int(wltest.Uint32(t, resize, 0))
	assert.GreaterOrEqual(t, newSize, 128*128*4)
	assert.GreaterOrEqual(t, newSize, 2*4096, "growth should at least double")

	srv.Recv() // create_buffer
	require.Len(t, canvas, 128*128*4)
	assert.GreaterOrEqual(t, pool.Size(), newSize)
	buf.Destroy()
}

func TestOnReleaseCallback(t *testing.T) {
	d, srv, pool, _ := setup(t, 8*1024)

	buf, _, err := pool.CreateBuffer(8, 8, 8*4, shm.Argb8888)
	require.NoError(t, err)
	bufID := wltest.Uint32(t, srv.Recv(), 0)

	require.NoError(t, buf.AttachTo(&fakeSurface{}, 0, 0))

	released := 0
	buf.OnRelease(func() { released++ })

	srv.Send(bufID, 0)
	require.NoError(t, d.Dispatch())

	assert.Equal(t, 1, released)
	assert.NotNil(t, buf.Canvas())
}

func TestTeardownFailsLeasesWithConnError(t *testing.T) {
	d, _, pool, _ := setup(t, 4096)

	require.NoError(t, d.Close())

	_, err := pool.Alloc(64)
	assert.ErrorIs(t, err, client.ErrConnClosed)
	assert.NotErrorIs(t, err, shm.ErrPoolClosed)
}

func TestDestroyedPoolRejectsAlloc(t *testing.T) {
	_, _, pool, _ := setup(t, 4096)

	require.NoError(t, pool.Destroy())

	_, err := pool.Alloc(64)
	assert.ErrorIs(t, err, shm.ErrPoolClosed)
}
