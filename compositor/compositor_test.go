package compositor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/wlkit/client"
	"github.com/bnema/wlkit/compositor"
	"github.com/bnema/wlkit/internal/wltest"
)

func bind(t *testing.T) (*client.Display, *wltest.Server, *compositor.State) {
	t.Helper()
	d, srv := wltest.Pair(t)
	state := compositor.NewState(d)
	srv.Global(wltest.RegistryID(d), 1, "wl_compositor", 6)
	require.NoError(t, d.Dispatch())
	srv.Recv() // bind
	return d, srv, state
}

func TestCreateSurfaceTracksOutputs(t *testing.T) {
	d, srv, state := bind(t)
	require.True(t, state.Bound())
	assert.Equal(t, uint32(6), state.Version())

	var entered, left []uint32
	surface, err := state.CreateSurface(compositor.SurfaceHandlers{
		OnEnter: func(_ *compositor.Surface, output uint32) { entered = append(entered, output) },
		OnLeave: func(_ *compositor.Surface, output uint32) { left = append(left, output) },
	})
	require.NoError(t, err)

	create := srv.Recv()
	assert.Equal(t, uint16(0), create.Opcode)
	surfaceID := wltest.Uint32(t, create, 0)
	assert.Equal(t, surface.ID(), surfaceID)

	srv.Send(surfaceID, 0, uint32(7)) // enter
	srv.Send(surfaceID, 2, int32(2))  // preferred_buffer_scale
	require.NoError(t, d.Dispatch())
	require.NoError(t, d.Dispatch())

	assert.Equal(t, []uint32{7}, entered)
	assert.Equal(t, []uint32{7}, surface.Outputs())
	assert.Equal(t, int32(2), surface.PreferredScale())

	srv.Send(surfaceID, 1, uint32(7)) // leave
	require.NoError(t, d.Dispatch())
	assert.Equal(t, []uint32{7}, left)
	assert.Empty(t, surface.Outputs())
}

func TestSurfaceCommitSequence(t *testing.T) {
	d, srv, state := bind(t)
	_ = d

	surface, err := state.CreateSurface(compositor.SurfaceHandlers{})
	require.NoError(t, err)
	surfaceID := wltest.Uint32(t, srv.Recv(), 0)

	require.NoError(t, surface.Attach(nil, 0, 0))
	require.NoError(t, surface.Damage(0, 0, 100, 50))
	require.NoError(t, surface.Commit())

	attach := srv.Recv()
	assert.Equal(t, surfaceID, attach.Object)
	assert.Equal(t, uint16(1), attach.Opcode)
	assert.Equal(t, uint32(0), wltest.Uint32(t, attach, 0), "nil buffer encodes as null object")

	damage := srv.Recv()
	assert.Equal(t, uint16(2), damage.Opcode)

	commit := srv.Recv()
	assert.Equal(t, uint16(6), commit.Opcode)
	assert.Empty(t, commit.Data)
}

func TestFrameCallback(t *testing.T) {
	d, srv, state := bind(t)

	surface, err := state.CreateSurface(compositor.SurfaceHandlers{})
	require.NoError(t, err)
	srv.Recv()

	var times []uint32
	cb, err := surface.Frame(func(time uint32) { times = append(times, time) })
	require.NoError(t, err)

	frame := srv.Recv()
	assert.Equal(t, uint16(3), frame.Opcode)
	cbID := wltest.Uint32(t, frame, 0)
	assert.Equal(t, cb.ID(), cbID)

	srv.Send(cbID, 0, uint32(16_666))
	require.NoError(t, d.Dispatch())
	assert.Equal(t, []uint32{16_666}, times)

	// Callback objects are one-shot; the id is gone after done.
	_, live := d.Object(cbID)
	assert.False(t, live)
}

func TestRegionLifecycle(t *testing.T) {
	d, srv, state := bind(t)
	_ = d

	region, err := state.CreateRegion()
	require.NoError(t, err)
	regionID := wltest.Uint32(t, srv.Recv(), 0)

	require.NoError(t, region.Add(0, 0, 640, 480))
	require.NoError(t, region.Subtract(10, 10, 20, 20))
	require.NoError(t, region.Destroy())

	add := srv.Recv()
	assert.Equal(t, regionID, add.Object)
	assert.Equal(t, uint16(0), add.Opcode)
	sub := srv.Recv()
	assert.Equal(t, uint16(1), sub.Opcode)
	destroy := srv.Recv()
	assert.Equal(t, uint16(2), destroy.Opcode)
}

func TestUnboundCompositor(t *testing.T) {
	d, _ := wltest.Pair(t)
	state := compositor.NewState(d)

	_, err := state.CreateSurface(compositor.SurfaceHandlers{})
	assert.ErrorIs(t, err, client.ErrNotAvailable)
}
