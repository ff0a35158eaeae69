package shell_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/wlkit/client"
	"github.com/bnema/wlkit/internal/wltest"
	"github.com/bnema/wlkit/shell"
)

type stubSurface struct{ id uint32 }

func (s stubSurface) ID() uint32 { return s.id }

func setup(t *testing.T) (*client.Display, *wltest.Server, *shell.State, uint32) {
	t.Helper()
	d, srv := wltest.Pair(t)
	state := shell.NewState(d)
	srv.Global(wltest.RegistryID(d), 2, "xdg_wm_base", 6)
	require.NoError(t, d.Dispatch())
	wmBaseID := wltest.BindNewID(t, srv.Recv())
	return d, srv, state, wmBaseID
}

func stateBytes(states ...shell.ToplevelState) []byte {
	b := make([]byte, 4*len(states))
	for i, s := range states {
		binary.LittleEndian.PutUint32(b[i*4:], uint32(s))
	}
	return b
}

func TestPingPong(t *testing.T) {
	d, srv, _, wmBaseID := setup(t)

	srv.Send(wmBaseID, 0, uint32(777)) // ping
	require.NoError(t, d.Dispatch())

	pong := srv.Recv()
	assert.Equal(t, wmBaseID, pong.Object)
	assert.Equal(t, uint16(3), pong.Opcode)
	assert.Equal(t, uint32(777), wltest.Uint32(t, pong, 0))
}

func TestConfigureCoalescedAndAcked(t *testing.T) {
	d, srv, state, wmBaseID := setup(t)

	var configures []shell.Configure
	var serials []uint32
	w, err := state.CreateWindow(stubSurface{id: 99}, shell.WindowHandlers{
		OnConfigure: func(serial uint32, cfg shell.Configure) {
			serials = append(serials, serial)
			configures = append(configures, cfg)
		},
	})
	require.NoError(t, err)

	getXdgSurface := srv.Recv()
	assert.Equal(t, wmBaseID, getXdgSurface.Object)
	assert.Equal(t, uint16(2), getXdgSurface.Opcode)
	xdgSurfaceID := wltest.Uint32(t, getXdgSurface, 0)
	assert.Equal(t, uint32(99), wltest.Uint32(t, getXdgSurface, 4))

	getToplevel := srv.Recv()
	assert.Equal(t, xdgSurfaceID, getToplevel.Object)
	toplevelID := wltest.Uint32(t, getToplevel, 0)

	// Bounds, capabilities and the toplevel configure all precede the
	// xdg_surface configure that commits them.
	srv.Send(toplevelID, 2, int32(2560), int32(1400))
	srv.Send(toplevelID, 3, []byte{1, 0, 0, 0})
	srv.Send(toplevelID, 0, int32(800), int32(600),
		stateBytes(shell.StateActivated, shell.StateMaximized))
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Dispatch())
	}
	assert.Empty(t, configures, "no callback before xdg_surface.configure")

	srv.Send(xdgSurfaceID, 0, uint32(1001))
	require.NoError(t, d.Dispatch())

	ack := srv.Recv()
	assert.Equal(t, xdgSurfaceID, ack.Object)
	assert.Equal(t, uint16(4), ack.Opcode)
	assert.Equal(t, uint32(1001), wltest.Uint32(t, ack, 0))

	require.Len(t, configures, 1)
	assert.Equal(t, []uint32{1001}, serials)
	cfg := configures[0]
	assert.Equal(t, int32(800), cfg.Width)
	assert.True(t, cfg.Is(shell.StateActivated))
	assert.True(t, cfg.Is(shell.StateMaximized))
	assert.False(t, cfg.Is(shell.StateFullscreen))
	assert.Equal(t, int32(2560), cfg.BoundsWidth)
	assert.Equal(t, []uint32{1}, cfg.Capabilities)

	assert.Equal(t, cfg, w.Configured())
}

func TestCloseCallback(t *testing.T) {
	d, srv, state, _ := setup(t)

	closed := false
	_, err := state.CreateWindow(stubSurface{id: 5}, shell.WindowHandlers{
		OnClose: func() { closed = true },
	})
	require.NoError(t, err)
	srv.Recv()
	toplevelID := wltest.Uint32(t, srv.Recv(), 0)

	srv.Send(toplevelID, 1)
	require.NoError(t, d.Dispatch())
	assert.True(t, closed)
}

func TestWindowRequests(t *testing.T) {
	d, srv, state, _ := setup(t)
	_ = d

	w, err := state.CreateWindow(stubSurface{id: 5}, shell.WindowHandlers{})
	require.NoError(t, err)
	xdgSurfaceID := wltest.Uint32(t, srv.Recv(), 0)
	toplevelID := wltest.Uint32(t, srv.Recv(), 0)

	require.NoError(t, w.SetTitle("demo"))
	require.NoError(t, w.SetAppID("org.example.demo"))
	require.NoError(t, w.SetMinSize(320, 240))
	require.NoError(t, w.Destroy())

	title := srv.Recv()
	assert.Equal(t, toplevelID, title.Object)
	assert.Equal(t, uint16(2), title.Opcode)

	appID := srv.Recv()
	assert.Equal(t, uint16(3), appID.Opcode)

	minSize := srv.Recv()
	assert.Equal(t, uint16(8), minSize.Opcode)

	destroyToplevel := srv.Recv()
	assert.Equal(t, toplevelID, destroyToplevel.Object)
	assert.Equal(t, uint16(0), destroyToplevel.Opcode)

	destroySurface := srv.Recv()
	assert.Equal(t, xdgSurfaceID, destroySurface.Object)
	assert.Equal(t, uint16(0), destroySurface.Opcode)

	assert.ErrorIs(t, w.SetTitle("late"), client.ErrStaleHandle)
}

func TestDestroyWithConfigureInFlight(t *testing.T) {
	d, srv, state, _ := setup(t)

	fired := false
	w, err := state.CreateWindow(stubSurface{id: 7}, shell.WindowHandlers{
		OnConfigure: func(uint32, shell.Configure) { fired = true },
	})
	require.NoError(t, err)
	xdgSurfaceID := wltest.Uint32(t, srv.Recv(), 0)
	toplevelID := wltest.Uint32(t, srv.Recv(), 0)

	// The compositor sends a configure before it sees our destructors.
	srv.Send(xdgSurfaceID, 0, uint32(7))
	require.NoError(t, w.Destroy())

	require.NoError(t, d.Dispatch())
	assert.False(t, fired, "configure for a destroyed window must be dropped")
	require.NoError(t, d.Err())

	srv.DeleteID(toplevelID)
	srv.DeleteID(xdgSurfaceID)
	require.NoError(t, d.Dispatch())
	require.NoError(t, d.Dispatch())
	_, live := d.Object(xdgSurfaceID)
	assert.False(t, live)
}

func TestCreateWindowRequiresBoundShell(t *testing.T) {
	d, _ := wltest.Pair(t)
	state := shell.NewState(d)

	_, err := state.CreateWindow(stubSurface{id: 1}, shell.WindowHandlers{})
	assert.ErrorIs(t, err, client.ErrNotAvailable)
}
