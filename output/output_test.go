package output_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/wlkit/internal/wltest"
	"github.com/bnema/wlkit/output"
)

type recordingHandler struct {
	added   []output.Info
	updated []output.Info
	removed []output.Info
}

func (h *recordingHandler) NewOutput(info output.Info)     { h.added = append(h.added, info) }
func (h *recordingHandler) OutputUpdated(info output.Info) { h.updated = append(h.updated, info) }
func (h *recordingHandler) OutputRemoved(info output.Info) { h.removed = append(h.removed, info) }

func TestOutputCoalescesUntilDone(t *testing.T) {
	d, srv := wltest.Pair(t)

	handler := &recordingHandler{}
	state := output.NewState(d, handler)

	srv.Global(wltest.RegistryID(d), 7, "wl_output", 4)
	require.NoError(t, d.Dispatch())

	bind := srv.Recv()
	outputID := wltest.BindNewID(t, bind)

	srv.Send(outputID, 0, int32(0), int32(0), int32(600), int32(340), int32(0), "ACME", "WX-1000", int32(0))
	srv.Send(outputID, 1, uint32(3), int32(1920), int32(1080), int32(60000))
	srv.Send(outputID, 1, uint32(0), int32(1280), int32(720), int32(60000))
	srv.Send(outputID, 3, int32(2))
	srv.Send(outputID, 4, "DP-1")
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Dispatch())
	}

	// No done yet: nothing visible, no callbacks.
	assert.Empty(t, state.Outputs())
	assert.Empty(t, handler.added)

	srv.Send(outputID, 2)
	require.NoError(t, d.Dispatch())

	require.Len(t, handler.added, 1)
	assert.Empty(t, handler.updated)

	info := handler.added[0]
	assert.Equal(t, uint32(7), info.ID)
	assert.Equal(t, "DP-1", info.Name)
	assert.Equal(t, "ACME", info.Make)
	assert.Equal(t, int32(2), info.Scale)
	require.Len(t, info.Modes, 2)

	mode, ok := info.CurrentMode()
	require.True(t, ok)
	assert.Equal(t, int32(1920), mode.Width)
	assert.True(t, mode.Preferred)

	got, ok := state.OutputInfo(7)
	require.True(t, ok)
	assert.Equal(t, info.Name, got.Name)
}

func TestOutputUpdateFiresOnce(t *testing.T) {
	d, srv := wltest.Pair(t)

	handler := &recordingHandler{}
	state := output.NewState(d, handler)

	srv.Global(wltest.RegistryID(d), 3, "wl_output", 4)
	require.NoError(t, d.Dispatch())
	bind := srv.Recv()
	outputID := wltest.BindNewID(t, bind)

	srv.Send(outputID, 3, int32(1))
	srv.Send(outputID, 2)
	require.NoError(t, d.Dispatch())
	require.NoError(t, d.Dispatch())
	require.Len(t, handler.added, 1)

	// Scale change plus a mode switch, then one done.
	srv.Send(outputID, 3, int32(2))
	srv.Send(outputID, 1, uint32(1), int32(2560), int32(1440), int32(144000))
	srv.Send(outputID, 2)
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Dispatch())
	}

	require.Len(t, handler.updated, 1)
	assert.Equal(t, int32(2), handler.updated[0].Scale)
	mode, ok := handler.updated[0].CurrentMode()
	require.True(t, ok)
	assert.Equal(t, int32(2560), mode.Width)

	got, _ := state.OutputInfo(3)
	assert.Equal(t, int32(2), got.Scale)
}

func TestOutputRemoval(t *testing.T) {
	d, srv := wltest.Pair(t)

	handler := &recordingHandler{}
	state := output.NewState(d, handler)

	srv.Global(wltest.RegistryID(d), 9, "wl_output", 4)
	require.NoError(t, d.Dispatch())
	bind := srv.Recv()
	outputID := wltest.BindNewID(t, bind)

	srv.Send(outputID, 4, "HDMI-A-1")
	srv.Send(outputID, 2)
	require.NoError(t, d.Dispatch())
	require.NoError(t, d.Dispatch())

	srv.GlobalRemove(wltest.RegistryID(d), 9)
	require.NoError(t, d.Dispatch())

	require.Len(t, handler.removed, 1)
	assert.Equal(t, "HDMI-A-1", handler.removed[0].Name)
	assert.Empty(t, state.Outputs())

	_, ok := state.OutputInfo(9)
	assert.False(t, ok)
}
