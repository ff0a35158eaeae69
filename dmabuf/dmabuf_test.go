package dmabuf_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/bnema/wlkit/client"
	"github.com/bnema/wlkit/dmabuf"
	"github.com/bnema/wlkit/internal/wire"
	"github.com/bnema/wlkit/internal/wltest"
)

const (
	fourccXR24 = 0x34325258
	fourccAR24 = 0x34325241
)

func bind(t *testing.T, version uint32) (*client.Display, *wltest.Server, *dmabuf.State, uint32) {
	t.Helper()
	d, srv := wltest.Pair(t)
	state := dmabuf.NewState(d)
	srv.Global(wltest.RegistryID(d), 4, "zwp_linux_dmabuf_v1", version)
	require.NoError(t, d.Dispatch())
	id := wltest.BindNewID(t, srv.Recv())
	return d, srv, state, id
}

// formatTableFD builds the v4 format table file: 16-byte entries of
// fourcc + padding + modifier.
func formatTableFD(t *testing.T, formats []dmabuf.Format) (wire.FD, uint32) {
	t.Helper()
	fd, err := unix.MemfdCreate("format-table", unix.MFD_CLOEXEC)
	require.NoError(t, err)

	buf := make([]byte, 16*len(formats))
	for i, f := range formats {
		binary.LittleEndian.PutUint32(buf[i*16:], f.Format)
		binary.LittleEndian.PutUint64(buf[i*16+8:], f.Modifier)
	}
	_, err = unix.Write(fd, buf)
	require.NoError(t, err)
	t.Cleanup(func() { unix.Close(fd) })
	return wire.FD(fd), uint32(len(buf))
}

func TestLegacyFormatEvents(t *testing.T) {
	d, srv, state, id := bind(t, 3)

	srv.Send(id, 0, uint32(fourccXR24))
	srv.Send(id, 1, uint32(fourccAR24), uint32(0), uint32(4)) // I915_X_TILED
	require.NoError(t, d.Dispatch())
	require.NoError(t, d.Dispatch())

	formats := state.Formats()
	require.Len(t, formats, 2)
	assert.Equal(t, uint32(fourccXR24), formats[0].Format)
	assert.Equal(t, dmabuf.ModifierInvalid, formats[0].Modifier)
	assert.Equal(t, uint64(4), formats[1].Modifier)

	_, err := state.GetDefaultFeedback(nil)
	assert.ErrorIs(t, err, client.ErrNotAvailable, "feedback needs v4")
}

func TestFeedbackCoalescesTranches(t *testing.T) {
	d, srv, state, id := bind(t, 4)

	var snapshots []dmabuf.FeedbackInfo
	fb, err := state.GetDefaultFeedback(func(info dmabuf.FeedbackInfo) {
		snapshots = append(snapshots, info)
	})
	require.NoError(t, err)

	getFeedback := srv.Recv()
	assert.Equal(t, id, getFeedback.Object)
	assert.Equal(t, uint16(2), getFeedback.Opcode)
	fbID := wltest.Uint32(t, getFeedback, 0)

	tableFD, tableSize := formatTableFD(t, []dmabuf.Format{
		{Format: fourccXR24, Modifier: 0},
		{Format: fourccAR24, Modifier: 0},
		{Format: fourccXR24, Modifier: 4},
	})

	device := make([]byte, 8)
	binary.LittleEndian.PutUint64(device, 0xe200)

	indices := func(idx ...uint16) []byte {
		b := make([]byte, 2*len(idx))
		for i, v := range idx {
			binary.LittleEndian.PutUint16(b[i*2:], v)
		}
		return b
	}

	srv.Send(fbID, 1, tableFD, tableSize) // format_table
	srv.Send(fbID, 2, device)             // main_device
	srv.Send(fbID, 4, device)             // tranche_target_device
	srv.Send(fbID, 6, uint32(dmabuf.TrancheFlagScanout))
	srv.Send(fbID, 5, indices(0, 2))
	srv.Send(fbID, 3) // tranche_done
	srv.Send(fbID, 4, device)
	srv.Send(fbID, 6, uint32(0))
	srv.Send(fbID, 5, indices(1))
	srv.Send(fbID, 3)
	for i := 0; i < 10; i++ {
		require.NoError(t, d.Dispatch())
	}
	assert.Empty(t, snapshots, "no delivery before done")
	_, ready := fb.Info()
	assert.False(t, ready)

	srv.Send(fbID, 0) // done
	require.NoError(t, d.Dispatch())

	require.Len(t, snapshots, 1)
	info := snapshots[0]
	assert.Equal(t, uint64(0xe200), info.MainDevice)
	require.Len(t, info.Tranches, 2)

	scanout := info.Tranches[0]
	assert.Equal(t, dmabuf.TrancheFlagScanout, scanout.Flags)
	require.Len(t, scanout.Formats, 2)
	assert.Equal(t, uint64(4), scanout.Formats[1].Modifier)

	fallback := info.Tranches[1]
	require.Len(t, fallback.Formats, 1)
	assert.Equal(t, uint32(fourccAR24), fallback.Formats[0].Format)

	got, ready := fb.Info()
	require.True(t, ready)
	assert.Equal(t, info, got)
}

func TestFeedbackResend(t *testing.T) {
	d, srv, state, _ := bind(t, 4)

	var snapshots []dmabuf.FeedbackInfo
	_, err := state.GetDefaultFeedback(func(info dmabuf.FeedbackInfo) {
		snapshots = append(snapshots, info)
	})
	require.NoError(t, err)
	fbID := wltest.Uint32(t, srv.Recv(), 0)

	device := make([]byte, 8)
	binary.LittleEndian.PutUint64(device, 1)
	srv.Send(fbID, 2, device)
	srv.Send(fbID, 0)
	require.NoError(t, d.Dispatch())
	require.NoError(t, d.Dispatch())

	// Surface moved devices: a full new sequence arrives.
	binary.LittleEndian.PutUint64(device, 2)
	srv.Send(fbID, 2, device)
	srv.Send(fbID, 0)
	require.NoError(t, d.Dispatch())
	require.NoError(t, d.Dispatch())

	require.Len(t, snapshots, 2)
	assert.Equal(t, uint64(1), snapshots[0].MainDevice)
	assert.Equal(t, uint64(2), snapshots[1].MainDevice)
	assert.Empty(t, snapshots[1].Tranches)
}
