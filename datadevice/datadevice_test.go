package datadevice_test

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/bnema/wlkit/client"
	"github.com/bnema/wlkit/datadevice"
	"github.com/bnema/wlkit/internal/wire"
	"github.com/bnema/wlkit/internal/wltest"
)

type stubSeat struct{ id uint32 }

func (s stubSeat) ID() uint32 { return s.id }

func bind(t *testing.T) (*client.Display, *wltest.Server, *datadevice.State, uint32) {
	t.Helper()
	d, srv := wltest.Pair(t)
	state := datadevice.NewState(d)
	srv.Global(wltest.RegistryID(d), 8, "wl_data_device_manager", 3)
	require.NoError(t, d.Dispatch())
	mgrID := wltest.BindNewID(t, srv.Recv())
	return d, srv, state, mgrID
}

func getDevice(t *testing.T, srv *wltest.Server, state *datadevice.State, handlers datadevice.DeviceHandlers) (*datadevice.Device, uint32) {
	t.Helper()
	dev, err := state.GetDevice(stubSeat{id: 30}, handlers)
	require.NoError(t, err)
	req := srv.Recv()
	assert.Equal(t, uint16(1), req.Opcode)
	return dev, wltest.Uint32(t, req, 0)
}

func TestSelectionOfferComplete(t *testing.T) {
	d, srv, state, _ := bind(t)

	var selections []*datadevice.Offer
	dev, devID := getDevice(t, srv, state, datadevice.DeviceHandlers{
		OnSelection: func(o *datadevice.Offer) { selections = append(selections, o) },
	})

	// Server-allocated offer ids live in the upper range.
	const offerID = 0xff000001
	srv.Send(devID, 0, uint32(offerID)) // data_offer
	srv.Send(offerID, 0, "text/plain;charset=utf-8")
	srv.Send(offerID, 0, "text/html")
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Dispatch())
	}
	assert.Empty(t, selections, "offer must not surface before selection")

	srv.Send(devID, 5, uint32(offerID)) // selection
	require.NoError(t, d.Dispatch())

	require.Len(t, selections, 1)
	offer := selections[0]
	require.NotNil(t, offer)
	assert.True(t, offer.Offers("text/html"))
	assert.Equal(t, []string{"text/plain;charset=utf-8", "text/html"}, offer.MimeTypes())
	assert.Same(t, offer, dev.Selection())
}

func TestSelectionCleared(t *testing.T) {
	d, srv, state, _ := bind(t)

	var selections []*datadevice.Offer
	dev, devID := getDevice(t, srv, state, datadevice.DeviceHandlers{
		OnSelection: func(o *datadevice.Offer) { selections = append(selections, o) },
	})

	srv.Send(devID, 5, uint32(0))
	require.NoError(t, d.Dispatch())

	require.Len(t, selections, 1)
	assert.Nil(t, selections[0])
	assert.Nil(t, dev.Selection())
}

func TestReceivePipesData(t *testing.T) {
	d, srv, state, _ := bind(t)

	var offer *datadevice.Offer
	_, devID := getDevice(t, srv, state, datadevice.DeviceHandlers{
		OnSelection: func(o *datadevice.Offer) { offer = o },
	})

	const offerID = 0xff000002
	srv.Send(devID, 0, uint32(offerID))
	srv.Send(offerID, 0, "text/plain")
	srv.Send(devID, 5, uint32(offerID))
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Dispatch())
	}
	require.NotNil(t, offer)

	_, err := offer.Receive("image/png")
	assert.ErrorIs(t, err, client.ErrNotAvailable)

	r, err := offer.Receive("text/plain")
	require.NoError(t, err)
	defer r.Close()

	receive := srv.Recv()
	assert.Equal(t, uint32(offerID), receive.Object)
	assert.Equal(t, uint16(1), receive.Opcode)
	fd := srv.TakeFD()

	_, err = unix.Write(fd, []byte("hello"))
	require.NoError(t, err)
	unix.Close(fd)

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestSourceServesSendAndCancel(t *testing.T) {
	d, srv, state, mgrID := bind(t)

	cancelled := false
	src, err := state.CreateSource([]string{"text/plain"}, datadevice.SourceHandlers{
		OnSend: func(mime string, w *os.File) {
			defer w.Close()
			_, _ = w.WriteString("clip")
		},
		OnCancelled: func() { cancelled = true },
	})
	require.NoError(t, err)

	create := srv.Recv()
	assert.Equal(t, mgrID, create.Object)
	assert.Equal(t, uint16(0), create.Opcode)
	srcID := wltest.Uint32(t, create, 0)

	offerReq := srv.Recv()
	assert.Equal(t, srcID, offerReq.Object)
	assert.Equal(t, uint16(0), offerReq.Opcode)

	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_CLOEXEC))
	srv.Send(srcID, 1, "text/plain", wire.FD(fds[1]))
	unix.Close(fds[1])
	require.NoError(t, d.Dispatch())

	r := os.NewFile(uintptr(fds[0]), "recv")
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "clip", string(data))

	srv.Send(srcID, 2)
	require.NoError(t, d.Dispatch())
	assert.True(t, cancelled)

	require.NoError(t, src.Destroy())
	destroy := srv.Recv()
	assert.Equal(t, srcID, destroy.Object)
	assert.Equal(t, uint16(1), destroy.Opcode)
}

func TestDragEnterDeliversOffer(t *testing.T) {
	d, srv, state, _ := bind(t)

	var entered *datadevice.Offer
	var enterX float64
	_, devID := getDevice(t, srv, state, datadevice.DeviceHandlers{
		OnEnter: func(serial, surface uint32, x, y float64, o *datadevice.Offer) {
			entered = o
			enterX = x
		},
	})

	const offerID = 0xff000003
	srv.Send(devID, 0, uint32(offerID))
	srv.Send(offerID, 0, "text/uri-list")
	srv.Send(devID, 1, uint32(9), uint32(42), wire.FixedFromFloat64(12.5), wire.FixedFromFloat64(1), uint32(offerID))
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Dispatch())
	}

	require.NotNil(t, entered)
	assert.True(t, entered.Offers("text/uri-list"))
	assert.Equal(t, 12.5, enterX)
}
