package dmabuf

import (
	"encoding/binary"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/bnema/wlkit/client"
	"github.com/bnema/wlkit/internal/logger"
)

const (
	reqFeedbackDestroy = 0

	eventFeedbackDone                = 0
	eventFeedbackFormatTable         = 1
	eventFeedbackMainDevice          = 2
	eventFeedbackTrancheDone         = 3
	eventFeedbackTrancheTargetDevice = 4
	eventFeedbackTrancheFormats      = 5
	eventFeedbackTrancheFlags        = 6
)

// TrancheFlagScanout marks a tranche whose formats can hit a hardware plane
// directly.
const TrancheFlagScanout uint32 = 1

// formatTableEntrySize is format u32 + padding u32 + modifier u64.
const formatTableEntrySize = 16

// Tranche is one preference group: formats the compositor can consume on
// the target device, most preferred tranche first in FeedbackInfo.
type Tranche struct {
	TargetDevice uint64
	Flags        uint32
	Formats      []Format
}

// FeedbackInfo is one complete feedback snapshot, delivered only after the
// done event so consumers never see a partial device/tranche mix.
type FeedbackInfo struct {
	MainDevice uint64
	Tranches   []Tranche
}

// Feedback is a zwp_linux_dmabuf_feedback_v1 object. The compositor may
// resend the whole sequence at any time (a surface migrating between GPUs);
// each sequence ends with done and one handler call.
type Feedback struct {
	client.BaseProxy
	state   *State
	handler func(FeedbackInfo)

	// dispatch goroutine only
	table          []Format
	pending        FeedbackInfo
	pendingTranche Tranche

	mu      sync.RWMutex
	current FeedbackInfo
	ready   bool
}

// Info returns the last complete snapshot.
func (f *Feedback) Info() (FeedbackInfo, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current, f.ready
}

// Destroy releases the feedback object.
func (f *Feedback) Destroy() error {
	err := f.SendRequest(reqFeedbackDestroy)
	f.MarkStale()
	f.state.display.Destroyed(f.ID())
	return err
}

// Dispatch implements client.Proxy.
func (f *Feedback) Dispatch(e *client.Event) {
	switch e.Opcode {
	case eventFeedbackFormatTable:
		fd, err := e.FD()
		if err != nil {
			logger.Warnf("dmabuf format table missing fd: %v", err)
			return
		}
		size := e.Uint32()
		f.table = readFormatTable(fd, int(size))

	case eventFeedbackMainDevice:
		f.pending.MainDevice = decodeDevice(e.Array())

	case eventFeedbackTrancheTargetDevice:
		f.pendingTranche.TargetDevice = decodeDevice(e.Array())

	case eventFeedbackTrancheFlags:
		f.pendingTranche.Flags = e.Uint32()

	case eventFeedbackTrancheFormats:
		raw := e.Array()
		formats := make([]Format, 0, len(raw)/2)
		for i := 0; i+2 <= len(raw); i += 2 {
			idx := int(binary.LittleEndian.Uint16(raw[i:]))
			if idx >= len(f.table) {
				logger.Warnf("dmabuf tranche references format index %d outside table of %d", idx, len(f.table))
				continue
			}
			formats = append(formats, f.table[idx])
		}
		f.pendingTranche.Formats = formats

	case eventFeedbackTrancheDone:
		f.pending.Tranches = append(f.pending.Tranches, f.pendingTranche)
		f.pendingTranche = Tranche{}

	case eventFeedbackDone:
		f.commit()
	}
}

func (f *Feedback) commit() {
	info := f.pending
	f.pending = FeedbackInfo{}
	f.pendingTranche = Tranche{}

	f.mu.Lock()
	f.current = info
	f.ready = true
	f.mu.Unlock()

	if f.handler != nil {
		f.handler(info)
	}
}

// readFormatTable maps the table file read-only, copies the entries out and
// drops the mapping and descriptor.
func readFormatTable(fd int, size int) []Format {
	defer unix.Close(fd)
	if size < formatTableEntrySize {
		return nil
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		logger.Warnf("dmabuf: mmap format table: %v", err)
		return nil
	}
	defer unix.Munmap(data)

	n := size / formatTableEntrySize
	table := make([]Format, 0, n)
	for i := 0; i < n; i++ {
		off := i * formatTableEntrySize
		table = append(table, Format{
			Format:   binary.LittleEndian.Uint32(data[off:]),
			Modifier: binary.LittleEndian.Uint64(data[off+8:]),
		})
	}
	return table
}

// decodeDevice extracts the dev_t carried in a device array.
func decodeDevice(raw []byte) uint64 {
	if len(raw) >= 8 {
		return binary.LittleEndian.Uint64(raw)
	}
	if len(raw) >= 4 {
		return uint64(binary.LittleEndian.Uint32(raw))
	}
	return 0
}
