package cmd

import (
	"fmt"

	"github.com/bnema/wlkit/client"
	"github.com/bnema/wlkit/compositor"
	"github.com/bnema/wlkit/dmabuf"
	"github.com/bnema/wlkit/internal/config"
	"github.com/bnema/wlkit/output"
	"github.com/bnema/wlkit/seat"
	"github.com/bnema/wlkit/shm"
)

// session bundles one compositor connection with the capability trackers the
// subcommands read from.
type session struct {
	display    *client.Display
	compositor *compositor.State
	outputs    *output.State
	seats      *seat.State
	shm        *shm.State
	dmabuf     *dmabuf.State
}

// newSession connects and runs the roundtrips needed for every tracker to
// settle: one for the global burst, one for the per-global state bursts the
// binds trigger.
func newSession(outputHandler output.Handler, seatHandler seat.Handler) (*session, error) {
	display, err := client.Connect(config.Get().Display.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to compositor: %w", err)
	}

	s := &session{
		display:    display,
		compositor: compositor.NewState(display),
		outputs:    output.NewState(display, outputHandler),
		seats:      seat.NewState(display, seatHandler),
		shm:        shm.NewState(display),
		dmabuf:     dmabuf.NewState(display),
	}

	for i := 0; i < 2; i++ {
		if err := display.Roundtrip(); err != nil {
			display.Close()
			return nil, fmt.Errorf("initial roundtrip failed: %w", err)
		}
	}
	return s, nil
}

func (s *session) close() {
	_ = s.display.Close()
}
