package cmd

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/bnema/wlkit/client"
	"github.com/bnema/wlkit/internal/ui"
	"github.com/bnema/wlkit/output"
	"github.com/bnema/wlkit/seat"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live view of outputs and seats",
	Long:  `Show a continuously updating view of the compositor's outputs and seats, reflecting hotplugs and mode changes as they happen.`,
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// watchBridge forwards tracker callbacks into the running tea program.
type watchBridge struct {
	program *tea.Program
	session *session
}

func (b *watchBridge) push() {
	// Callbacks fire during the setup roundtrips, before the program runs.
	if b.program == nil {
		return
	}
	b.program.Send(ui.OutputsMsg(b.session.outputs.Outputs()))

	seats := b.session.seats.Seats()
	lines := make([]string, 0, len(seats))
	for _, s := range seats {
		lines = append(lines, fmt.Sprintf("seat %s: %s", s.Name(), s.Capabilities()))
	}
	b.program.Send(ui.SeatsMsg(lines))
}

func (b *watchBridge) NewOutput(output.Info)     { b.push() }
func (b *watchBridge) OutputUpdated(output.Info) { b.push() }
func (b *watchBridge) OutputRemoved(output.Info) { b.push() }

func (b *watchBridge) NewSeat(*seat.Seat)                 { b.push() }
func (b *watchBridge) SeatCapabilitiesChanged(*seat.Seat) { b.push() }
func (b *watchBridge) SeatRemoved(*seat.Seat)             { b.push() }

func runWatch(cmd *cobra.Command, args []string) error {
	bridge := &watchBridge{}

	s, err := newSession(bridge, bridge)
	if err != nil {
		return err
	}
	defer s.close()

	program := tea.NewProgram(ui.NewWatchModel())
	bridge.program = program
	bridge.session = s

	s.display.OnClose(func(err error) {
		if errors.Is(err, client.ErrConnClosed) {
			err = nil
		}
		program.Send(ui.DisconnectedMsg{Err: err})
	})

	// The dispatch loop feeds the trackers; the bridge pushes snapshots
	// into the UI.
	go func() {
		for {
			if err := s.display.Dispatch(); err != nil {
				return
			}
		}
	}()
	bridge.push()

	model, err := program.Run()
	if err != nil {
		return err
	}
	if m, ok := model.(ui.WatchModel); ok && m.Err() != nil {
		return m.Err()
	}
	return nil
}
