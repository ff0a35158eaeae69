package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

// SeatInfo represents one seat in the JSON output
type SeatInfo struct {
	Name     string `json:"name"`
	Pointer  bool   `json:"pointer"`
	Keyboard bool   `json:"keyboard"`
	Touch    bool   `json:"touch"`
}

var seatsCmd = &cobra.Command{
	Use:   "seats",
	Short: "Show the compositor's seats and their capabilities",
	RunE:  runSeats,
}

func init() {
	rootCmd.AddCommand(seatsCmd)
}

func runSeats(cmd *cobra.Command, args []string) error {
	s, err := newSession(nil, nil)
	if err != nil {
		return err
	}
	defer s.close()

	seats := s.seats.Seats()
	sort.Slice(seats, func(i, j int) bool { return seats[i].Name() < seats[j].Name() })

	if jsonOutput {
		out := make([]SeatInfo, len(seats))
		for i, st := range seats {
			out[i] = SeatInfo{
				Name:     st.Name(),
				Pointer:  st.HasPointer(),
				Keyboard: st.HasKeyboard(),
				Touch:    st.HasTouch(),
			}
		}
		return json.NewEncoder(os.Stdout).Encode(out)
	}

	if len(seats) == 0 {
		fmt.Println("No seats advertised")
		return nil
	}
	for _, st := range seats {
		fmt.Printf("%s: %s\n", st.Name(), st.Capabilities())
	}
	return nil
}
