package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/bnema/wlkit/output"
)

// OutputInfo represents one output in the JSON output
type OutputInfo struct {
	ID          uint32 `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Make        string `json:"make,omitempty"`
	Model       string `json:"model,omitempty"`
	X           int32  `json:"x"`
	Y           int32  `json:"y"`
	Width       int32  `json:"width"`
	Height      int32  `json:"height"`
	RefreshMHz  int32  `json:"refresh_mhz"`
	Scale       int32  `json:"scale"`
	Transform   int32  `json:"transform"`
	ModeCount   int    `json:"mode_count"`
}

var outputsCmd = &cobra.Command{
	Use:   "outputs",
	Short: "Show the compositor's outputs",
	Long:  `Display information about connected outputs: geometry, modes and scale.`,
	RunE:  runOutputs,
}

func init() {
	rootCmd.AddCommand(outputsCmd)
}

func outputInfo(info output.Info) OutputInfo {
	oi := OutputInfo{
		ID:          info.ID,
		Name:        info.Name,
		Description: info.Description,
		Make:        info.Make,
		Model:       info.Model,
		X:           info.X,
		Y:           info.Y,
		Scale:       info.Scale,
		Transform:   info.Transform,
		ModeCount:   len(info.Modes),
	}
	if mode, ok := info.CurrentMode(); ok {
		oi.Width = mode.Width
		oi.Height = mode.Height
		oi.RefreshMHz = mode.Refresh
	}
	return oi
}

func runOutputs(cmd *cobra.Command, args []string) error {
	s, err := newSession(nil, nil)
	if err != nil {
		return err
	}
	defer s.close()

	infos := s.outputs.Outputs()
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	if jsonOutput {
		out := make([]OutputInfo, len(infos))
		for i, info := range infos {
			out[i] = outputInfo(info)
		}
		return json.NewEncoder(os.Stdout).Encode(out)
	}

	if len(infos) == 0 {
		fmt.Println("No outputs detected")
		return nil
	}

	fmt.Printf("Detected %d output(s):\n\n", len(infos))
	for _, info := range infos {
		name := info.Name
		if name == "" {
			name = fmt.Sprintf("output-%d", info.ID)
		}
		fmt.Printf("%s:\n", name)
		if info.Description != "" {
			fmt.Printf("  Description: %s\n", info.Description)
		}
		if info.Make != "" || info.Model != "" {
			fmt.Printf("  Hardware:    %s %s\n", info.Make, info.Model)
		}
		if mode, ok := info.CurrentMode(); ok {
			fmt.Printf("  Resolution:  %dx%d @ %.3f Hz\n", mode.Width, mode.Height, float64(mode.Refresh)/1000)
		}
		fmt.Printf("  Position:    (%d, %d)\n", info.X, info.Y)
		fmt.Printf("  Scale:       %d\n", info.Scale)
		fmt.Printf("  Modes:       %d\n", len(info.Modes))
		fmt.Println()
	}
	return nil
}
