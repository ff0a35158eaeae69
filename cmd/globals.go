package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

// GlobalInfo represents one advertised global in the JSON output
type GlobalInfo struct {
	Name      uint32 `json:"name"`
	Interface string `json:"interface"`
	Version   uint32 `json:"version"`
}

var globalsCmd = &cobra.Command{
	Use:   "globals",
	Short: "List the compositor's advertised globals",
	Long:  `Connect to the compositor and list every global in its registry.`,
	RunE:  runGlobals,
}

func init() {
	rootCmd.AddCommand(globalsCmd)
}

func runGlobals(cmd *cobra.Command, args []string) error {
	s, err := newSession(nil, nil)
	if err != nil {
		return err
	}
	defer s.close()

	globals := s.display.Registry().Globals()
	sort.Slice(globals, func(i, j int) bool { return globals[i].Name < globals[j].Name })

	if jsonOutput {
		out := make([]GlobalInfo, len(globals))
		for i, g := range globals {
			out[i] = GlobalInfo{Name: g.Name, Interface: g.Interface, Version: g.Version}
		}
		return json.NewEncoder(os.Stdout).Encode(out)
	}

	if len(globals) == 0 {
		fmt.Println("No globals advertised")
		return nil
	}
	for _, g := range globals {
		fmt.Printf("%4d: %s v%d\n", g.Name, g.Interface, g.Version)
	}
	return nil
}
