package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bnema/wlkit/internal/config"
	"github.com/bnema/wlkit/internal/logger"
)

var (
	// Version is set during build
	Version = "0.1.0-dev"

	configPath string
	jsonOutput bool

	rootCmd = &cobra.Command{
		Use:   "wlkit-info",
		Short: "wlkit-info - Wayland compositor introspection",
		Long: `wlkit-info connects to the running Wayland compositor and reports its
globals, outputs, seats and buffer formats. It is the demo client for the
wlkit library and doubles as a debugging tool for compositor state.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				config.SetConfigPath(configPath)
			}
			if err := config.Init(); err != nil {
				return err
			}
			if lvl := config.Get().Logging.LogLevel; lvl != "" {
				logger.SetLevel(lvl)
			}
			if !cmd.Flags().Changed("json") {
				jsonOutput = config.Get().Output.JSON
			}
			return nil
		},
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

// Exit with error message
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
