package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "focustrack",
	Short: "focustrack - Foreground application usage tracker",
	Long: `focustrack samples which application holds input focus once per second,
appends every completed usage interval to a CSV log and keeps an HTML report
of the per-application totals up to date. It runs until interrupted.`,
	Version:       version,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to tracking when no subcommand is provided
		return runTrack(cmd, args)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (optional)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
