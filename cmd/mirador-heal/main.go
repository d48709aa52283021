package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "mirador-heal",
		Short: "Self-healing error telemetry pipeline",
		Long: `mirador-heal captures application errors, mines recurring patterns,
attempts automatic corrections and raises alerts when thresholds are crossed.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to configuration file (defaults to $MIRADOR_HEAL_CONFIG)")

	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(exportCmd(opts))
	rootCmd.AddCommand(importCmd(opts))
	rootCmd.AddCommand(reportCmd(opts))
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
