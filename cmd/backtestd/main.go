package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "backtestd",
	Short: "backtestd - historical trading strategy simulation service",
	Long: `backtestd replays trading strategies against historical daily bars,
simulating a cash portfolio with slippage and commission, and reports
performance metrics. It runs as an HTTP service or as a one-shot CLI.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
