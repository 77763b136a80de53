package main

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gardend",
	Short: "gardend - automated garden irrigation daemon",
	Long: `gardend runs watering cycles from a JSON program document, polls the
irrigation hardware, logs every run to CSV and batches Telegram
notifications about finished cycles.`,
	Version: Version,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
}
