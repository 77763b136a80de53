package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gardend/gardend/internal/version"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Long:  `Display the version, build time and git commit of gardend.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}
