package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ghostpirates/crew/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("crewd version %s\n", version.Get())
	},
}
