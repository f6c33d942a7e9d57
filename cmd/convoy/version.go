package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/convoy/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the convoy version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("convoy %s\n", version.Version)
	},
}
