package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func getVersion() string {
	return version
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the magpie version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("magpie %s\n", getVersion())
		},
	}
}
