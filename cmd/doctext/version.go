package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// These are set at build time via -ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of doctext",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "doctext %s\n", version)
		fmt.Fprintf(out, "  commit:     %s\n", commit)
		fmt.Fprintf(out, "  built:      %s\n", buildDate)
		if info, ok := debug.ReadBuildInfo(); ok {
			fmt.Fprintf(out, "  go version: %s\n", info.GoVersion)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
