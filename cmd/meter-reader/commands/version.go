package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("meter-reader %s\n", build.Version)
			fmt.Printf("  Build time: %s\n", build.BuildTime)
			fmt.Printf("  Git commit: %s\n", build.GitCommit)
			return nil
		},
	}
}
