package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/kbukum/speechgate/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			v := version.Get()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "speechgate %s\n", v.Short())
			fmt.Fprintf(out, "  Git Commit: %s\n", v.GitCommit)
			fmt.Fprintf(out, "  Build Time: %s\n", v.BuildTime)
			fmt.Fprintf(out, "  Go Version: %s\n", v.GoVersion)
			fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
