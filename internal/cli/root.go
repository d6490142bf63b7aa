package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the vidgen command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vidgen",
		Short:         "Submit and track remote video generation jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newSubmitCmd(),
		newListCmd(),
		newStatusCmd(),
		newWatchCmd(),
		newDownloadCmd(),
		newDeleteCmd(),
		newExportCmd(),
		newTemplatesCmd(),
		newAuthCmd(),
	)
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vidgen:", err)
		os.Exit(1)
	}
}
