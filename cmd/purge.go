package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var purgeCmd = &cobra.Command{
	Use:   "purge <capture>",
	Short: "Remove the export directory of a capture",
	Long: `Delete the extracted_files directory next to the capture, with everything
it contains. Fails when the directory does not exist.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPurge(eng, args[0], cmd.OutOrStdout())
	},
}

func runPurge(e Engine, capturePath string, out io.Writer) error {
	msg, err := e.PurgeExports(capturePath)
	if err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}
	fmt.Fprintf(out, "✓ %s\n", msg)
	return nil
}
