package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var urlsCmd = &cobra.Command{
	Use:   "urls <capture>...",
	Short: "List the websites referenced in captures",
	Long: `Scan the raw bytes of each capture for http, https and ftp URLs and print
one "scheme://host/" line per distinct host. Unreadable captures are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runURLs(eng, args, cmd.OutOrStdout())
	},
}

var endpointsCmd = &cobra.Command{
	Use:   "endpoints <capture>...",
	Short: "List the TCP/UDP endpoints seen in captures",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEndpoints(eng, args, cmd.OutOrStdout())
	},
}

func runURLs(e Engine, paths []string, out io.Writer) error {
	_, err := fmt.Fprint(out, e.ExtractURLs(paths))
	return err
}

func runEndpoints(e Engine, paths []string, out io.Writer) error {
	_, err := fmt.Fprint(out, e.ExtractEndpoints(paths))
	return err
}
