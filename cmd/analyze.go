package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/pcapsift/internal/engine"
	"firestige.xyz/pcapsift/internal/log"
	"firestige.xyz/pcapsift/internal/manifest"
)

var (
	analyzeOut string
	carveOut   string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <capture>",
	Short: "Extract HTTP resources and carved files from a capture",
	Long: `Reassemble every flow of a capture, extract allow-listed HTTP/1.x and
HTTP/2 resources, carve files identified by signature, and write them to the
output directory together with manifest.yaml.

Examples:
  pcapsift analyze dump.pcap                  # writes to extracted_files/ next to dump.pcap
  pcapsift analyze dump.pcapng --out /cases/42`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnalyze(cmd.Context(), eng, args[0], analyzeOut, cmd.OutOrStdout(), console)
	},
}

var carveCmd = &cobra.Command{
	Use:   "carve <capture>",
	Short: "Carve files by signature only",
	Long: `Reassemble every flow of a capture and carve files identified by their
signature, without HTTP extraction. Without --out a temporary directory is used.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCarve(cmd.Context(), eng, args[0], carveOut, cmd.OutOrStdout(), console)
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeOut, "out", "o", "", "output directory")
	carveCmd.Flags().StringVarP(&carveOut, "out", "o", "", "output directory")
}

func runAnalyze(ctx context.Context, e Engine, capturePath, outDir string, out io.Writer, logger log.Logger) error {
	res, err := e.Analyze(ctx, capturePath, outDir)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	return finishRun(res, out, logger)
}

func runCarve(ctx context.Context, e Engine, capturePath, outDir string, out io.Writer, logger log.Logger) error {
	res, err := e.Carve(ctx, capturePath, outDir)
	if err != nil {
		return fmt.Errorf("carving failed: %w", err)
	}
	return finishRun(res, out, logger)
}

// finishRun writes the manifest and prints one artifact path per line.
func finishRun(res *engine.Result, out io.Writer, logger log.Logger) error {
	mpath := manifest.Path(res.OutputDir)
	if err := manifest.Write(mpath, res.Manifest()); err != nil {
		return err
	}

	for _, p := range res.Artifacts {
		fmt.Fprintln(out, p)
	}
	for _, f := range res.Failures {
		logger.WithField("identity", f.Identity).WithError(f.Err).Warn("not exported")
	}
	if res.Stats.Truncated {
		logger.Warnf("packet budget reached after %d packets", res.Stats.Packets)
	}
	logger.WithField("run_id", res.RunID).
		Infof("%d artifact(s) written to %s, %d failure(s), manifest %s",
			len(res.Artifacts), res.OutputDir, len(res.Failures), mpath)
	return nil
}
