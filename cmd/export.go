package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/pcapsift/internal/engine"
	"firestige.xyz/pcapsift/internal/log"
	"firestige.xyz/pcapsift/internal/manifest"
	"firestige.xyz/pcapsift/internal/report"
)

// exportOptions holds the export flags.
type exportOptions struct {
	OutputDir    string
	ArchiveName  string
	ManifestFile string
	Captures     []string
	Artifacts    []string
	Meta         report.Metadata
}

var exportOpts exportOptions

var exportCmd = &cobra.Command{
	Use:   "export [artifact...]",
	Short: "Package artifacts and a forensic report into a zip archive",
	Long: `Write a zip archive whose first entry is info.txt (operator, time window,
SHA-256 of every artifact, URLs and endpoints seen in the captures) followed
by the artifacts themselves, stored uncompressed.

Artifacts come from --manifest, from the arguments, or both. When --capture
is omitted the capture recorded in the manifest is scanned.

Examples:
  pcapsift export --manifest extracted_files/manifest.yaml --out . --name Jan --surname Kowalski
  pcapsift export --capture a.pcap --capture b.pcap --out /cases/42 --archive case42.zip a.png b.js`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := exportOpts
		opts.Artifacts = args
		if !cmd.Flags().Changed("archive") && cfg != nil {
			opts.ArchiveName = cfg.Report.ArchiveName
		}
		return runExport(eng, opts, cmd.OutOrStdout(), console)
	},
}

func init() {
	f := exportCmd.Flags()
	f.StringVarP(&exportOpts.OutputDir, "out", "o", "", "directory receiving the archive (required)")
	f.StringVar(&exportOpts.ArchiveName, "archive", "report.zip", "archive file name")
	f.StringVarP(&exportOpts.ManifestFile, "manifest", "m", "", "manifest.yaml written by analyze")
	f.StringSliceVar(&exportOpts.Captures, "capture", nil, "capture scanned for URLs and endpoints (repeatable)")
	f.StringVar(&exportOpts.Meta.Name, "name", "", "operator name")
	f.StringVar(&exportOpts.Meta.Surname, "surname", "", "operator surname")
	f.StringVar(&exportOpts.Meta.TimeStart, "from", "", "start of the examined time window")
	f.StringVar(&exportOpts.Meta.TimeEnd, "to", "", "end of the examined time window")
	exportCmd.MarkFlagRequired("out")
}

func runExport(e Engine, opts exportOptions, out io.Writer, logger log.Logger) error {
	files := opts.Artifacts
	captures := opts.Captures

	if opts.ManifestFile != "" {
		m, err := manifest.Read(opts.ManifestFile)
		if err != nil {
			return err
		}
		files = append(append([]string(nil), m.Artifacts...), files...)
		if len(captures) == 0 && m.Capture != "" {
			captures = []string{m.Capture}
		}
	}
	if len(files) == 0 {
		logger.Warn("no artifacts given, the archive will hold info.txt only")
	}

	archive, err := e.ExportReport(engine.ExportRequest{
		Manifest:    files,
		OutputDir:   opts.OutputDir,
		ArchiveName: opts.ArchiveName,
		Captures:    captures,
		Meta:        opts.Meta,
	})
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	fmt.Fprintf(out, "Zip file created at: %s\n", archive)
	return nil
}
