package engine

import (
	"fmt"
	"path/filepath"

	"firestige.xyz/pcapsift/internal/artifact"
	"firestige.xyz/pcapsift/internal/config"
	"firestige.xyz/pcapsift/internal/report"
)

// ExportRequest describes one report archive.
type ExportRequest struct {
	Manifest    []string // artifact files, in report order
	OutputDir   string   // directory receiving the archive
	ArchiveName string   // defaults to report.zip
	Captures    []string // scanned for URLs and endpoints
	Meta        report.Metadata
}

// ExportReport packages the manifest files and info.txt into a zip archive
// and returns its path.
func (e *Engine) ExportReport(req ExportRequest) (string, error) {
	name := req.ArchiveName
	if name == "" {
		name = config.DefaultArchiveName
	}
	archivePath := filepath.Join(req.OutputDir, name)

	e.logger.Info("exporting report", "path", archivePath, "files", len(req.Manifest), "captures", len(req.Captures))
	return report.Package(req.Manifest, req.Meta, req.Captures, archivePath)
}

// ExtractURLs returns the URL section of the report for the given captures.
func (e *Engine) ExtractURLs(paths []string) string {
	return report.URLSection(report.ExtractURLs(paths))
}

// ExtractEndpoints returns the endpoint section of the report for the given
// captures.
func (e *Engine) ExtractEndpoints(paths []string) string {
	return report.EndpointSection(report.ExtractEndpoints(paths))
}

// PurgeExports removes the export directory next to capturePath and
// returns a confirmation.
func (e *Engine) PurgeExports(capturePath string) (string, error) {
	dir := artifact.SiblingDir(capturePath, e.cfg.ExportDirName)
	if err := artifact.Purge(dir); err != nil {
		return "", err
	}
	return fmt.Sprintf("folder %s removed", dir), nil
}
