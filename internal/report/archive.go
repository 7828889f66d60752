package report

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"

	"firestige.xyz/pcapsift/internal/core"
)

// InfoFileName is the first entry of every report archive.
const InfoFileName = "info.txt"

// Package writes archivePath: info.txt first, then every regular file of
// the manifest under its base name, all stored uncompressed. A failure
// leaves whatever was written so far in place.
func Package(manifest []string, meta Metadata, captures []string, archivePath string) (string, error) {
	out, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("%w: create %s: %w", core.ErrArchive, archivePath, err)
	}
	defer out.Close()

	hashes, err := HashManifest(manifest)
	if err != nil {
		return "", err
	}
	info := Info{
		Meta:      meta,
		Hashes:    hashes,
		URLs:      ExtractURLs(captures),
		Endpoints: ExtractEndpoints(captures),
	}

	zw := zip.NewWriter(out)
	now := time.Now()
	w, err := zw.CreateHeader(&zip.FileHeader{Name: InfoFileName, Method: zip.Store, Modified: now})
	if err != nil {
		return "", fmt.Errorf("%w: add %s: %w", core.ErrArchive, InfoFileName, err)
	}
	if _, err := w.Write(info.Render()); err != nil {
		return "", fmt.Errorf("%w: write %s: %w", core.ErrArchive, InfoFileName, err)
	}

	for _, p := range manifest {
		if err := addFile(zw, p, now); err != nil {
			return "", err
		}
	}

	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("%w: finalize %s: %w", core.ErrArchive, archivePath, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("%w: close %s: %w", core.ErrArchive, archivePath, err)
	}

	slog.Info("report archive written", "path", archivePath, "files", len(hashes), "urls", len(info.URLs), "endpoints", len(info.Endpoints))
	return archivePath, nil
}

func addFile(zw *zip.Writer, path string, modified time.Time) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrMissingFile, path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrMissingFile, path, err)
	}
	if !st.Mode().IsRegular() {
		return nil
	}

	w, err := zw.CreateHeader(&zip.FileHeader{Name: filepath.Base(path), Method: zip.Store, Modified: modified})
	if err != nil {
		return fmt.Errorf("%w: add %s: %w", core.ErrArchive, path, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("%w: write %s: %w", core.ErrArchive, path, err)
	}
	return nil
}
