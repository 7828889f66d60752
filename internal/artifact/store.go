package artifact

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"firestige.xyz/pcapsift/internal/core"
	"firestige.xyz/pcapsift/internal/metrics"
)

// Store writes artifacts into one directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir. The directory is created on the
// first export.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the destination directory.
func (s *Store) Dir() string { return s.dir }

// FileName derives the on-disk name of an identity: the last path element
// with query and fragment removed.
func FileName(identity string) (string, error) {
	p := identity
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	name := path.Base(p)
	switch {
	case p == "", name == ".", name == "/", name == "..":
		return "", fmt.Errorf("%w: %q", core.ErrInvalidIdentity, identity)
	case strings.ContainsAny(name, "\x00\\"):
		return "", fmt.Errorf("%w: %q contains a forbidden character", core.ErrInvalidIdentity, identity)
	}
	return name, nil
}

// Export writes data under the file name derived from identity and returns
// its path. The write goes through a temp file and a rename, so a reader
// never observes a partial artifact. An existing file of the same name is
// replaced.
func (s *Store) Export(identity string, data []byte) (string, error) {
	name, err := FileName(identity)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create %s: %w", core.ErrArtifactIO, s.dir, err)
	}

	tmpFile, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: create temp file for %s: %w", core.ErrArtifactIO, name, err)
	}
	tmpName := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: write %s: %w", core.ErrArtifactIO, name, err)
	}
	if err := tmpFile.Chmod(0o644); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: chmod %s: %w", core.ErrArtifactIO, name, err)
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: close %s: %w", core.ErrArtifactIO, name, err)
	}

	final := filepath.Join(s.dir, name)
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: rename to %s: %w", core.ErrArtifactIO, final, err)
	}

	slog.Debug("artifact exported", "identity", identity, "path", final, "bytes", len(data))
	return final, nil
}

// ExportAll writes every artifact of set. The manifest lists each written
// path once, in first-export order; two identities sharing a base name
// resolve to one file holding the later data.
func (s *Store) ExportAll(set *Set) ([]string, []Failure) {
	var (
		manifest []string
		failures []Failure
		seen     = make(map[string]bool)
	)
	for _, a := range set.All() {
		p, err := s.Export(a.Identity, a.Data)
		if err != nil {
			failures = append(failures, Failure{Identity: a.Identity, Err: err})
			metrics.ExportFailuresTotal.WithLabelValues(failureReason(err)).Inc()
			slog.Warn("artifact export failed", "identity", a.Identity, "error", err)
			continue
		}
		metrics.ArtifactsTotal.WithLabelValues(string(a.Source)).Inc()
		if !seen[p] {
			seen[p] = true
			manifest = append(manifest, p)
		}
	}
	return manifest, failures
}

func failureReason(err error) string {
	if errors.Is(err, core.ErrInvalidIdentity) {
		return "invalid_identity"
	}
	return "io"
}

// SiblingDir returns the directory name placed next to a capture file.
func SiblingDir(capturePath, name string) string {
	return filepath.Join(filepath.Dir(capturePath), name)
}

// Purge removes dir and its contents. It fails when dir does not exist or
// is not a directory.
func Purge(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", core.ErrNotExist, dir)
		}
		return fmt.Errorf("%w: stat %s: %w", core.ErrArtifactIO, dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", core.ErrNotDirectory, dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: remove %s: %w", core.ErrArtifactIO, dir, err)
	}
	slog.Info("export directory removed", "dir", dir)
	return nil
}
