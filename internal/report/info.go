package report

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"firestige.xyz/pcapsift/internal/core"
)

// Metadata identifies the operator and the time window of an export.
type Metadata struct {
	Name      string
	Surname   string
	TimeStart string
	TimeEnd   string
}

// FileHash is the SHA-256 of one exported artifact.
type FileHash struct {
	Name string
	Hash string
}

// Info is the content of info.txt.
type Info struct {
	Meta      Metadata
	Hashes    []FileHash
	URLs      []string
	Endpoints []string
}

// HashFile returns the hex SHA-256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", core.ErrMissingFile, path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashManifest hashes every regular file of the manifest in order.
// Directories are skipped; a missing entry fails with core.ErrMissingFile.
func HashManifest(manifest []string) ([]FileHash, error) {
	hashes := make([]FileHash, 0, len(manifest))
	for _, p := range manifest {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", core.ErrMissingFile, p, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		sum, err := HashFile(p)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, FileHash{Name: filepath.Base(p), Hash: sum})
	}
	return hashes, nil
}

// URLSection renders the URL list with its heading.
func URLSection(urls []string) string {
	var b strings.Builder
	b.WriteString("\nWebsites Found in PCAP Files\n")
	for _, u := range urls {
		b.WriteString(u)
		b.WriteByte('\n')
	}
	return b.String()
}

// EndpointSection renders the endpoint list with its heading.
func EndpointSection(endpoints []string) string {
	var b strings.Builder
	b.WriteString("\nIP addresses with ports:\n")
	for _, e := range endpoints {
		b.WriteString(e)
		b.WriteByte('\n')
	}
	return b.String()
}

// Render returns info.txt.
func (i Info) Render() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "Export information:\nUser: %s %s\nTime Start: %s\nTime End: %s\n\n",
		i.Meta.Name, i.Meta.Surname, i.Meta.TimeStart, i.Meta.TimeEnd)
	b.WriteString("Extracted Files Hashes\n")
	for _, h := range i.Hashes {
		fmt.Fprintf(&b, "File: %s - Hash (SHA256): %s\n", h.Name, h.Hash)
	}
	b.WriteString(URLSection(i.URLs))
	b.WriteString(EndpointSection(i.Endpoints))
	return []byte(b.String())
}
