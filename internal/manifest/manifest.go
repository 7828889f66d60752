// Package manifest persists the outcome of an analysis run so a later
// export can package it.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the manifest written into every output directory.
const FileName = "manifest.yaml"

// Failure is an artifact that could not be exported.
type Failure struct {
	Identity string `yaml:"identity"`
	Error    string `yaml:"error"`
}

// Manifest lists the files an analysis run wrote.
type Manifest struct {
	RunID     string    `yaml:"run_id"`
	Capture   string    `yaml:"capture"`
	OutputDir string    `yaml:"output_dir"`
	CreatedAt time.Time `yaml:"created_at"`
	Artifacts []string  `yaml:"artifacts"`
	Failures  []Failure `yaml:"failures,omitempty"`
}

// Path returns the manifest location inside dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Write stores m as YAML at path, creating the parent directory.
func Write(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", path, err)
	}
	return nil
}

// Read loads the manifest at path.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return &m, nil
}
