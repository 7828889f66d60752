package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"firestige.xyz/pcapsift/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "pcapsift.yml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return configPath
}

func TestLoadValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
pcapsift:
  log:
    level: "debug"
    format: "json"
  metrics:
    enabled: true
    listen: "0.0.0.0:9090"
    textfile: "/tmp/pcapsift.prom"
  analysis:
    export_dir_name: "carved"
    max_packets: 5000
    http2: false
    extensions: [".PDF", "zip", "pdf"]
    ip_reassembly:
      timeout: "10s"
  report:
    archive_name: "case-42.zip"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Expected log format json, got %s", cfg.Log.Format)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != "0.0.0.0:9090" {
		t.Errorf("Unexpected metrics config: %+v", cfg.Metrics)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Expected default metrics path, got %s", cfg.Metrics.Path)
	}
	if cfg.Analysis.ExportDirName != "carved" {
		t.Errorf("Expected export dir carved, got %s", cfg.Analysis.ExportDirName)
	}
	if cfg.Analysis.MaxPackets != 5000 {
		t.Errorf("Expected max packets 5000, got %d", cfg.Analysis.MaxPackets)
	}
	if cfg.Analysis.HTTP2 || !cfg.Analysis.HTTP || !cfg.Analysis.Carve {
		t.Errorf("Unexpected analysis toggles: %+v", cfg.Analysis)
	}
	if got := cfg.Analysis.Extensions; len(got) != 2 || got[0] != "pdf" || got[1] != "zip" {
		t.Errorf("Expected normalized extensions [pdf zip], got %v", got)
	}
	if got := cfg.Analysis.IPReassembly.TimeoutDuration(); got != 10*time.Second {
		t.Errorf("Expected reassembly timeout 10s, got %v", got)
	}
	if cfg.Report.ArchiveName != "case-42.zip" {
		t.Errorf("Expected archive name case-42.zip, got %s", cfg.Report.ArchiveName)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}
	if cfg.Analysis.ExportDirName != "extracted_files" {
		t.Errorf("Expected default export dir extracted_files, got %s", cfg.Analysis.ExportDirName)
	}
	if len(cfg.Analysis.Extensions) != len(DefaultExtensions) {
		t.Errorf("Expected %d default extensions, got %d", len(DefaultExtensions), len(cfg.Analysis.Extensions))
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if !errors.Is(err, core.ErrConfigInvalid) {
		t.Errorf("Expected ErrConfigInvalid, got %v", err)
	}
}

func TestLoadInvalidLogLevel(t *testing.T) {
	configPath := writeConfig(t, `
pcapsift:
  log:
    level: "invalid"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Expected error for invalid log level, got nil")
	}
}

func TestLoadInvalidLogFormat(t *testing.T) {
	configPath := writeConfig(t, `
pcapsift:
  log:
    format: "invalid"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Expected error for invalid log format, got nil")
	}
}

func TestLoadInvalidAnalysis(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"negative max packets", "pcapsift:\n  analysis:\n    max_packets: -1\n"},
		{"export dir with separator", "pcapsift:\n  analysis:\n    export_dir_name: \"a/b\"\n"},
		{"bad reassembly timeout", "pcapsift:\n  analysis:\n    ip_reassembly:\n      timeout: \"soon\"\n"},
		{"oversized reassembly limit", "pcapsift:\n  analysis:\n    ip_reassembly:\n      max_size: 70000\n"},
		{"empty extension", "pcapsift:\n  analysis:\n    extensions: [\"pdf\", \"\"]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if !errors.Is(err, core.ErrConfigInvalid) {
				t.Errorf("Expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestLoadEnvOverride(t *testing.T) {
	configPath := writeConfig(t, `
pcapsift:
  log:
    level: "info"
`)

	t.Setenv("PCAPSIFT_LOG_LEVEL", "debug")
	t.Setenv("PCAPSIFT_ANALYSIS_MAX_PACKETS", "42")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug from env var, got %s", cfg.Log.Level)
	}
	if cfg.Analysis.MaxPackets != 42 {
		t.Errorf("Expected max packets 42 from env var, got %d", cfg.Analysis.MaxPackets)
	}
}

func TestDefault(t *testing.T) {
	t.Setenv("PCAPSIFT_LOG_LEVEL", "invalid")

	cfg := Default()
	if cfg.Log.Level != "info" {
		t.Errorf("Default must ignore the environment, got level %s", cfg.Log.Level)
	}
	if !cfg.Analysis.IPReassembly.Enabled {
		t.Error("Expected IP reassembly enabled by default")
	}
	if cfg.Report.ArchiveName != "report.zip" {
		t.Errorf("Expected default archive name report.zip, got %s", cfg.Report.ArchiveName)
	}
}
