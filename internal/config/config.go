// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/pcapsift/internal/core"
)

// Defaults shared with callers that build an AnalysisConfig by hand.
const (
	DefaultExportDirName = "extracted_files"
	DefaultArchiveName   = "report.zip"
)

// DefaultExtensions is the HTTP resource allow-list used when
// analysis.extensions is not configured.
var DefaultExtensions = []string{
	"html", "htm", "php", "asp", "aspx", "jsp", "js", "css", "json", "xml",
	"png", "jpg", "jpeg", "gif", "bmp", "svg",
	"zip", "rar", "7z", "tar", "gz", "bz2",
	"exe", "dll", "bin", "sh", "bat", "cmd",
	"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "txt", "log", "csv",
	"mp3", "wav", "mp4", "avi", "mkv", "mov",
}

// GlobalConfig represents the top-level configuration.
// Maps to the `pcapsift:` root key in YAML.
type GlobalConfig struct {
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Report   ReportConfig   `mapstructure:"report"`
}

// ─── Analysis ───

// AnalysisConfig controls the capture-to-artifact pipeline.
type AnalysisConfig struct {
	ExportDirName string             `mapstructure:"export_dir_name"` // Sibling directory of the capture
	MaxPackets    int                `mapstructure:"max_packets"`     // 0 = unlimited
	Carve         bool               `mapstructure:"carve"`           // Signature carving of non-HTTP flows
	HTTP          bool               `mapstructure:"http"`            // HTTP/1.x extraction
	HTTP2         bool               `mapstructure:"http2"`           // HTTP/2 :path extraction
	Extensions    []string           `mapstructure:"extensions"`      // Allow-listed resource suffixes
	IPReassembly  IPReassemblyConfig `mapstructure:"ip_reassembly"`
}

// IPReassemblyConfig controls IPv4 fragment reassembly.
type IPReassemblyConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Timeout      string `mapstructure:"timeout"` // Capture-time expiry, e.g. "30s"
	MaxFragments int    `mapstructure:"max_fragments"`
	MaxSize      int    `mapstructure:"max_size"`
}

// TimeoutDuration returns the parsed timeout. Valid after ValidateAndApplyDefaults.
func (c IPReassemblyConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// ─── Report ───

// ReportConfig contains export defaults.
type ReportConfig struct {
	ArchiveName string `mapstructure:"archive_name"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Listen   string `mapstructure:"listen"`
	Path     string `mapstructure:"path"`
	Textfile string `mapstructure:"textfile"` // Written at the end of every command when set
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Console ConsoleConfig    `mapstructure:"console"`
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// ConsoleConfig configures the operator-facing status lines on stderr.
type ConsoleConfig struct {
	Level      string `mapstructure:"level"`
	Pattern    string `mapstructure:"pattern"`
	TimeFormat string `mapstructure:"time_format"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`  // MB
	MaxAgeDays int  `mapstructure:"max_age_days"` // Days
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `pcapsift: ...`.
type configRoot struct {
	Pcapsift GlobalConfig `mapstructure:"pcapsift"`
}

// Load loads configuration from file. An empty path loads defaults only.
// The YAML file uses `pcapsift:` as root key; env vars use the PCAPSIFT_ prefix
// (e.g., PCAPSIFT_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: failed to read config file: %w", core.ErrConfigInvalid, err)
		}
	}

	// The `pcapsift.` key prefix maps to `PCAPSIFT_` through the key replacer
	// (key "pcapsift.analysis.max_packets" -> env "PCAPSIFT_ANALYSIS_MAX_PACKETS").
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return unmarshal(v)
}

// Default returns the built-in configuration, ignoring files and environment.
func Default() *GlobalConfig {
	v := viper.New()
	setDefaults(v)
	cfg, err := unmarshal(v)
	if err != nil {
		panic(fmt.Sprintf("config: built-in defaults are invalid: %v", err))
	}
	return cfg
}

func unmarshal(v *viper.Viper) (*GlobalConfig, error) {
	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %w", core.ErrConfigInvalid, err)
	}
	cfg := root.Pcapsift

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfigInvalid, err)
	}
	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use "pcapsift." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("pcapsift.log.level", "info")
	v.SetDefault("pcapsift.log.format", "text")
	v.SetDefault("pcapsift.log.console.level", "info")
	v.SetDefault("pcapsift.log.console.pattern", "%time [%level] %msg%n")
	v.SetDefault("pcapsift.log.console.time_format", "2006-01-02 15:04:05")
	v.SetDefault("pcapsift.log.outputs.file.enabled", false)
	v.SetDefault("pcapsift.log.outputs.file.path", "pcapsift.log")
	v.SetDefault("pcapsift.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("pcapsift.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("pcapsift.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("pcapsift.log.outputs.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("pcapsift.metrics.enabled", false)
	v.SetDefault("pcapsift.metrics.listen", "127.0.0.1:9091")
	v.SetDefault("pcapsift.metrics.path", "/metrics")
	v.SetDefault("pcapsift.metrics.textfile", "")

	// Analysis defaults
	v.SetDefault("pcapsift.analysis.export_dir_name", DefaultExportDirName)
	v.SetDefault("pcapsift.analysis.max_packets", 0)
	v.SetDefault("pcapsift.analysis.carve", true)
	v.SetDefault("pcapsift.analysis.http", true)
	v.SetDefault("pcapsift.analysis.http2", true)
	v.SetDefault("pcapsift.analysis.extensions", DefaultExtensions)
	v.SetDefault("pcapsift.analysis.ip_reassembly.enabled", true)
	v.SetDefault("pcapsift.analysis.ip_reassembly.timeout", "30s")
	v.SetDefault("pcapsift.analysis.ip_reassembly.max_fragments", 100)
	v.SetDefault("pcapsift.analysis.ip_reassembly.max_size", 65535)

	// Report defaults
	v.SetDefault("pcapsift.report.archive_name", DefaultArchiveName)
}

// ValidateAndApplyDefaults validates configuration and normalizes values.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("log.outputs.file.path is required when file output is enabled")
	}

	// ── Analysis validation ──
	a := &cfg.Analysis
	if a.ExportDirName == "" || strings.ContainsAny(a.ExportDirName, `/\`) {
		return fmt.Errorf("invalid analysis.export_dir_name: %q (must be a plain directory name)", a.ExportDirName)
	}
	if a.MaxPackets < 0 {
		return fmt.Errorf("invalid analysis.max_packets: %d (must be >= 0)", a.MaxPackets)
	}
	exts, err := normalizeExtensions(a.Extensions)
	if err != nil {
		return err
	}
	a.Extensions = exts

	if a.IPReassembly.Enabled {
		d, err := time.ParseDuration(a.IPReassembly.Timeout)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid analysis.ip_reassembly.timeout: %q", a.IPReassembly.Timeout)
		}
		if a.IPReassembly.MaxFragments <= 0 {
			return fmt.Errorf("invalid analysis.ip_reassembly.max_fragments: %d", a.IPReassembly.MaxFragments)
		}
		if a.IPReassembly.MaxSize <= 0 || a.IPReassembly.MaxSize > 65535 {
			return fmt.Errorf("invalid analysis.ip_reassembly.max_size: %d (must be 1..65535)", a.IPReassembly.MaxSize)
		}
	}

	// ── Report validation ──
	if cfg.Report.ArchiveName == "" {
		cfg.Report.ArchiveName = DefaultArchiveName
	}

	return nil
}

// normalizeExtensions lowercases entries and strips a leading dot.
func normalizeExtensions(in []string) ([]string, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("analysis.extensions must not be empty")
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, ext := range in {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext == "" {
			return nil, fmt.Errorf("analysis.extensions contains an empty entry")
		}
		if !seen[ext] {
			seen[ext] = true
			out = append(out, ext)
		}
	}
	return out, nil
}
