package log

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"firestige.xyz/pcapsift/internal/config"
)

func TestParseLevelValid(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := parseLevel(tt.input)
			if err != nil {
				t.Errorf("parseLevel(%q) returned error: %v", tt.input, err)
			}
			if level != tt.expected {
				t.Errorf("parseLevel(%q) = %v, expected %v", tt.input, level, tt.expected)
			}
		})
	}
}

func TestParseLevelInvalid(t *testing.T) {
	for _, input := range []string{"invalid", "trace", ""} {
		t.Run(input, func(t *testing.T) {
			if _, err := parseLevel(input); err == nil {
				t.Errorf("parseLevel(%q) should return error, got nil", input)
			}
		})
	}
}

func TestNewLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("info message")
	logger.Warn("warn message", "capture", "a.pcap")

	output := buf.String()
	if strings.Contains(output, "info message") {
		t.Error("Info message should be filtered out")
	}
	if !strings.Contains(output, `"msg":"warn message"`) || !strings.Contains(output, `"capture":"a.pcap"`) {
		t.Errorf("Warn record missing from output: %s", output)
	}
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LogConfig{Level: "info", Format: "text"}, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("artifact exported", "path", "/tmp/x.pdf")

	if !strings.Contains(buf.String(), "path=/tmp/x.pdf") {
		t.Errorf("Text output should contain key=value, got %s", buf.String())
	}
}

func TestNewWithFileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	cfg := config.LogConfig{
		Level:  "debug",
		Format: "text",
		Outputs: config.LogOutputsConfig{
			File: config.FileOutputConfig{
				Enabled: true,
				Path:    logPath,
				Rotation: config.RotationConfig{
					MaxSizeMB:  10,
					MaxBackups: 3,
					MaxAgeDays: 7,
				},
			},
		},
	}

	var buf bytes.Buffer
	logger, err := New(cfg, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Debug("test message", "key", "value")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Log file was not created at %s: %v", logPath, err)
	}
	if !strings.Contains(string(data), "test message") {
		t.Errorf("Log file missing record: %s", data)
	}
	if !strings.Contains(buf.String(), "test message") {
		t.Errorf("Primary writer missing record: %s", buf.String())
	}
}

func TestInitErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LogConfig
		want string
	}{
		{"invalid level", config.LogConfig{Level: "invalid", Format: "json"}, "invalid log level"},
		{"invalid format", config.LogConfig{Level: "info", Format: "xml"}, "unsupported log format"},
		{"missing file path", config.LogConfig{
			Level:   "info",
			Format:  "json",
			Outputs: config.LogOutputsConfig{File: config.FileOutputConfig{Enabled: true}},
		}, "path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Init(tt.cfg)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestConsolePattern(t *testing.T) {
	var buf bytes.Buffer
	console := NewConsole(config.ConsoleConfig{
		Level:      "info",
		Pattern:    "[%level] %msg (%field)%n",
		TimeFormat: time.RFC3339,
	}, &buf)

	console.WithField("count", 2).WithField("path", "/out/a.zip").Info("archive written")

	if got, want := buf.String(), "[info] archive written (count=2,path=/out/a.zip)\n"; got != want {
		t.Errorf("console output = %q, want %q", got, want)
	}
}

func TestConsoleWithError(t *testing.T) {
	var buf bytes.Buffer
	console := NewConsole(config.ConsoleConfig{Level: "bogus", Pattern: "[%level] %msg (%field)%n"}, &buf)

	console.WithError(errors.New("disk full")).Warnf("export %s failed", "x.bin")

	out := buf.String()
	if !strings.Contains(out, "[warning] export x.bin failed") || !strings.Contains(out, "(error=disk full)") {
		t.Errorf("unexpected console output: %q", out)
	}
}

func TestFormatterDefaults(t *testing.T) {
	f := &formatter{}
	entry := &logrus.Entry{
		Time:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "100%n literal",
		Data:    logrus.Fields{},
	}

	out, err := f.Format(entry)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if got, want := string(out), "2024-03-01 12:00:00 [warning] 100%n literal\n"; got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}
