// Package engine runs the extraction pipeline over one capture file:
// decode, reassemble, classify, carve, export.
package engine

import (
	"log/slog"
	"time"

	"firestige.xyz/pcapsift/internal/artifact"
	"firestige.xyz/pcapsift/internal/config"
	"firestige.xyz/pcapsift/internal/core/decoder"
	"firestige.xyz/pcapsift/internal/manifest"
)

// Engine holds the analysis settings shared by every run.
// Runs do not share state; one Engine may serve consecutive commands.
type Engine struct {
	cfg    config.AnalysisConfig
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger runs derive their loggers from.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock replaces time.Now for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine.
func New(cfg config.AnalysisConfig, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.ExportDirName == "" {
		e.cfg.ExportDirName = config.DefaultExportDirName
	}
	if e.cfg.Extensions == nil {
		e.cfg.Extensions = config.DefaultExtensions
	}
	return e
}

// Stats counts what one run saw.
type Stats struct {
	Packets   uint64 // frames read from the capture
	Decoded   uint64 // frames carrying a TCP or UDP payload
	Skipped   uint64 // frames that did not decode
	Empty     uint64 // decoded frames without payload
	Flows     uint64 // distinct flow keys
	Streams   uint64 // non-empty flows at drain time
	HTTP      uint64 // HTTP/1.x streams
	HTTP2     uint64 // HTTP/2 streams
	Carved    uint64 // artifacts found by signature
	Truncated bool   // the packet budget ended the read early
	ReadError string // read error that ended the capture early
	Fragments decoder.ReassemblyStats
}

// Result is the outcome of one run. Failures lists artifacts that could not
// be written; the rest of the run still completed.
type Result struct {
	RunID      string
	Capture    string
	OutputDir  string
	Artifacts  []string
	Failures   []artifact.Failure
	Stats      Stats
	StartedAt  time.Time
	FinishedAt time.Time
}

// Manifest converts the result into its persisted form.
func (r *Result) Manifest() *manifest.Manifest {
	m := &manifest.Manifest{
		RunID:     r.RunID,
		Capture:   r.Capture,
		OutputDir: r.OutputDir,
		CreatedAt: r.FinishedAt,
		Artifacts: append([]string(nil), r.Artifacts...),
	}
	for _, f := range r.Failures {
		m.Failures = append(m.Failures, manifest.Failure{Identity: f.Identity, Error: f.Err.Error()})
	}
	return m
}
