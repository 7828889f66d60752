package cmd

import (
	"context"

	"firestige.xyz/pcapsift/internal/engine"
)

// Engine is the part of engine.Engine the commands use.
type Engine interface {
	Analyze(ctx context.Context, capturePath, outputDir string) (*engine.Result, error)
	Carve(ctx context.Context, capturePath, outputDir string) (*engine.Result, error)
	ExportReport(req engine.ExportRequest) (string, error)
	ExtractURLs(paths []string) string
	ExtractEndpoints(paths []string) string
	PurgeExports(capturePath string) (string, error)
}

var eng Engine

// SetEngine replaces the engine, for tests.
func SetEngine(e Engine) {
	eng = e
}

// GetEngine returns the current engine.
func GetEngine() Engine {
	return eng
}
