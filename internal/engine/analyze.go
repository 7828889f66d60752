package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"firestige.xyz/pcapsift/internal/artifact"
	"firestige.xyz/pcapsift/internal/capture"
	"firestige.xyz/pcapsift/internal/carve"
	"firestige.xyz/pcapsift/internal/classify"
	"firestige.xyz/pcapsift/internal/core"
	"firestige.xyz/pcapsift/internal/core/decoder"
	"firestige.xyz/pcapsift/internal/metrics"
	"firestige.xyz/pcapsift/internal/reassembly"
	"firestige.xyz/pcapsift/internal/session"
)

// detectors selects the classification stages of a run.
type detectors struct {
	http  bool
	http2 bool
	carve bool
}

// Analyze extracts every artifact of capturePath into outputDir. An empty
// outputDir selects the export directory next to the capture.
//
// The returned error is non-nil only when the capture cannot be opened or
// ctx ends the run. Artifacts that could not be written are listed in
// Result.Failures.
func (e *Engine) Analyze(ctx context.Context, capturePath, outputDir string) (*Result, error) {
	if outputDir == "" {
		outputDir = artifact.SiblingDir(capturePath, e.cfg.ExportDirName)
	}
	return e.run(ctx, capturePath, outputDir, detectors{
		http:  e.cfg.HTTP,
		http2: e.cfg.HTTP2,
		carve: e.cfg.Carve,
	})
}

// Carve runs signature carving only. An empty outputDir selects a fresh
// temporary directory.
func (e *Engine) Carve(ctx context.Context, capturePath, outputDir string) (*Result, error) {
	if outputDir == "" {
		dir, err := os.MkdirTemp("", "pcapsift-carve-*")
		if err != nil {
			return nil, fmt.Errorf("%w: create temp dir: %w", core.ErrArtifactIO, err)
		}
		outputDir = dir
	}
	return e.run(ctx, capturePath, outputDir, detectors{carve: true})
}

// pass is the state of one run. It is owned by a single goroutine.
type pass struct {
	engine *Engine
	det    detectors
	logger *slog.Logger
	stats  Stats

	decoder *decoder.Decoder
	flows   *reassembly.Reassembler
	set     *artifact.Set
	carved  int
}

func (e *Engine) run(ctx context.Context, capturePath, outputDir string, det detectors) (*Result, error) {
	res := &Result{
		RunID:     uuid.NewString(),
		Capture:   capturePath,
		OutputDir: outputDir,
		StartedAt: e.now(),
	}
	logger := e.logger.With("run_id", res.RunID, "capture", capturePath)

	r, err := capture.Open(capturePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	p := &pass{
		engine: e,
		det:    det,
		logger: logger,
		decoder: decoder.New(decoder.Config{
			IPReassembly: e.cfg.IPReassembly.Enabled,
			Reassembly: decoder.ReassemblyConfig{
				MaxFragments:      e.cfg.IPReassembly.MaxFragments,
				MaxReassembleSize: e.cfg.IPReassembly.MaxSize,
				Timeout:           e.cfg.IPReassembly.TimeoutDuration(),
			},
		}),
		flows: reassembly.New(),
		set:   artifact.NewSet(),
	}
	logger.Info("analysis started", "format", r.Format(), "link_type", r.LinkType().String(), "output_dir", outputDir)

	if err := p.read(ctx, r); err != nil {
		return nil, err
	}
	p.drain()
	p.stats.Fragments = p.decoder.Stats()

	res.Artifacts, res.Failures = artifact.NewStore(outputDir).ExportAll(p.set)
	res.Stats = p.stats
	res.FinishedAt = e.now()

	logger.Info("analysis finished",
		"packets", p.stats.Packets,
		"flows", p.stats.Flows,
		"artifacts", len(res.Artifacts),
		"failures", len(res.Failures),
		"duration", res.FinishedAt.Sub(res.StartedAt))
	return res, nil
}

// read consumes the capture in order, ingesting payloads and carving
// completed files as soon as their trailer arrives.
func (p *pass) read(ctx context.Context, r *capture.Reader) error {
	budget := uint64(p.engine.cfg.MaxPackets)
	link := r.LinkType()

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("analyze %s: %w", r.Path(), err)
		}
		if budget > 0 && p.stats.Packets >= budget {
			p.stats.Truncated = true
			p.logger.Warn("packet budget reached, ignoring the rest of the capture", "max_packets", budget)
			return nil
		}

		data, ci, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			// A capture cut short mid-record keeps what was read.
			p.stats.ReadError = err.Error()
			p.logger.Warn("capture read stopped early", "error", err)
			return nil
		}
		p.stats.Packets++

		pkt, err := p.decoder.Decode(data, ci, link)
		if err != nil {
			p.stats.Skipped++
			metrics.PacketsTotal.WithLabelValues(metrics.ResultSkipped).Inc()
			continue
		}
		if len(pkt.Payload) == 0 {
			p.stats.Empty++
			metrics.PacketsTotal.WithLabelValues(metrics.ResultEmpty).Inc()
			continue
		}
		p.stats.Decoded++
		metrics.PacketsTotal.WithLabelValues(metrics.ResultDecoded).Inc()

		p.ingest(pkt.Segment())
	}
}

func (p *pass) ingest(seg core.Segment) {
	seen := p.flows.Seen()
	f := p.flows.Ingest(seg)
	if f == nil {
		return
	}
	if p.flows.Seen() > seen {
		p.stats.Flows++
		metrics.FlowsTotal.WithLabelValues(core.ProtoName(seg.Key.Proto)).Inc()
	}
	if !p.det.carve {
		return
	}
	if m, ok := carve.Incremental(f); ok {
		p.putCarved(f, m)
		p.flows.Reset(seg.Key)
	}
}

func (p *pass) putCarved(f *reassembly.Flow, m carve.Match) {
	p.carved++
	p.stats.Carved++
	name := artifact.SyntheticName(f.First, p.carved, m.Ext())
	p.set.Put(artifact.Artifact{
		Identity:  name,
		Data:      m.Data,
		Source:    artifact.SourceCarved,
		Flow:      f.Key,
		Timestamp: f.First,
	})
	p.logger.Debug("file carved", "flow", f.Key.String(), "name", name, "rule", m.Rule.Name, "bytes", len(m.Data))
}

// drain classifies every remaining flow. Responses are indexed first so
// request flows can be paired with the reverse direction.
func (p *pass) drain() {
	streams := p.flows.Drain()
	p.stats.Streams = uint64(len(streams))

	opts := classify.Options{
		HTTP:       p.det.http,
		HTTP2:      p.det.http2,
		Carve:      p.det.carve,
		Extensions: p.engine.cfg.Extensions,
		Logger:     p.logger,
	}
	results := make([]classify.Classification, len(streams))
	corr := session.New()
	for i, s := range streams {
		results[i] = classify.Classify(s.Data, opts)
		corr.AddResponses(s.Key, results[i].Responses)
	}

	for i, s := range streams {
		c := results[i]
		switch c.Kind {
		case classify.HTTPText:
			p.stats.HTTP++
			for _, ex := range corr.Exchanges(s.Key, s.Data, c.Resources) {
				p.put(ex.Request.Path, ex.Content, artifact.SourceHTTP, s)
			}
		case classify.HTTP2Binary:
			p.stats.HTTP2++
			for _, res := range c.Resources {
				p.put(res.Path, s.Data, artifact.SourceHTTP2, s)
			}
		case classify.Carvable:
			p.putCarved(s.Flow, *c.Carved)
		}
	}
}

func (p *pass) put(identity string, data []byte, src artifact.Source, s reassembly.Stream) {
	p.set.Put(artifact.Artifact{
		Identity:  identity,
		Data:      data,
		Source:    src,
		Flow:      s.Key,
		Timestamp: s.Flow.First,
	})
	p.logger.Debug("resource found", "flow", s.Key.String(), "path", identity, "source", string(src), "bytes", len(data))
}
