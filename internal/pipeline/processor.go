// Package pipeline drives the engines: it selects a strategy from the
// caller's parameters, applies results to records, serializes edits to one
// record and processes whole directories with a worker pool.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"lumen/internal/convert"
	"lumen/internal/enhance"
	"lumen/internal/genai"
	"lumen/internal/metrics"
	"lumen/internal/raster"
	"lumen/internal/record"
)

// ErrNoAnalyzer means analysis was requested without a configured model.
var ErrNoAnalyzer = errors.New("pipeline: no analyzer configured")

// Analyzer describes an image.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, mimeType string) (*genai.Analysis, error)
}

// Processor runs strategies. It holds no per-record state and is safe for
// concurrent use.
type Processor struct {
	decoder   raster.Decoder
	ai        *enhance.AI
	analyzer  Analyzer
	converter convert.Converter
	logger    *zap.Logger
	metrics   *metrics.Recorder
}

type Option func(*Processor)

func WithDecoder(d raster.Decoder) Option {
	return func(p *Processor) { p.decoder = d }
}

// WithGenerator enables the AI enhancement method.
func WithGenerator(g enhance.Generator, prompt string) Option {
	return func(p *Processor) {
		if g != nil {
			p.ai = &enhance.AI{Generator: g, Converter: p.converter, Prompt: prompt}
		}
	}
}

func WithAnalyzer(a Analyzer) Option {
	return func(p *Processor) { p.analyzer = a }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(p *Processor) { p.metrics = m }
}

func NewProcessor(opts ...Option) *Processor {
	p := &Processor{
		decoder:   raster.NewDecoder(raster.DefaultMaxDimension),
		converter: convert.New(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process computes a new outcome for r without touching it.
func (p *Processor) Process(ctx context.Context, r *record.Record, params Params) (*Outcome, error) {
	strategy, err := Select(params, p.ai)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, strategy, NewSource(r.OriginalBytes, r.OriginalType, p.decoder), params, r.ID)
}

func (p *Processor) run(ctx context.Context, strategy Strategy, src *Source, params Params, id string) (*Outcome, error) {
	start := time.Now()
	out, err := strategy.Process(ctx, src, params)
	took := time.Since(start)

	if err != nil {
		p.metrics.ObserveFailure(string(params.Mode), strategy.Name())
		p.logger.Warn("processing failed",
			zap.String("id", id),
			zap.String("strategy", strategy.Name()),
			zap.Error(err),
		)
		return nil, err
	}

	p.metrics.ObserveProcessed(string(params.Mode), strategy.Name(), len(src.Data), out.Artifact.Size(), took)
	fields := []zap.Field{
		zap.String("id", id),
		zap.String("strategy", strategy.Name()),
		zap.String("container", out.Artifact.Kind.String()),
		zap.Int("bytes_in", len(src.Data)),
		zap.Int("bytes_out", out.Artifact.Size()),
		zap.Duration("took", took),
	}
	if out.Artifact.FormatMismatch() {
		fields = append(fields, zap.String("requested", string(out.Artifact.Requested)))
	}
	p.logger.Debug("processed", fields...)
	return out, nil
}

// Convert re-encodes an already generated image into format.
func (p *Processor) Convert(ctx context.Context, data []byte, params Params) (*Outcome, error) {
	art, err := p.converter.Convert(ctx, data, params.OutputFormat)
	if err != nil {
		return nil, err
	}
	return &Outcome{Params: params, Artifact: art}, nil
}

// Analyze asks the analyzer to describe r's original and stores the answer.
func (p *Processor) Analyze(ctx context.Context, r *record.Record) error {
	if p.analyzer == nil {
		return ErrNoAnalyzer
	}
	a, err := p.analyzer.Analyze(ctx, r.OriginalBytes, r.OriginalType)
	if err != nil {
		return err
	}
	r.Analysis = &record.AIAnalysis{Description: a.Description, Tags: a.Tags}
	return nil
}
