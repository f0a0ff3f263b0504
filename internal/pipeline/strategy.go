package pipeline

import (
	"context"
	"sync"

	"lumen/internal/codec"
	"lumen/internal/compress"
	"lumen/internal/enhance"
	"lumen/internal/raster"
	"lumen/internal/record"
)

// Source is the original upload. Pixels are decoded on first use and
// shared by later calls.
type Source struct {
	Data     []byte
	MimeType string

	decoder raster.Decoder
	once    sync.Once
	decoded *raster.Decoded
	err     error
}

func NewSource(data []byte, mimeType string, decoder raster.Decoder) *Source {
	return &Source{Data: data, MimeType: mimeType, decoder: decoder}
}

func (s *Source) Pixels() (*raster.Decoded, error) {
	s.once.Do(func() {
		s.decoded, s.err = s.decoder.Decode(s.Data, s.MimeType)
	})
	return s.decoded, s.err
}

// Outcome is a complete processing result, ready to be applied to a record.
type Outcome struct {
	Params      Params
	Artifact    *codec.Artifact
	QualityUsed float64
	Strategy    string

	AIOriginal []byte
	AIModel    string
	AIText     string
}

// Strategy turns a source into an outcome.
type Strategy interface {
	Name() string
	Process(ctx context.Context, src *Source, p Params) (*Outcome, error)
}

// Select picks the strategy for p.
func Select(p Params, ai *enhance.AI) (Strategy, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Mode == record.ModeCompress {
		c, err := compress.New(p.Engine)
		if err != nil {
			return nil, err
		}
		return compressStrategy{c: c}, nil
	}
	if p.Method == enhance.MethodAI {
		return generativeStrategy{ai: ai}, nil
	}
	return sharpenStrategy{}, nil
}

type compressStrategy struct {
	c compress.Compressor
}

func (s compressStrategy) Name() string { return string(s.c.Engine()) }

func (s compressStrategy) Process(ctx context.Context, src *Source, p Params) (*Outcome, error) {
	d, err := src.Pixels()
	if err != nil {
		return nil, err
	}
	art, err := s.c.Compress(ctx, d.Buffer, d.Kind, p.Quality, p.OutputFormat)
	if err != nil {
		return nil, err
	}
	return &Outcome{Params: p, Artifact: art, QualityUsed: p.Quality, Strategy: s.Name()}, nil
}

type sharpenStrategy struct{}

func (sharpenStrategy) Name() string { return "sharpen" }

func (s sharpenStrategy) Process(ctx context.Context, src *Source, p Params) (*Outcome, error) {
	d, err := src.Pixels()
	if err != nil {
		return nil, err
	}
	art, err := enhance.Algorithm{}.Enhance(ctx, d.Buffer, d.Kind, p.Quality, p.OutputFormat)
	if err != nil {
		return nil, err
	}
	return &Outcome{Params: p, Artifact: art, QualityUsed: p.Quality, Strategy: s.Name()}, nil
}

type generativeStrategy struct {
	ai *enhance.AI
}

func (generativeStrategy) Name() string { return "generative" }

func (s generativeStrategy) Process(ctx context.Context, src *Source, p Params) (*Outcome, error) {
	if s.ai == nil {
		return nil, enhance.ErrNoGenerator
	}
	ai := *s.ai
	if p.Prompt != "" {
		ai.Prompt = p.Prompt
	}
	res, err := ai.Enhance(ctx, src.Data, src.MimeType, p.OutputFormat)
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Params:      p,
		Artifact:    res.Artifact,
		QualityUsed: record.GeneratedQuality,
		Strategy:    s.Name(),
		AIOriginal:  res.Raw,
		AIModel:     res.Model,
		AIText:      res.Text,
	}, nil
}

// Apply writes o into r. It replaces every output field at once.
func Apply(r *record.Record, o *Outcome) {
	r.Mode = o.Params.Mode
	r.EnhanceMethod = ""
	if o.Params.Mode == record.ModeEnhance {
		r.EnhanceMethod = record.EnhanceAlgorithm
		if o.Params.Method == enhance.MethodAI {
			r.EnhanceMethod = record.EnhanceAI
		}
	}
	r.OutputFormat = o.Params.OutputFormat
	r.QualityUsed = o.QualityUsed
	r.ProcessedBytes = o.Artifact.Data
	r.ProcessedType = o.Artifact.MimeType()
	r.AIOriginalBytes = o.AIOriginal
	r.AIModel = o.AIModel
	r.AIText = o.AIText
	r.RefreshPreviews()
}
