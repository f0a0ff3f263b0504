package pipeline

import (
	"fmt"
	"time"

	"lumen/internal/codec"
	"lumen/internal/compress"
	"lumen/internal/enhance"
	"lumen/internal/record"
)

// Params are the processing parameters a caller picks. Quality doubles as
// the enhancement intensity.
type Params struct {
	Mode         record.Mode
	Engine       compress.Engine
	Method       enhance.Method
	Quality      float64
	OutputFormat codec.OutputFormat
	Prompt       string
}

func (p Params) Validate() error {
	switch p.Mode {
	case record.ModeCompress:
		if p.Engine != compress.EngineCanvas && p.Engine != compress.EngineAlgorithm {
			return fmt.Errorf("unknown compression engine %q", p.Engine)
		}
	case record.ModeEnhance:
		if p.Method != enhance.MethodAlgorithm && p.Method != enhance.MethodAI {
			return fmt.Errorf("unknown enhance method %q", p.Method)
		}
	default:
		return fmt.Errorf("unknown mode %q", p.Mode)
	}
	if p.Quality < 0 || p.Quality > 1 {
		return fmt.Errorf("quality %v out of range [0,1]", p.Quality)
	}
	if !p.OutputFormat.IsValid() {
		return fmt.Errorf("unknown output format %q", p.OutputFormat)
	}
	return nil
}

type Options struct {
	Params    Params
	Workers   int
	OutputDir string
	Analyze   bool
	// Save, when set, is called with every successfully processed record.
	Save func(*record.Record) error
}

type Job struct {
	Path    string
	RelPath string
	Display string
}

type Result struct {
	Path       string
	RelPath    string
	Display    string
	Supported  bool
	Err        error
	Record     *record.Record
	OutputPath string
	Took       time.Duration
}

type Summary struct {
	Total     int
	Processed int
	Errors    int
	BytesIn   int64
	BytesOut  int64
}

type ProgressUpdate struct {
	TotalDelta     int
	ProcessedDelta int
	ErrorDelta     int
	BytesInDelta   int64
	BytesOutDelta  int64
}
