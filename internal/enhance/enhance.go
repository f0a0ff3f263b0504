package enhance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lumen/internal/codec"
	"lumen/internal/convert"
	"lumen/internal/genai"
	"lumen/internal/raster"
	"lumen/pkg/imgutil"
)

// Method names an enhancement strategy.
type Method string

const (
	MethodAlgorithm Method = "algorithm"
	MethodAI        Method = "ai"
)

func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case MethodAlgorithm, "":
		return MethodAlgorithm, nil
	case MethodAI:
		return MethodAI, nil
	default:
		return "", fmt.Errorf("unknown enhance method %q", s)
	}
}

// TargetKind is where an enhanced raster is written: an explicit format
// wins, otherwise PNG sources stay PNG and everything else becomes JPEG.
func TargetKind(format codec.OutputFormat, source imgutil.Kind) imgutil.Kind {
	if kind := format.Kind(); kind != imgutil.KindUnknown {
		return kind
	}
	if source == imgutil.KindPNG {
		return imgutil.KindPNG
	}
	return imgutil.KindJPEG
}

// Algorithm sharpens locally and re-encodes at maximum quality.
type Algorithm struct{}

func (Algorithm) Enhance(ctx context.Context, buf *raster.PixelBuffer, source imgutil.Kind, intensity float64, format codec.OutputFormat) (*codec.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sharpened := Sharpen(buf, intensity)
	return convert.Encode(sharpened, TargetKind(format, source), format)
}

// Generator is the remote generative model.
type Generator interface {
	Model() string
	Generate(ctx context.Context, image []byte, mimeType, prompt string) (*genai.Generation, error)
}

// DefaultPrompt asks for a faithful restoration rather than a new picture.
const DefaultPrompt = "Enhance this photo: increase sharpness and fine detail, reduce noise and compression artifacts, keep composition, colours and content unchanged. Return the edited image."

// NoImageError is returned when the model answered with text only.
type NoImageError struct {
	Text string
}

func (e *NoImageError) Error() string {
	if e.Text == "" {
		return "model returned no image"
	}
	return fmt.Sprintf("model returned no image: %s", e.Text)
}

// ErrNoGenerator means the AI method was selected without a configured model.
var ErrNoGenerator = errors.New("enhance: no generator configured")

// AIResult is a regenerated image plus what is needed to replay a
// format-only change without calling the model again.
type AIResult struct {
	Artifact *codec.Artifact
	Raw      []byte
	Model    string
	Text     string
}

// AI regenerates the original upload through a Generator.
type AI struct {
	Generator Generator
	Converter convert.Converter
	Prompt    string
}

func (a *AI) Enhance(ctx context.Context, original []byte, mimeType string, format codec.OutputFormat) (*AIResult, error) {
	if a.Generator == nil {
		return nil, ErrNoGenerator
	}
	prompt := a.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}

	gen, err := a.Generator.Generate(ctx, original, mimeType, prompt)
	if err != nil {
		return nil, err
	}
	if len(gen.Image) == 0 {
		return nil, &NoImageError{Text: gen.Text}
	}

	art, err := a.Converter.Convert(ctx, gen.Image, format)
	if err != nil {
		return nil, err
	}

	model := gen.Model
	if model == "" {
		model = a.Generator.Model()
	}
	return &AIResult{Artifact: art, Raw: gen.Image, Model: model, Text: gen.Text}, nil
}
