package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen/internal/codec"
	"lumen/internal/compress"
	"lumen/internal/enhance"
	"lumen/internal/genai"
	"lumen/internal/raster"
	"lumen/internal/record"
	"lumen/pkg/imgutil"
)

func pngBytes(t *testing.T, w, h int, seed uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x*9) + seed, G: uint8(y*13) + seed, B: seed, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func compressParams(engine compress.Engine, q float64, format codec.OutputFormat) Params {
	return Params{Mode: record.ModeCompress, Engine: engine, Quality: q, OutputFormat: format}
}

func TestSelectStrategy(t *testing.T) {
	cases := []struct {
		params Params
		want   string
	}{
		{compressParams(compress.EngineCanvas, 0.5, codec.FormatOriginal), "canvas"},
		{compressParams(compress.EngineAlgorithm, 0.5, codec.FormatPNG), "algorithm"},
		{Params{Mode: record.ModeEnhance, Method: enhance.MethodAlgorithm, OutputFormat: codec.FormatOriginal}, "sharpen"},
		{Params{Mode: record.ModeEnhance, Method: enhance.MethodAI, OutputFormat: codec.FormatOriginal}, "generative"},
	}
	for _, tc := range cases {
		s, err := Select(tc.params, nil)
		require.NoError(t, err)
		assert.Equal(t, tc.want, s.Name())
	}

	_, err := Select(compressParams("laser", 0.5, codec.FormatOriginal), nil)
	assert.Error(t, err)
	_, err = Select(compressParams(compress.EngineCanvas, 1.5, codec.FormatOriginal), nil)
	assert.Error(t, err)
}

func TestProcessorCompress(t *testing.T) {
	proc := NewProcessor()
	r := record.New("a.png", "image/png", pngBytes(t, 24, 16, 3))

	out, err := proc.Process(context.Background(), r, compressParams(compress.EngineAlgorithm, 0.5, codec.FormatOriginal))
	require.NoError(t, err)
	assert.Equal(t, imgutil.KindPNG, out.Artifact.Kind)
	assert.Equal(t, 128, out.Artifact.PaletteSize)
	assert.Nil(t, r.ProcessedBytes, "Process must not touch the record")

	out, err = proc.Process(context.Background(), r, compressParams(compress.EngineCanvas, 1, codec.FormatPNG))
	require.NoError(t, err)
	assert.Equal(t, imgutil.KindWebP, out.Artifact.Kind)
	assert.True(t, out.Artifact.FormatMismatch())
	assert.Equal(t, codec.HighQuality, out.Artifact.Quality)

	Apply(r, out)
	assert.Equal(t, "image/webp", r.ProcessedType)
	assert.Equal(t, 1.0, r.QualityUsed)
	assert.Equal(t, record.ModeCompress, r.Mode)
	assert.Empty(t, r.EnhanceMethod)
}

func TestProcessorBoundsLargeInput(t *testing.T) {
	proc := NewProcessor(WithDecoder(raster.NewDecoder(8)))
	r := record.New("big.png", "image/png", pngBytes(t, 32, 16, 0))

	out, err := proc.Process(context.Background(), r, Params{Mode: record.ModeEnhance, Method: enhance.MethodAlgorithm, Quality: 0.3, OutputFormat: codec.FormatPNG})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out.Artifact.Data))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(8, 4), img.Bounds().Size())
}

func TestProcessorDecodeError(t *testing.T) {
	proc := NewProcessor()
	r := record.New("bad.png", "image/png", []byte("not really a png"))

	_, err := proc.Process(context.Background(), r, compressParams(compress.EngineAlgorithm, 0.5, codec.FormatOriginal))
	var decodeErr *raster.DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}

type gatedGenerator struct {
	calls  atomic.Int32
	gates  []chan struct{}
	images [][]byte
}

func (g *gatedGenerator) Model() string { return "gated" }

func (g *gatedGenerator) Generate(ctx context.Context, _ []byte, _ string, _ string) (*genai.Generation, error) {
	n := g.calls.Add(1) - 1
	select {
	case <-g.gates[n]:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &genai.Generation{Image: g.images[n], MimeType: "image/png", Text: "ok"}, nil
}

func aiParams(format codec.OutputFormat) Params {
	return Params{Mode: record.ModeEnhance, Method: enhance.MethodAI, OutputFormat: format}
}

func TestEditorLatestRequestWins(t *testing.T) {
	imgA, imgB := pngBytes(t, 4, 4, 10), pngBytes(t, 4, 4, 200)
	gen := &gatedGenerator{
		gates:  []chan struct{}{make(chan struct{}), make(chan struct{})},
		images: [][]byte{imgA, imgB},
	}
	editor := NewEditor(NewProcessor(WithGenerator(gen, "")))
	r := record.New("p.jpg", "image/jpeg", []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0, 0, 0})

	first := make(chan error, 1)
	go func() { first <- editor.Apply(context.Background(), r, aiParams(codec.FormatOriginal)) }()
	require.Eventually(t, func() bool { return gen.calls.Load() == 1 }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() { second <- editor.Apply(context.Background(), r, aiParams(codec.FormatOriginal)) }()
	require.Eventually(t, func() bool { return gen.calls.Load() == 2 }, time.Second, time.Millisecond)

	close(gen.gates[1])
	require.NoError(t, <-second)
	close(gen.gates[0])
	assert.ErrorIs(t, <-first, ErrSuperseded)

	assert.Equal(t, imgB, r.ProcessedBytes)
	assert.Equal(t, imgB, r.AIOriginalBytes)
	assert.Equal(t, record.GeneratedQuality, r.QualityUsed)
	assert.Equal(t, record.EnhanceAI, r.EnhanceMethod)
	assert.Equal(t, "gated", r.AIModel)
}

func TestEditorChangeFormatReplaysGeneratedImage(t *testing.T) {
	generated := pngBytes(t, 6, 6, 40)
	gate := make(chan struct{})
	close(gate)
	gen := &gatedGenerator{gates: []chan struct{}{gate}, images: [][]byte{generated}}
	editor := NewEditor(NewProcessor(WithGenerator(gen, "")))
	r := record.New("p.jpg", "image/jpeg", []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0, 0, 0})

	require.NoError(t, editor.Apply(context.Background(), r, aiParams(codec.FormatOriginal)))
	require.NoError(t, editor.ChangeFormat(context.Background(), r, aiParams(codec.FormatWebP)))

	assert.Equal(t, int32(1), gen.calls.Load(), "format change must not call the model again")
	assert.Equal(t, "image/webp", r.ProcessedType)
	assert.Equal(t, codec.FormatWebP, r.OutputFormat)
	assert.Equal(t, generated, r.AIOriginalBytes)
	assert.Equal(t, record.GeneratedQuality, r.QualityUsed)
}

func TestEditorKeepsRecordOnFailure(t *testing.T) {
	editor := NewEditor(NewProcessor())
	r := record.New("a.png", "image/png", pngBytes(t, 8, 8, 1))
	require.NoError(t, editor.Apply(context.Background(), r, compressParams(compress.EngineAlgorithm, 0.4, codec.FormatOriginal)))
	before := r.ProcessedBytes

	err := editor.Apply(context.Background(), r, aiParams(codec.FormatOriginal))
	assert.ErrorIs(t, err, enhance.ErrNoGenerator)
	assert.Equal(t, before, r.ProcessedBytes)
	assert.Equal(t, record.ModeCompress, r.Mode)
}

func TestEditorRejectsSavedRecord(t *testing.T) {
	editor := NewEditor(NewProcessor())
	r := record.New("a.png", "image/png", pngBytes(t, 8, 8, 1))
	r.MarkSaved()

	err := editor.Apply(context.Background(), r, compressParams(compress.EngineAlgorithm, 0.4, codec.FormatOriginal))
	assert.ErrorIs(t, err, ErrRecordSaved)
	assert.Nil(t, r.ProcessedBytes)
}

type textOnlyGenerator struct{}

func (textOnlyGenerator) Model() string { return "t" }

func (textOnlyGenerator) Generate(context.Context, []byte, string, string) (*genai.Generation, error) {
	return &genai.Generation{Text: "cannot help with that"}, nil
}

func TestEditorTextOnlyAnswerLeavesRecordUnchanged(t *testing.T) {
	editor := NewEditor(NewProcessor(WithGenerator(textOnlyGenerator{}, "")))
	r := record.New("a.png", "image/png", pngBytes(t, 8, 8, 1))
	require.NoError(t, editor.Apply(context.Background(), r, compressParams(compress.EngineAlgorithm, 0.4, codec.FormatOriginal)))
	processed, quality := r.ProcessedBytes, r.QualityUsed

	err := editor.Apply(context.Background(), r, aiParams(codec.FormatOriginal))
	var noImage *enhance.NoImageError
	require.True(t, errors.As(err, &noImage))
	assert.Equal(t, "cannot help with that", noImage.Text)

	assert.Empty(t, r.AIText)
	assert.Equal(t, record.ModeCompress, r.Mode)
	assert.Equal(t, processed, r.ProcessedBytes)
	assert.Equal(t, quality, r.QualityUsed)
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(context.Context, []byte, string) (*genai.Analysis, error) {
	return &genai.Analysis{Description: "A gradient.", Tags: []string{"abstract"}}, nil
}

func TestRunProcessesDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.png"), pngBytes(t, 16, 16, 1), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.png"), pngBytes(t, 12, 20, 2), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hello, not an image"), 0o644))
	outDir := t.TempDir()

	var mu sync.Mutex
	var saved []string
	updates := make(chan ProgressUpdate, 64)

	proc := NewProcessor(WithAnalyzer(fakeAnalyzer{}))
	summary, results, err := proc.Run(context.Background(), root, Options{
		Params:    compressParams(compress.EngineCanvas, 0.6, codec.FormatOriginal),
		Workers:   2,
		OutputDir: outDir,
		Analyze:   true,
		Save: func(r *record.Record) error {
			mu.Lock()
			defer mu.Unlock()
			saved = append(saved, r.OriginalName)
			return nil
		},
	}, updates)
	close(updates)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Processed)
	assert.Zero(t, summary.Errors)
	require.Len(t, results, 2)
	assert.Equal(t, "a.png", results[0].Display)
	assert.Equal(t, filepath.Join("sub", "b.png"), results[1].Display)
	assert.ElementsMatch(t, []string{"a.png", "b.png"}, saved)

	for _, res := range results {
		require.NoError(t, res.Err)
		assert.Equal(t, "A gradient.", res.Record.Analysis.Description)
		data, err := os.ReadFile(res.OutputPath)
		require.NoError(t, err)
		assert.Equal(t, imgutil.KindWebP, imgutil.Sniff(data))
		assert.Equal(t, ".webp", filepath.Ext(res.OutputPath))
	}

	var processed int
	var bytesOut int64
	for u := range updates {
		processed += u.ProcessedDelta
		bytesOut += u.BytesOutDelta
	}
	assert.Equal(t, 2, processed)
	assert.Equal(t, summary.BytesOut, bytesOut)
}

func TestRunCountsFailures(t *testing.T) {
	root := t.TempDir()
	corrupt := append([]byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}, []byte("truncated")...)
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken.png"), corrupt, 0o644))

	summary, results, err := NewProcessor().Run(context.Background(), root, Options{
		Params: compressParams(compress.EngineAlgorithm, 0.5, codec.FormatOriginal),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Errors)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "sub", "b.webp"), OutputPath("out", filepath.Join("sub", "b.png"), imgutil.KindWebP))
	assert.Equal(t, filepath.Join("out", "c.jpg"), OutputPath("out", "c.jpeg", imgutil.KindJPEG))
}
