package record

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen/internal/codec"
)

func TestChangeRatio(t *testing.T) {
	assert.Equal(t, 60, ChangeRatio(1_000_000, 400_000))
	assert.Equal(t, -20, ChangeRatio(1_000_000, 1_200_000))
	assert.Equal(t, 0, ChangeRatio(0, 10))
	assert.Equal(t, 33, ChangeRatio(3, 2))
}

func TestChangeLabel(t *testing.T) {
	assert.Equal(t, "60%", ChangeLabel(ModeCompress, 1_000_000, 400_000))
	assert.Equal(t, "+20%", ChangeLabel(ModeEnhance, 1_000_000, 1_200_000))
	assert.Equal(t, "-5%", ChangeLabel(ModeEnhance, 1_000_000, 950_000))
	assert.Equal(t, "0%", ChangeLabel(ModeEnhance, 100, 100))
}

func TestRecordDerivesSizesFromPayloads(t *testing.T) {
	r := New("photo.png", "image/png", make([]byte, 1_000_000))
	r.ProcessedBytes = make([]byte, 400_000)

	assert.Equal(t, int64(1_000_000), r.OriginalSize())
	assert.Equal(t, int64(400_000), r.ProcessedSize())
	assert.Equal(t, 60, r.ChangeRatio())

	r.ProcessedBytes = make([]byte, 500_000)
	assert.Equal(t, 50, r.ChangeRatio())
}

func TestNewRecordDefaults(t *testing.T) {
	png := []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}
	r := New("a.bin", "application/octet-stream", png)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "image/png", r.OriginalType)
	assert.Equal(t, ModeCompress, r.Mode)
	assert.Equal(t, codec.FormatOriginal, r.OutputFormat)
	assert.False(t, r.Saved())
	assert.False(t, r.Processed())

	other := New("b.png", "image/png", png)
	assert.NotEqual(t, r.ID, other.ID)
}

func TestDataURLRoundTrip(t *testing.T) {
	data := []byte{0xff, 0xd8, 0xff, 0x00, 0x01}
	url := DataURL("image/jpeg", data)
	assert.Equal(t, "data:image/jpeg;base64,/9j/AAE=", url)

	mime, got, err := DecodeDataURL(url)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
	assert.Equal(t, data, got)

	_, _, err = DecodeDataURL("http://example.com/a.png")
	assert.Error(t, err)
}

func TestRefreshPreviews(t *testing.T) {
	r := New("x.png", "image/png", []byte{1, 2, 3})
	r.ProcessedType = "image/webp"
	r.ProcessedBytes = []byte{4, 5}
	r.RefreshPreviews()

	_, got, err := DecodeDataURL(r.ProcessedPreview)
	require.NoError(t, err)
	assert.Equal(t, r.ProcessedBytes, got)
	assert.Contains(t, r.ProcessedPreview, "image/webp")
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("ENHANCE")
	require.NoError(t, err)
	assert.Equal(t, ModeEnhance, m)
	_, err = ParseMode("shrink")
	assert.Error(t, err)
}

func TestMarkSavedConcurrentWithReaders(t *testing.T) {
	r := New("a.png", "image/png", []byte("x"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.MarkSaved()
		}()
		go func() {
			defer wg.Done()
			_ = r.Saved()
		}()
	}
	wg.Wait()
	assert.True(t, r.Saved())
}
