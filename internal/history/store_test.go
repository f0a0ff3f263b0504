package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen/internal/codec"
	"lumen/internal/record"
)

func newRecord(name string, created time.Time) *record.Record {
	r := record.New(name, "image/jpeg", []byte{0xff, 0xd8, 0xff, 0xe0, 0, 1, 2, 3, 4})
	r.CreatedAt = created
	r.ProcessedType = "image/webp"
	r.ProcessedBytes = []byte("RIFF\x00\x00\x00\x00WEBPVP8 ")
	r.QualityUsed = 0.6
	r.OutputFormat = codec.FormatWebP
	r.RefreshPreviews()
	return r
}

func TestSaveAndGet(t *testing.T) {
	store, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	r := newRecord("dir/beach.jpg", time.UnixMilli(1_700_000_000_000))
	require.NoError(t, store.Save(r))
	assert.True(t, r.Saved())

	got, err := store.Get(r.ID)
	require.NoError(t, err)
	assert.True(t, got.Saved())
	assert.Equal(t, r.OriginalName, got.OriginalName)
	assert.Equal(t, r.OriginalBytes, got.OriginalBytes)
	assert.Equal(t, r.ProcessedBytes, got.ProcessedBytes)
	assert.Equal(t, r.ProcessedPreview, got.ProcessedPreview)
	assert.Equal(t, r.QualityUsed, got.QualityUsed)
	assert.True(t, r.CreatedAt.Equal(got.CreatedAt))
}

func TestSaveKeepsGeneratedImage(t *testing.T) {
	store, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	r := newRecord("p.png", time.Now())
	r.Mode = record.ModeEnhance
	r.EnhanceMethod = record.EnhanceAI
	r.QualityUsed = record.GeneratedQuality
	r.AIOriginalBytes = []byte{9, 9, 9}
	r.AIModel = "m"
	require.NoError(t, store.Save(r))

	got, err := store.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.AIOriginalBytes, got.AIOriginalBytes)
	assert.Equal(t, record.GeneratedQuality, got.QualityUsed)
	assert.True(t, got.IsAI())
}

func TestSaveRequiresOutput(t *testing.T) {
	store, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	r := record.New("raw.jpg", "image/jpeg", []byte{1})
	assert.Error(t, store.Save(r))
	assert.False(t, r.Saved())
}

func TestListNewestFirst(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, nil)
	require.NoError(t, err)

	base := time.UnixMilli(1_700_000_000_000)
	old := newRecord("old.jpg", base)
	mid := newRecord("mid.jpg", base.Add(time.Hour))
	recent := newRecord("new.jpg", base.Add(2*time.Hour))
	for _, r := range []*record.Record{mid, old, recent} {
		require.NoError(t, store.Save(r))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "junk"), 0o755))

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{recent.ID, mid.ID, old.ID}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestDelete(t *testing.T) {
	store, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	a := newRecord("a.jpg", time.Now())
	b := newRecord("b.jpg", time.Now())
	require.NoError(t, store.Save(a))
	require.NoError(t, store.Save(b))

	require.NoError(t, store.Delete(a.ID))
	_, err = store.Get(a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.Delete(b.ID, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(b.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get("../escape")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveReplacesExisting(t *testing.T) {
	store, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	r := newRecord("a.jpg", time.Now())
	require.NoError(t, store.Save(r))
	r.ProcessedBytes = []byte{0xff, 0xd8, 0xff, 0xdb, 1, 1, 1, 1}
	r.ProcessedType = "image/jpeg"
	require.NoError(t, store.Save(r))

	got, err := store.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ProcessedBytes, got.ProcessedBytes)

	list, err := store.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
