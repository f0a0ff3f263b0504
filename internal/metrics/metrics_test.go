package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveProcessed(t *testing.T) {
	r := New()
	r.ObserveProcessed("compress", "algorithm", 1000, 400, 20*time.Millisecond)
	r.ObserveProcessed("compress", "algorithm", 500, 100, 10*time.Millisecond)
	r.ObserveFailure("enhance", "ai")

	assert.Equal(t, float64(2), testutil.ToFloat64(r.imagesProcessed.WithLabelValues("compress", "algorithm")))
	assert.Equal(t, float64(1500), testutil.ToFloat64(r.bytesIn))
	assert.Equal(t, float64(500), testutil.ToFloat64(r.bytesOut))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.processFailures.WithLabelValues("enhance", "ai")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.duration))
}

func TestObserveRemoteGroupsStatus(t *testing.T) {
	r := New()
	r.ObserveRemote("PROPFIND", 207)
	r.ObserveRemote("DELETE", 404)
	r.ObserveRemote("DELETE", 500)
	r.ObserveRemote("PUT", 0)

	assert.Equal(t, float64(1), testutil.ToFloat64(r.remoteRequests.WithLabelValues("PROPFIND", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.remoteRequests.WithLabelValues("DELETE", "4xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.remoteRequests.WithLabelValues("DELETE", "5xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.remoteRequests.WithLabelValues("PUT", "error")))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.ObserveProcessed("compress", "canvas", 1, 1, time.Second)
	r.ObserveRemote("GET", 200)
	assert.NoError(t, r.WriteTextfile("/nonexistent/dir/metrics.prom"))
	assert.Nil(t, r.Registry())
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.ObserveProcessed("enhance", "algorithm", 10, 12, time.Millisecond)

	path := filepath.Join(t.TempDir(), "lumen.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `lumen_images_processed_total{mode="enhance",strategy="algorithm"} 1`)
}
