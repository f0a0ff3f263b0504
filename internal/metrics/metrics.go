// Package metrics records processing and sync activity on a private
// Prometheus registry.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder owns the registry and every collector on it. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	imagesProcessed *prometheus.CounterVec
	processFailures *prometheus.CounterVec
	bytesIn         prometheus.Counter
	bytesOut        prometheus.Counter
	duration        *prometheus.HistogramVec
	remoteRequests  *prometheus.CounterVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		imagesProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lumen_images_processed_total",
				Help: "Images processed, by mode and strategy",
			},
			[]string{"mode", "strategy"},
		),
		processFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lumen_images_failed_total",
				Help: "Images that failed processing, by mode and strategy",
			},
			[]string{"mode", "strategy"},
		),
		bytesIn: factory.NewCounter(prometheus.CounterOpts{
			Name: "lumen_bytes_in_total",
			Help: "Source bytes read by the pipeline",
		}),
		bytesOut: factory.NewCounter(prometheus.CounterOpts{
			Name: "lumen_bytes_out_total",
			Help: "Encoded bytes produced by the pipeline",
		}),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lumen_processing_duration_seconds",
				Help:    "Time to decode and encode one image",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"mode", "strategy"},
		),
		remoteRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lumen_remote_requests_total",
				Help: "Requests sent to the backup store",
			},
			[]string{"method", "status"},
		),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveProcessed records one successful run.
func (r *Recorder) ObserveProcessed(mode, strategy string, in, out int, took time.Duration) {
	if r == nil {
		return
	}
	r.imagesProcessed.WithLabelValues(mode, strategy).Inc()
	r.bytesIn.Add(float64(in))
	r.bytesOut.Add(float64(out))
	r.duration.WithLabelValues(mode, strategy).Observe(took.Seconds())
}

func (r *Recorder) ObserveFailure(mode, strategy string) {
	if r == nil {
		return
	}
	r.processFailures.WithLabelValues(mode, strategy).Inc()
}

// ObserveRemote counts one store request. Status 0 means no response.
func (r *Recorder) ObserveRemote(method string, status int) {
	if r == nil {
		return
	}
	r.remoteRequests.WithLabelValues(method, statusClass(status)).Inc()
}

// WriteTextfile dumps every metric in the Prometheus text format, for the
// node exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func statusClass(status int) string {
	switch {
	case status <= 0:
		return "error"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
