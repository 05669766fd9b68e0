// Package metrics exports session results in the Prometheus text format.
//
// lzxauto is not a server, so instead of an HTTP endpoint the collector
// writes a .prom file for the node_exporter textfile collector.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Ning0612/lzxauto/internal/domain"
)

// Collector holds the session metrics of one process
type Collector struct {
	registry *prometheus.Registry

	sessionsTotal     *prometheus.CounterVec
	filesTotal        *prometheus.CounterVec
	savedBytesTotal   prometheus.Counter
	lastFiles         *prometheus.GaugeVec
	lastSavedBytes    prometheus.Gauge
	lastDuration      prometheus.Gauge
	lastTimestamp     prometheus.Gauge
	lastSuccess       prometheus.Gauge
	cacheEntries      prometheus.Gauge
	diskFreeBytes     prometheus.Gauge
	uncompressedBytes prometheus.Gauge
}

// New creates a collector backed by its own registry
func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		sessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lzxauto_sessions_total",
				Help: "Total number of finished sessions",
			},
			[]string{"status"},
		),
		filesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lzxauto_files_total",
				Help: "Total number of files visited, by outcome",
			},
			[]string{"outcome"},
		),
		savedBytesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "lzxauto_saved_bytes_total",
				Help: "Total bytes of free space gained across sessions",
			},
		),
		lastFiles: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lzxauto_last_session_files",
				Help: "Files visited by the last session, by outcome",
			},
			[]string{"outcome"},
		),
		lastSavedBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "lzxauto_last_session_saved_bytes",
				Help: "Free space gained by the last session",
			},
		),
		lastDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "lzxauto_last_session_duration_seconds",
				Help: "Wall time of the last session",
			},
		),
		lastTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "lzxauto_last_session_timestamp_seconds",
				Help: "Unix time the last session finished",
			},
		),
		lastSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "lzxauto_last_session_success",
				Help: "1 if the last session completed successfully, 0 otherwise",
			},
		),
		cacheEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "lzxauto_cache_entries",
				Help: "Number of entries in the change cache",
			},
		),
		diskFreeBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "lzxauto_disk_free_bytes",
				Help: "Free space on the volume after the last session",
			},
		),
		uncompressedBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "lzxauto_last_session_uncompressed_bytes",
				Help: "Estimated uncompressed size of the files visited by the last session",
			},
		),
	}
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Observe records a finished session
func (c *Collector) Observe(s *domain.SessionSummary) {
	c.sessionsTotal.WithLabelValues(string(s.Status)).Inc()

	files := map[domain.Outcome]int64{
		domain.OutcomeProcessed:        s.Processed,
		domain.OutcomeSkippedAttribute: s.SkippedByAttribute,
		domain.OutcomeSkippedExtension: s.SkippedByExtension,
		domain.OutcomeSkippedUnchanged: s.SkippedUnchanged,
		domain.OutcomeSkippedEmpty:     s.SkippedEmpty,
		domain.OutcomeFailed:           s.Failed,
	}
	for outcome, n := range files {
		c.filesTotal.WithLabelValues(outcome.String()).Add(float64(n))
		c.lastFiles.WithLabelValues(outcome.String()).Set(float64(n))
	}

	saved := s.SessionSaved()
	c.savedBytesTotal.Add(float64(saved))
	c.lastSavedBytes.Set(float64(saved))
	c.lastDuration.Set(s.Elapsed().Seconds())
	c.lastTimestamp.Set(float64(s.EndTime.Unix()))
	c.cacheEntries.Set(float64(s.CacheEntries))
	c.uncompressedBytes.Set(float64(s.UncompressedBytes))
	if s.DiskCapacity > 0 {
		c.diskFreeBytes.Set(float64(s.DiskFreeAfter))
	}

	if s.Status == domain.StatusSuccess {
		c.lastSuccess.Set(1)
	} else {
		c.lastSuccess.Set(0)
	}
}

// WriteTextfile atomically writes every metric to path
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
