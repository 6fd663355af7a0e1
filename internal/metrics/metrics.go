// Package metrics exposes run counters for monitoring compliance jobs.
//
// threadscrub is a batch job, so nothing is served over HTTP: the registry
// is written to a node-exporter textfile at the end of a run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "threadscrub"

// Collector holds the counters of one process.
type Collector struct {
	registry *prometheus.Registry

	FilesScanned    prometheus.Counter
	FilesRewritten  prometheus.Counter
	RecordsScanned  prometheus.Counter
	ThreadsRemoved  prometheus.Counter
	LastRunSuccess  prometheus.Gauge
	LastRunDuration prometheus.Gauge
}

// New creates a Collector on a private registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		FilesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_scanned_total",
			Help:      "Corpus files read, counted once per identifier pass.",
		}),
		FilesRewritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_rewritten_total",
			Help:      "Corpus files atomically replaced.",
		}),
		RecordsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_scanned_total",
			Help:      "Records tested for membership.",
		}),
		ThreadsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threads_removed_total",
			Help:      "Threads dropped from the corpus.",
		}),
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run completed, 0 if it failed.",
		}),
		LastRunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
	}
	c.registry.MustRegister(
		c.FilesScanned,
		c.FilesRewritten,
		c.RecordsScanned,
		c.ThreadsRemoved,
		c.LastRunSuccess,
		c.LastRunDuration,
	)
	return c
}

// ObserveFile adds one file result.
func (c *Collector) ObserveFile(scanned, removed int, rewritten bool) {
	c.FilesScanned.Inc()
	c.RecordsScanned.Add(float64(scanned))
	c.ThreadsRemoved.Add(float64(removed))
	if rewritten {
		c.FilesRewritten.Inc()
	}
}

// ObserveRun records the outcome of a run.
func (c *Collector) ObserveRun(elapsed time.Duration, err error) {
	c.LastRunDuration.Set(elapsed.Seconds())
	if err != nil {
		c.LastRunSuccess.Set(0)
		return
	}
	c.LastRunSuccess.Set(1)
}

// WriteTextfile writes the registry in text exposition format. The file is
// written to a temporary name and renamed, so a scraper never reads a
// partial file.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
