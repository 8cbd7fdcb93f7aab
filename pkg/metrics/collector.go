// Package metrics exposes playbook activity as Prometheus metrics and
// provides answer evaluation helpers for reinforcement decisions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

// Collector tracks playbook activity. It implements playbook.MergeObserver
// so the merger updates it on every applied delta.
type Collector struct {
	registry *prometheus.Registry

	playbookSize  prometheus.Gauge
	deltasApplied prometheus.Counter
	itemsAdded    prometheus.Counter
	itemsMerged   prometheus.Counter
	reinforced    prometheus.Counter
	deprecated    prometheus.Counter
	evicted       prometheus.Counter
	missingOps    prometheus.Counter
	retrievals    prometheus.Counter
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		playbookSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ace_playbook_size",
			Help: "Current number of items in the playbook.",
		}),
		deltasApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ace_deltas_applied_total",
			Help: "Total number of deltas applied to the playbook.",
		}),
		itemsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ace_items_added_total",
			Help: "Total number of new items inserted.",
		}),
		itemsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ace_items_merged_total",
			Help: "Total number of additions merged into existing items.",
		}),
		reinforced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ace_items_reinforced_total",
			Help: "Total number of reinforcement operations applied.",
		}),
		deprecated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ace_items_deprecated_total",
			Help: "Total number of items marked deprecated.",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ace_items_evicted_total",
			Help: "Total number of items evicted to honor the size bound.",
		}),
		missingOps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ace_missing_operations_total",
			Help: "Total number of operations that referenced unknown item ids.",
		}),
		retrievals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ace_retrievals_total",
			Help: "Total number of retrieval requests served.",
		}),
	}

	registry.MustRegister(
		c.playbookSize, c.deltasApplied, c.itemsAdded, c.itemsMerged,
		c.reinforced, c.deprecated, c.evicted, c.missingOps, c.retrievals,
	)
	return c
}

// DeltaApplied implements playbook.MergeObserver.
func (c *Collector) DeltaApplied(result *playbook.ApplyResult, size int) {
	c.playbookSize.Set(float64(size))
	c.deltasApplied.Inc()
	c.itemsAdded.Add(float64(len(result.Added)))
	c.itemsMerged.Add(float64(len(result.Merged)))
	c.reinforced.Add(float64(len(result.Reinforced)))
	c.deprecated.Add(float64(len(result.Deprecated)))
	c.evicted.Add(float64(len(result.Evicted)))
	c.missingOps.Add(float64(len(result.Missing)))
}

// RecordRetrieval counts one served retrieval.
func (c *Collector) RecordRetrieval() {
	c.retrievals.Inc()
}

// Handler returns the /metrics HTTP handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional registrations.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

var _ playbook.MergeObserver = (*Collector)(nil)
