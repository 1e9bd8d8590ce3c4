package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gateslam"

var (
	descPasses = prometheus.NewDesc(namespace+"_passes_total",
		"Discovery passes by phase.", []string{"phase"}, nil)
	descTried = prometheus.NewDesc(namespace+"_candidates_tried_total",
		"Relays put through verification.", nil, nil)
	descVerified = prometheus.NewDesc(namespace+"_verified_total",
		"Relays confirmed as egress points.", nil, nil)
	descFailures = prometheus.NewDesc(namespace+"_verification_failures_total",
		"Verification failures by kind.", []string{"kind"}, nil)
	descRegistry = prometheus.NewDesc(namespace+"_registry_writes_total",
		"Registry saves by result.", []string{"result"}, nil)
	descPolls = prometheus.NewDesc(namespace+"_feed_polls_total",
		"Relay list re-fetches.", nil, nil)
	descChanges = prometheus.NewDesc(namespace+"_feed_changes_total",
		"Re-fetches whose fingerprint differed.", nil, nil)
	descTunnels = prometheus.NewDesc(namespace+"_tunnels_active",
		"Tunnel sessions currently open.", nil, nil)
	descLastVerified = prometheus.NewDesc(namespace+"_last_verified_timestamp_seconds",
		"Unix time of the most recent confirmed relay.", nil, nil)
)

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		descPasses, descTried, descVerified, descFailures, descRegistry,
		descPolls, descChanges, descTunnels, descLastVerified,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	counter(descPasses, c.passesStarted.Load(), "started")
	counter(descPasses, c.passesCompleted.Load(), "completed")
	counter(descTried, c.candidatesTried.Load())
	counter(descVerified, c.verified.Load())
	for _, l := range failureLabels {
		counter(descFailures, c.failures[l].Load(), l)
	}
	counter(descRegistry, c.registryWrites.Load(), "ok")
	counter(descRegistry, c.registryErrors.Load(), "error")
	counter(descPolls, c.feedPolls.Load())
	counter(descChanges, c.feedChanges.Load())
	ch <- prometheus.MustNewConstMetric(descTunnels, prometheus.GaugeValue, float64(c.tunnelsActive.Load()))

	c.mu.RLock()
	last := c.lastVerified
	c.mu.RUnlock()
	if !last.IsZero() {
		ch <- prometheus.MustNewConstMetric(descLastVerified, prometheus.GaugeValue,
			float64(last.UnixNano())/float64(time.Second))
	}
}

// Handler returns an http.Handler serving c, plus Go runtime and process
// collectors, in the Prometheus text format.
func Handler(c *Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
