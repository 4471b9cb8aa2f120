/*
Copyright (c) The handover-core Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package bridge

import (
	"github.com/prometheus/client_golang/prometheus"

	syncpkg "github.com/ntn-constellation/handover-core/sync"
)

var drivenPlanes = []syncpkg.Plane{syncpkg.AccessNet, syncpkg.CoreNet, syncpkg.SatelliteNet, syncpkg.GroundStation}

// Collector exposes the Bridge's per-mode metrics, fallback counter, and the
// Coordinator's per-plane drift readings as a Prometheus collector, scraped
// on demand rather than on a fixed interval (the in-process equivalent of
// ptp/sptp/stats's periodic scrape, since here the source is this same
// process rather than an HTTP counters endpoint).
type Collector struct {
	bridge *Bridge

	requestsTotal    *prometheus.Desc
	successTotal     *prometheus.Desc
	avgResponseMS    *prometheus.Desc
	activeMode       *prometheus.Desc
	fallbackCount    *prometheus.Desc
	driftSmoothedMS  *prometheus.Desc
	driftRateMSHour  *prometheus.Desc
}

// NewCollector wraps b for Prometheus registration.
func NewCollector(b *Bridge) *Collector {
	return &Collector{
		bridge: b,
		requestsTotal: prometheus.NewDesc(
			"handover_bridge_requests_total", "Total decision requests handled per mode.", []string{"mode"}, nil),
		successTotal: prometheus.NewDesc(
			"handover_bridge_requests_success_total", "Successful decision requests per mode.", []string{"mode"}, nil),
		avgResponseMS: prometheus.NewDesc(
			"handover_bridge_avg_response_ms", "Average response time in ms per mode.", []string{"mode"}, nil),
		activeMode: prometheus.NewDesc(
			"handover_bridge_active_mode", "1 for the currently active mode, 0 otherwise.", []string{"mode"}, nil),
		fallbackCount: prometheus.NewDesc(
			"handover_bridge_fallback_activations_total", "Number of times Fallback mode fell back to the paper-only path.", nil, nil),
		driftSmoothedMS: prometheus.NewDesc(
			"handover_sync_drift_smoothed_ms", "PI-servo-smoothed clock offset per plane, in ms.", []string{"plane"}, nil),
		driftRateMSHour: prometheus.NewDesc(
			"handover_sync_drift_rate_ms_per_hour", "Measured clock drift rate per plane, in ms/hour.", []string{"plane"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requestsTotal
	ch <- c.successTotal
	ch <- c.avgResponseMS
	ch <- c.activeMode
	ch <- c.fallbackCount
	ch <- c.driftSmoothedMS
	ch <- c.driftRateMSHour
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	active := c.bridge.Mode()
	for _, m := range []Mode{PaperOnly, EnhancedOnly, Hybrid, Fallback} {
		snap := c.bridge.Metrics(m)
		label := m.String()
		ch <- prometheus.MustNewConstMetric(c.requestsTotal, prometheus.CounterValue, float64(snap.Count), label)
		ch <- prometheus.MustNewConstMetric(c.successTotal, prometheus.CounterValue, float64(snap.Successes), label)
		ch <- prometheus.MustNewConstMetric(c.avgResponseMS, prometheus.GaugeValue, snap.AvgResponseMS, label)
		isActive := 0.0
		if m == active {
			isActive = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.activeMode, prometheus.GaugeValue, isActive, label)
	}
	ch <- prometheus.MustNewConstMetric(c.fallbackCount, prometheus.CounterValue, float64(c.bridge.FallbackActivations()))

	for _, p := range drivenPlanes {
		label := p.String()
		ch <- prometheus.MustNewConstMetric(c.driftSmoothedMS, prometheus.GaugeValue, c.bridge.coordinator.SmoothedOffsetMS(p), label)
		ch <- prometheus.MustNewConstMetric(c.driftRateMSHour, prometheus.GaugeValue, c.bridge.coordinator.DriftRateMSPerHour(p), label)
	}
}
