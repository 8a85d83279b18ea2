package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	lending "laptop-lending/internal/lending/domain"
)

type statsCollector struct {
	source        StatsSource
	devices       *prometheus.Desc
	queueLength   *prometheus.Desc
	requesters    *prometheus.Desc
	served        *prometheus.Desc
	active        *prometheus.Desc
	pendingWrites *prometheus.Desc
}

func newStatsCollector(source StatsSource) *statsCollector {
	return &statsCollector{
		source: source,
		devices: prometheus.NewDesc(metricPrefix+"devices",
			"Registered devices by tier and state", []string{"tier", "state"}, nil),
		queueLength: prometheus.NewDesc(metricPrefix+"queue_length",
			"Waiting requesters by tier", []string{"tier"}, nil),
		requesters: prometheus.NewDesc(metricPrefix+"requesters",
			"Registered requesters by tier", []string{"tier"}, nil),
		served: prometheus.NewDesc(metricPrefix+"requesters_served",
			"Requesters holding a device by tier", []string{"tier"}, nil),
		active: prometheus.NewDesc(metricPrefix+"active_reservations",
			"Active reservations", nil, nil),
		pendingWrites: prometheus.NewDesc(metricPrefix+"pending_writes",
			"Entities whose latest state has not reached the store", nil, nil),
	}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.devices
	ch <- c.queueLength
	ch <- c.requesters
	ch <- c.served
	ch <- c.active
	ch <- c.pendingWrites
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()
	for _, tier := range lending.Tiers() {
		ts := stats.Tiers[tier]
		label := string(tier)
		ch <- prometheus.MustNewConstMetric(c.devices, prometheus.GaugeValue, float64(ts.Available), label, string(lending.StateAvailable))
		ch <- prometheus.MustNewConstMetric(c.devices, prometheus.GaugeValue, float64(ts.Loaned), label, string(lending.StateLoaned))
		ch <- prometheus.MustNewConstMetric(c.queueLength, prometheus.GaugeValue, float64(ts.Queued), label)
		ch <- prometheus.MustNewConstMetric(c.requesters, prometheus.GaugeValue, float64(ts.Requesters), label)
		ch <- prometheus.MustNewConstMetric(c.served, prometheus.GaugeValue, float64(ts.Served), label)
	}
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(stats.ActiveReservations))
	ch <- prometheus.MustNewConstMetric(c.pendingWrites, prometheus.GaugeValue, float64(stats.PendingWrites))
}
