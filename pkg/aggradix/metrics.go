package aggradix

import (
	operationalMetrics "github.com/netobserv/aggradix/pkg/operational/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

const mergeTypeLabel = "type"

var metrics = newMetrics()

type metricsType struct {
	poolFree  prometheus.Gauge
	packets   prometheus.Counter
	reclaimed prometheus.Counter
	merges    *prometheus.CounterVec
	requeues  prometheus.Counter
}

func newMetrics() *metricsType {
	var m metricsType

	m.poolFree = operationalMetrics.NewGauge(prometheus.GaugeOpts{
		Name: "aggradix_pool_free_nodes",
		Help: "The number of free nodes currently in the pool.",
	})

	m.packets = operationalMetrics.NewCounter(prometheus.CounterOpts{
		Name: "aggradix_packets_total",
		Help: "The total number of observed packets.",
	})

	m.reclaimed = operationalMetrics.NewCounter(prometheus.CounterOpts{
		Name: "aggradix_reclaimed_nodes_total",
		Help: "The total number of nodes recycled back to the pool.",
	})

	m.merges = operationalMetrics.NewCounterVec(prometheus.CounterOpts{
		Name: "aggradix_merges_total",
		Help: "The total number of aggregation merges per merge type.",
	}, []string{mergeTypeLabel})

	m.requeues = operationalMetrics.NewCounter(prometheus.CounterOpts{
		Name: "aggradix_reclaim_requeues_total",
		Help: "The total number of hot victims requeued during reclaim.",
	})

	return &m
}
