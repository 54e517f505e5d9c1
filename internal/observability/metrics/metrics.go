package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics exposes counters/histograms for the appointment event consumer.
type IngestMetrics struct {
	recordsTotal    *prometheus.CounterVec
	commitsTotal    *prometheus.CounterVec
	upsertLatency   prometheus.Histogram
	committedOffset *prometheus.GaugeVec
}

func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	m := &IngestMetrics{
		recordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portfolio",
			Subsystem: "appointments_consumer",
			Name:      "records_total",
			Help:      "Records read from the log by outcome (stored or the decode failure reason)",
		}, []string{"topic", "outcome"}),
		commitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portfolio",
			Subsystem: "appointments_consumer",
			Name:      "commits_total",
			Help:      "Offset commits issued after a successful store write",
		}, []string{"topic", "status"}),
		upsertLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "portfolio",
			Subsystem: "appointments_consumer",
			Name:      "upsert_latency_seconds",
			Help:      "Latency of idempotent event upserts",
			Buckets:   prometheus.DefBuckets,
		}),
		committedOffset: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "portfolio",
			Subsystem: "appointments_consumer",
			Name:      "committed_offset",
			Help:      "Last committed offset per partition",
		}, []string{"topic", "partition"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.recordsTotal, m.commitsTotal, m.upsertLatency, m.committedOffset)
	return m
}

// ObserveRecord counts a processed record. outcome is "stored" or a decode failure reason.
func (m *IngestMetrics) ObserveRecord(topic, outcome string) {
	if m == nil {
		return
	}
	m.recordsTotal.WithLabelValues(topic, outcome).Inc()
}

func (m *IngestMetrics) ObserveUpsert(seconds float64) {
	if m == nil {
		return
	}
	m.upsertLatency.Observe(seconds)
}

func (m *IngestMetrics) ObserveCommit(topic string, partition int32, offset int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.commitsTotal.WithLabelValues(topic, "error").Inc()
		return
	}
	m.commitsTotal.WithLabelValues(topic, "ok").Inc()
	m.committedOffset.WithLabelValues(topic, strconv.FormatInt(int64(partition), 10)).Set(float64(offset))
}
