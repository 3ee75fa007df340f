package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChatMetrics exposes counters/histograms for assistant conversation flows.
type ChatMetrics struct {
	turnsTotal      *prometheus.CounterVec
	oracleFailures  *prometheus.CounterVec
	ordersCommitted prometheus.Counter
	stockConflicts  prometheus.Counter
	turnLatency     *prometheus.HistogramVec
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmacy",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Total conversation turns handled",
		}, []string{"intent", "response_type"}),
		oracleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmacy",
			Subsystem: "chat",
			Name:      "oracle_failures_total",
			Help:      "Total LLM oracle failures that fell back to the closed path",
		}, []string{"oracle"}),
		ordersCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pharmacy",
			Subsystem: "chat",
			Name:      "orders_committed_total",
			Help:      "Total orders committed with stock decremented",
		}),
		stockConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pharmacy",
			Subsystem: "chat",
			Name:      "stock_conflicts_total",
			Help:      "Total order commits refused by the conditional stock decrement",
		}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pharmacy",
			Subsystem: "chat",
			Name:      "turn_latency_seconds",
			Help:      "Latency of end-to-end turn handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"intent"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.oracleFailures, m.ordersCommitted, m.stockConflicts, m.turnLatency)
	return m
}

func (m *ChatMetrics) ObserveTurn(intent, responseType string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(intent, responseType).Inc()
}

func (m *ChatMetrics) ObserveOracleFailure(oracle string) {
	if m == nil {
		return
	}
	m.oracleFailures.WithLabelValues(oracle).Inc()
}

func (m *ChatMetrics) ObserveOrderCommitted() {
	if m == nil {
		return
	}
	m.ordersCommitted.Inc()
}

func (m *ChatMetrics) ObserveStockConflict() {
	if m == nil {
		return
	}
	m.stockConflicts.Inc()
}

func (m *ChatMetrics) ObserveTurnLatency(intent string, seconds float64) {
	if m == nil {
		return
	}
	m.turnLatency.WithLabelValues(intent).Observe(seconds)
}
