package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestChatMetricsObserve(t *testing.T) {
	m := NewChatMetrics(prometheus.NewRegistry())
	m.ObserveTurn("order", "order_success")
	m.ObserveOracleFailure("compliance")
	m.ObserveOrderCommitted()
	m.ObserveStockConflict()
	m.ObserveTurnLatency("order", 0.5)
}

func TestChatMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewChatMetrics(reg)
	m.ObserveTurn("recommend", "text")
}

func TestChatMetricsNilSafe(t *testing.T) {
	var m *ChatMetrics
	m.ObserveTurn("order", "text")
	m.ObserveOracleFailure("compliance")
	m.ObserveOrderCommitted()
	m.ObserveStockConflict()
	m.ObserveTurnLatency("order", 0.1)
}
