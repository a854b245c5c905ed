package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Sync websocket metrics
	SyncConnections prometheus.Gauge
	SyncMessages    *prometheus.CounterVec

	// Record store metrics
	RecordOps *prometheus.CounterVec

	// Change feed metrics
	FeedEvents *prometheus.CounterVec
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	metrics := &Metrics{
		// Active sync websocket connections (gauge - can go up and down)
		SyncConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "commandcenter_sync_connections_active",
			Help: "Number of active sync WebSocket connections",
		}),

		// Sync messages by type (counter - only goes up)
		SyncMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "commandcenter_sync_messages_total",
			Help: "Total number of sync WebSocket messages by type",
		}, []string{"type", "direction"}), // direction: "inbound" or "outbound"

		// Record store operations by table and op
		RecordOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "commandcenter_record_ops_total",
			Help: "Total number of record store operations",
		}, []string{"table", "op"}),

		// Change feed events by table
		FeedEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "commandcenter_feed_events_total",
			Help: "Total number of change feed events published",
		}, []string{"table"}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance (nil if not initialized)
func GetMetrics() *Metrics {
	return globalMetrics
}

func recordOp(table string, op string) {
	if globalMetrics != nil {
		globalMetrics.RecordOps.WithLabelValues(table, op).Inc()
	}
}

func feedEventsPublished(table string) {
	if globalMetrics != nil {
		globalMetrics.FeedEvents.WithLabelValues(table).Inc()
	}
}
