package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	eventsProcessed atomic.Uint64
	eventsRejected  atomic.Uint64
	matchCycles     atomic.Uint64
	tradesExecuted  atomic.Uint64
	tradesCapped    atomic.Uint64
	ordersRequeued  atomic.Uint64
	errorsTotal     atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	openOrders        atomic.Int64
	activeConnections atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordEvent records a processed command with latency.
func (m *Metrics) RecordEvent(latencyNs int64) {
	m.eventsProcessed.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordRejected records a command refused with a typed error.
func (m *Metrics) RecordRejected() {
	m.eventsRejected.Add(1)
}

// RecordCycle records one matching cycle and how many orders it put back.
func (m *Metrics) RecordCycle(requeued int) {
	m.matchCycles.Add(1)
	m.ordersRequeued.Add(uint64(requeued))
}

// RecordTrade records an executed trade.
func (m *Metrics) RecordTrade(capped bool) {
	m.tradesExecuted.Add(1)
	if capped {
		m.tradesCapped.Add(1)
	}
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// SetOpenOrders sets the current order book depth.
func (m *Metrics) SetOpenOrders(n int) {
	m.openOrders.Store(int64(n))
}

// IncrementConnections increments active feed connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active feed connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	EventsProcessed   uint64    `json:"events_processed"`
	EventsRejected    uint64    `json:"events_rejected"`
	MatchCycles       uint64    `json:"match_cycles"`
	TradesExecuted    uint64    `json:"trades_executed"`
	TradesCapped      uint64    `json:"trades_capped"`
	OrdersRequeued    uint64    `json:"orders_requeued"`
	ErrorsTotal       uint64    `json:"errors_total"`
	AvgLatencyNs      int64     `json:"avg_latency_ns"`
	OpenOrders        int64     `json:"open_orders"`
	ActiveConnections int32     `json:"active_connections"`
	Timestamp         time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		EventsProcessed:   m.eventsProcessed.Load(),
		EventsRejected:    m.eventsRejected.Load(),
		MatchCycles:       m.matchCycles.Load(),
		TradesExecuted:    m.tradesExecuted.Load(),
		TradesCapped:      m.tradesCapped.Load(),
		OrdersRequeued:    m.ordersRequeued.Load(),
		ErrorsTotal:       m.errorsTotal.Load(),
		AvgLatencyNs:      avgLatency,
		OpenOrders:        m.openOrders.Load(),
		ActiveConnections: m.activeConnections.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.eventsProcessed.Store(0)
	m.eventsRejected.Store(0)
	m.matchCycles.Store(0)
	m.tradesExecuted.Store(0)
	m.tradesCapped.Store(0)
	m.ordersRequeued.Store(0)
	m.errorsTotal.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.openOrders.Store(0)
	m.activeConnections.Store(0)
}
