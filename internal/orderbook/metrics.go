package orderbook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpdatesAppliedTotal tracks orderbook updates actually applied to a book.
	UpdatesAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_orderbook_updates_applied_total",
		Help: "Total number of orderbook updates applied in sequence order",
	})

	// UpdatesOutOfOrderTotal tracks updates dropped for a stale or repeated sequence number.
	UpdatesOutOfOrderTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_orderbook_updates_out_of_order_total",
		Help: "Total number of orderbook updates dropped for non-increasing sequence numbers",
	})

	// SnapshotsTracked tracks the number of orderbook snapshots in memory.
	SnapshotsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_orderbook_snapshots_tracked",
		Help: "Number of orderbook snapshots tracked in memory",
	})

	// BooksMarkedStale tracks books explicitly marked stale by the feed ingestor.
	BooksMarkedStaleTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_orderbook_books_marked_stale_total",
		Help: "Total number of times a book was marked stale pending a fresh snapshot",
	})

	// LockContentionDuration tracks time waiting for mutex acquisition.
	LockContentionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarket_orderbook_lock_contention_seconds",
		Help:    "Time waiting to acquire orderbook mutex lock",
		Buckets: []float64{0.0001, 0.0002, 0.0005, 0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1},
	})
)
