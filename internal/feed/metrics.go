package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FeedMode = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_feed_mode",
		Help: "Current feed mode: 0=push, 1=poll",
	})

	PollFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_feed_poll_fetches_total",
			Help: "Total REST orderbook polls, by outcome",
		},
		[]string{"outcome"},
	)

	PollFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarket_feed_poll_fetch_duration_seconds",
		Help:    "Duration of a single REST orderbook poll",
		Buckets: prometheus.DefBuckets,
	})

	NotifyCoalescedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_feed_notify_coalesced_total",
		Help: "Total notify signals coalesced because a market was already pending",
	})

	ReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_feed_reconnects_total",
		Help: "Total push-mode reconnects observed by the ingestor",
	})
)
