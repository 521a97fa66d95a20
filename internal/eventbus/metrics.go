package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_eventbus_events_published_total",
			Help: "Total number of events published to the bus, by type",
		},
		[]string{"type"},
	)

	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_eventbus_events_dropped_total",
			Help: "Total number of events dropped for a slow subscriber, by type",
		},
		[]string{"type"},
	)

	SubscribersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_eventbus_subscribers_active",
		Help: "Number of currently registered event bus subscribers",
	})
)
