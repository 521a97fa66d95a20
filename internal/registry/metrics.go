package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MarketsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_registry_markets_active",
		Help: "Number of markets currently tracked by the registry",
	})

	MarketsAddedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_registry_markets_added_total",
		Help: "Total number of markets accepted into the registry",
	})

	MarketsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_registry_markets_rejected_total",
			Help: "Total number of market registrations rejected, by reason",
		},
		[]string{"reason"},
	)

	MarketsExpiredSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_registry_markets_expired_swept_total",
		Help: "Total number of markets evicted by the expiry sweep",
	})
)
