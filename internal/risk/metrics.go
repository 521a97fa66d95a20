package risk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BankrollAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_risk_bankroll_available",
		Help: "Current available bankroll",
	})

	BankrollReserved = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_risk_bankroll_reserved",
		Help: "Current reserved bankroll across open reservations",
	})

	ReservationsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_risk_reservations_open",
		Help: "Number of currently open reservations",
	})

	OpportunitiesAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_risk_opportunities_accepted_total",
		Help: "Total number of opportunities accepted by the risk gate",
	})

	OpportunitiesRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_risk_opportunities_rejected_total",
			Help: "Total number of opportunities rejected by the risk gate, by reason",
		},
		[]string{"reason"},
	)

	ReservationsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_risk_reservations_expired_total",
		Help: "Total number of reservations force-released after TTL expiry",
	})
)
