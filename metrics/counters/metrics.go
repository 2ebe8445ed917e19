package counters

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var fleetGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "vcpsim",
	Name:      "chargers_managed",
	Help:      "Number of chargers in the roster",
})

var connectedGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "vcpsim",
	Name:      "chargers_connected",
	Help:      "Number of chargers with an open session",
})

var transactionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "vcpsim",
	Name:      "transactions_active",
	Help:      "Number of active transactions across the fleet",
})

var frameCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "frames_total",
	Help:      "Total number of OCPP-J frames by direction.",
}, []string{"direction"})

var transactionCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "transaction_count",
	Help:      "Total number of transactions.",
}, []string{"charge_point_id"})

var energyCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "vcpsim",
	Name:      "energy_delivered_wh",
	Help:      "Simulated energy delivered across the fleet.",
})

func ObserveFleet(count int) {
	fleetGauge.Set(float64(count))
}

func ObserveConnected(count int) {
	connectedGauge.Set(float64(count))
}

func ObserveTransactions(count int) {
	transactionsGauge.Set(float64(count))
}

func CountFrame(direction string) {
	frameCounter.With(prometheus.Labels{"direction": direction}).Inc()
}

func CountTransaction(chargePointId string) {
	if len(chargePointId) == 0 {
		return
	}
	transactionCounter.With(prometheus.Labels{"charge_point_id": chargePointId}).Inc()
}

func AddEnergy(wh float64) {
	if wh > 0 {
		energyCounter.Add(wh)
	}
}
