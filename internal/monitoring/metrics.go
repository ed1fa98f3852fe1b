package monitoring

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	bookingOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_operations_total",
			Help: "Booking ledger operations by outcome",
		},
		[]string{"operation", "status"},
	)

	settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_settlements_total",
			Help: "Payment settlement attempts by outcome",
		},
		[]string{"status"},
	)

	advertisedTickets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "advertised_tickets",
			Help: "Advertised and approved tickets",
		},
	)

	reconcileRepairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_repairs_total",
			Help: "Inconsistencies repaired by the reconciliation sweep",
		},
		[]string{"kind"},
	)
)

func TrackBooking(operation, status string) {
	bookingOperations.WithLabelValues(operation, status).Inc()
}

func TrackSettlement(status string) {
	settlements.WithLabelValues(status).Inc()
}

func SetAdvertised(n int) {
	advertisedTickets.Set(float64(n))
}

func TrackRepair(kind string, n int) {
	reconcileRepairs.WithLabelValues(kind).Add(float64(n))
}

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
