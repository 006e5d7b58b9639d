package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the counters the reservation core reports. A nil
// *Metrics is valid and records nothing, so tests can pass nil.
type Metrics struct {
	HoldsPlaced     prometheus.Counter
	HoldsRejected   *prometheus.CounterVec
	HoldsReleased   prometheus.Counter
	HoldsSwept      prometheus.Counter
	OrdersCommitted prometheus.Counter
	VouchersApplied prometheus.Counter
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
}

// New registers the core's metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HoldsPlaced: factory.NewCounter(prometheus.CounterOpts{
			Name: "pretix_holds_placed_total",
			Help: "Cart positions successfully placed.",
		}),
		HoldsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pretix_holds_rejected_total",
			Help: "Cart positions rejected, by reason.",
		}, []string{"reason"}),
		HoldsReleased: factory.NewCounter(prometheus.CounterOpts{
			Name: "pretix_holds_released_total",
			Help: "Cart positions explicitly released.",
		}),
		HoldsSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "pretix_holds_swept_total",
			Help: "Expired cart positions removed by the sweeper.",
		}),
		OrdersCommitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "pretix_orders_committed_total",
			Help: "Carts converted into orders.",
		}),
		VouchersApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "pretix_vouchers_applied_total",
			Help: "Voucher holds successfully placed.",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "pretix_availability_cache_hits_total",
			Help: "Availability reads served from the memoization cache.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "pretix_availability_cache_misses_total",
			Help: "Availability reads that had to hit the store.",
		}),
	}
}

func (m *Metrics) IncHoldsPlaced() {
	if m != nil {
		m.HoldsPlaced.Inc()
	}
}

func (m *Metrics) IncHoldsRejected(reason string) {
	if m != nil {
		m.HoldsRejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncHoldsReleased() {
	if m != nil {
		m.HoldsReleased.Inc()
	}
}

func (m *Metrics) AddHoldsSwept(n int) {
	if m != nil && n > 0 {
		m.HoldsSwept.Add(float64(n))
	}
}

func (m *Metrics) IncOrdersCommitted() {
	if m != nil {
		m.OrdersCommitted.Inc()
	}
}

func (m *Metrics) IncVouchersApplied() {
	if m != nil {
		m.VouchersApplied.Inc()
	}
}

func (m *Metrics) IncCacheHits() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) IncCacheMisses() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}
