package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "medicare"

// BookingMetrics exposes counters for the booking pipeline. A nil *BookingMetrics is a no-op.
type BookingMetrics struct {
	bookingsTotal    *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	paymentsTotal    *prometheus.CounterVec
	reschedulesTotal *prometheus.CounterVec
	outboxTotal      *prometheus.CounterVec
	expiredTotal     prometheus.Counter
	slotLockWait     prometheus.Histogram
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "requests_total",
			Help:      "Booking attempts by outcome",
		}, []string{"result"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "transitions_total",
			Help:      "Applied appointment status transitions",
		}, []string{"from", "to"}),
		paymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "events_total",
			Help:      "Inbound payment confirmations by source and result",
		}, []string{"source", "result"}),
		reschedulesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "reschedules_total",
			Help:      "Reschedule requests by action and result",
		}, []string{"action", "result"}),
		outboxTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "messages_total",
			Help:      "Outbox messages handed to Kafka",
		}, []string{"status"}),
		expiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "expired_reservations_total",
			Help:      "Unpaid reservations cancelled by the expiry worker",
		}),
		slotLockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "slot_lock_wait_seconds",
			Help:      "Time spent acquiring the slot guard",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.transitionsTotal, m.paymentsTotal, m.reschedulesTotal, m.outboxTotal, m.expiredTotal, m.slotLockWait)
	return m
}

func (m *BookingMetrics) ObserveBooking(result string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(result).Inc()
}

func (m *BookingMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *BookingMetrics) ObservePayment(source, result string) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(source, result).Inc()
}

func (m *BookingMetrics) ObserveReschedule(action, result string) {
	if m == nil {
		return
	}
	m.reschedulesTotal.WithLabelValues(action, result).Inc()
}

func (m *BookingMetrics) ObserveOutbox(status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.outboxTotal.WithLabelValues(status).Add(float64(n))
}

func (m *BookingMetrics) ObserveExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expiredTotal.Add(float64(n))
}

func (m *BookingMetrics) ObserveSlotLockWait(seconds float64) {
	if m == nil {
		return
	}
	m.slotLockWait.Observe(seconds)
}
