package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/dispatchsim/engine/core/metrics"
)

// PromSink records dispatch, resolution and occupancy events in Prometheus
// metrics.
type PromSink struct {
	orders       *prometheus.CounterVec
	ackLatency   *prometheus.HistogramVec
	resolutions  prometheus.Counter
	transports   *prometheus.CounterVec
	reservations *prometheus.CounterVec
	activeTimers prometheus.Gauge
}

// NewPromSink registers dispatch metrics on the default Prometheus
// registerer. The Prometheus server should be started separately.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_orders_total",
		Help: "Total number of dispatch orders sent to units",
	}, []string{"class", "acknowledged"})
	ackLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_ack_latency_seconds",
		Help:    "Time between order send and acknowledgment",
		Buckets: prometheus.DefBuckets,
	}, []string{"class", "acknowledged"})
	resolutions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "missions_resolved_total",
		Help: "Total number of resolved missions",
	})
	transports := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transports_total",
		Help: "Total number of completed patient and prisoner transports",
	}, []string{"kind"})
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "facility_reservations_total",
		Help: "Total number of facility occupancy reservations",
	}, []string{"kind", "stacked"})
	activeTimers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mission_timers_active",
		Help: "Number of currently running mission timers",
	})

	s := &PromSink{
		orders:       orders,
		ackLatency:   ackLatency,
		resolutions:  resolutions,
		transports:   transports,
		reservations: reservations,
		activeTimers: activeTimers,
	}
	for _, c := range []prometheus.Collector{orders, ackLatency, resolutions, transports, reservations, activeTimers} {
		if err := register(reg, c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func register(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// RecordDispatch increments the order counter and observes ack latency for
// each dispatch record.
func (s *PromSink) RecordDispatch(recs []coremetrics.DispatchRecord) error {
	for _, r := range recs {
		ack := strconv.FormatBool(r.Acknowledged)
		s.orders.WithLabelValues(string(r.Class), ack).Inc()
		s.ackLatency.WithLabelValues(string(r.Class), ack).Observe(r.Latency.Seconds())
	}
	return nil
}

// RecordResolution counts the resolution and its transports.
func (s *PromSink) RecordResolution(rec coremetrics.ResolutionRecord) error {
	s.resolutions.Inc()
	if rec.PatientTransports > 0 {
		s.transports.WithLabelValues("patient").Add(float64(rec.PatientTransports))
	}
	if rec.PrisonerTransports > 0 {
		s.transports.WithLabelValues("prisoner").Add(float64(rec.PrisonerTransports))
	}
	return nil
}

// RecordReservation counts a facility reservation.
func (s *PromSink) RecordReservation(rec coremetrics.ReservationRecord) error {
	s.reservations.WithLabelValues(string(rec.Kind), strconv.FormatBool(rec.Stacked)).Inc()
	return nil
}

// RecordActiveTimers sets the running-timer gauge.
func (s *PromSink) RecordActiveTimers(n int) error {
	s.activeTimers.Set(float64(n))
	return nil
}
