package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	// AdmissionsTotal counts admission attempts by outcome, which is
	// "success" or the rejection code.
	AdmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetrent_admissions_total",
		Help: "Booking admission attempts by outcome",
	}, []string{"outcome"})

	AdmissionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleetrent_admission_duration_seconds",
		Help:    "Time spent admitting a booking, lock wait included",
		Buckets: prometheus.DefBuckets,
	})

	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetrent_transitions_total",
		Help: "Booking lifecycle transitions by target status and outcome",
	}, []string{"target", "outcome"})

	ReconciledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetrent_reconciled_bookings_total",
		Help: "Expired bookings moved to returned, by trigger",
	}, []string{"trigger"})

	ReconcileFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetrent_reconcile_failures_total",
		Help: "Reconciliation passes abandoned because of a storage fault",
	}, []string{"trigger"})

	LockWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleetrent_vehicle_lock_wait_seconds",
		Help:    "Time spent waiting for a vehicle lock",
		Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetrent_events_published_total",
		Help: "Booking events handed to Kafka by type and outcome",
	}, []string{"event_type", "outcome"})

	EventPublishDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleetrent_event_publish_duration_seconds",
		Help:    "Kafka publish latency",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetrent_http_requests_total",
		Help: "HTTP requests by method and status code",
	}, []string{"method", "code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleetrent_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)
