package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bookingOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jpjportal",
		Name:      "booking_operations_total",
		Help:      "Slot ledger operations by kind and outcome.",
	}, []string{"operation", "outcome"})

	mockTestAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "jpjportal",
		Name:      "mock_test_attempts_total",
		Help:      "Scored mock-test attempts.",
	})

	mockTestScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "jpjportal",
		Name:      "mock_test_score_percentage",
		Help:      "Distribution of mock-test scores.",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	})

	renewalPayments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jpjportal",
		Name:      "renewal_payments_total",
		Help:      "Confirmed renewal payments by kind.",
	}, []string{"kind"})

	maintenanceRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jpjportal",
		Name:      "maintenance_runs_total",
		Help:      "Scheduled maintenance jobs by job and outcome.",
	}, []string{"job", "outcome"})
)
