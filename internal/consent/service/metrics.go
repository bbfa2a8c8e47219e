package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	grantsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consentire_consent_grants_total",
		Help: "Consent grant attempts by outcome",
	}, []string{"outcome"})

	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consentire_consent_verifications_total",
		Help: "Consent verifications by result",
	}, []string{"result"})

	revocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consentire_consent_revocations_total",
		Help: "Consent revocation attempts by outcome",
	}, []string{"outcome"})

	lazyExpiriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consentire_consent_lazy_expiries_total",
		Help: "Records flipped from granted to expired on read",
	})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "consentire_consent_operation_duration_seconds",
		Help:    "Latency of consent engine operations",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"operation"})
)
