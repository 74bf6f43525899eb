package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleet_search_seconds",
		Help:    "Time spent answering an availability search.",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	admissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_admissions_total",
		Help: "Total booking admission attempts grouped by outcome.",
	}, []string{"outcome"})

	cancellationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_cancellations_total",
		Help: "Total bookings cancelled.",
	})

	vehiclesAddedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vehicles_added_total",
		Help: "Total vehicles registered into the fleet.",
	})
)
