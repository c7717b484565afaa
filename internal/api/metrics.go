package api

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portfolio",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "HTTP requests by endpoint and status code.",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "portfolio",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "Synchronous request latency by endpoint.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"endpoint"})

	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portfolio",
		Subsystem: "jobs",
		Name:      "completed_total",
		Help:      "Asynchronous jobs by kind and outcome.",
	}, []string{"kind", "outcome"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "portfolio",
		Subsystem: "jobs",
		Name:      "duration_seconds",
		Help:      "Asynchronous job runtime by kind.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"kind"})
)

func observeRequest(endpoint string, status int, started time.Time) {
	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())
}

func observeJob(kind string, ok bool, started time.Time) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	jobsTotal.WithLabelValues(kind, outcome).Inc()
	jobDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}
