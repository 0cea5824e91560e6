// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	driverErrors *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nsm_agent",
			Name:      "requests_total",
			Help:      "Number of handled API requests by operation and HTTP status code.",
		}, []string{"operation", "code"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nsm_agent",
			Name:      "request_duration_seconds",
			Help:      "Time spent handling API requests, including the NSM round-trip.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"operation"}),
		driverErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nsm_agent",
			Name:      "driver_errors_total",
			Help:      "Number of requests the NSM rejected, by error code.",
		}, []string{"code"}),
	}
}

// instrument records count and latency of requests handled by next.
func (s *Server) instrument(operation string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newStatusRecorder(w)
		next(rec, r)
		s.metrics.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		s.metrics.requests.WithLabelValues(operation, strconv.Itoa(rec.status)).Inc()
	})
}
