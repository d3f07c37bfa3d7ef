package lmsgo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lms_client",
			Name:      "requests_total",
			Help:      "HTTP exchanges sent to the LMS API, by method and status code (0 on transport failure).",
		},
		[]string{"method", "code"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lms_client",
			Name:      "request_duration_seconds",
			Help:      "Latency of single HTTP exchanges with the LMS API.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	tokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lms_client",
			Name:      "token_refresh_total",
			Help:      "Access token refresh attempts by result.",
		},
		[]string{"result"},
	)
)
