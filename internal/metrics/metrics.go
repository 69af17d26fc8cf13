// Package metrics registers the Prometheus collectors shared by the store,
// the remote fetchers and the HTTP API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "deskcal"

var (
	StoreWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_writes_total",
		Help:      "Event document writes by result (ok, error).",
	}, []string{"result"})

	StoreWriteSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "store_write_seconds",
		Help:      "Latency of a whole-document event write.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	HolidayLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "holiday_lookups_total",
		Help:      "Holiday lookups by outcome (cache_hit, fetched, empty, degraded).",
	}, []string{"outcome"})

	WeatherFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "weather_fetches_total",
		Help:      "Weather snapshot fetches by outcome (ok, empty, degraded).",
	}, []string{"outcome"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "API requests by route and status code.",
	}, []string{"route", "code"})
)
