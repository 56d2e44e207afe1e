// Package metrics registers the reactor's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EntriesDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reactor_entries_dispatched_total",
			Help: "Total number of stream entries dispatched to a consumer's ProcessEvent.",
		},
		[]string{"stream", "group", "delivery_status"},
	)

	EntriesAcked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reactor_entries_acked_total",
			Help: "Total number of stream entries acknowledged after a successful outcome.",
		},
		[]string{"stream", "group"},
	)

	EntriesDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reactor_entries_deleted_total",
			Help: "Total number of stream entries deleted via a Delete outcome.",
		},
		[]string{"stream", "group"},
	)

	EntriesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reactor_entries_skipped_total",
			Help: "Total number of stream entries left pending via a Skip outcome.",
		},
		[]string{"stream", "group"},
	)

	EntriesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reactor_entries_failed_total",
			Help: "Total number of stream entries whose handler reported a domain error.",
		},
		[]string{"stream", "group"},
	)

	EntriesReclaimed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reactor_entries_reclaimed_total",
			Help: "Total number of pending entries reclaimed via XAUTOCLAIM.",
		},
		[]string{"stream", "group"},
	)

	HandlersInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reactor_handlers_in_flight",
			Help: "Number of ProcessEvent calls currently executing for a stream/group.",
		},
		[]string{"stream", "group"},
	)

	BrokerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reactor_broker_errors_total",
			Help: "Total number of broker errors observed by either loop, by operation and transience.",
		},
		[]string{"stream", "group", "op", "transient"},
	)
)
