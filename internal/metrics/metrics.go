// Package metrics holds the forwarder's Prometheus collectors. They are
// registered on the default registry and served by the /metrics route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forwarder_records_submitted_total",
			Help: "Records handed to the producer for asynchronous delivery",
		},
	)

	RecordsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forwarder_records_rejected_total",
			Help: "Submissions refused before or at hand-off, by reason",
		},
		[]string{"reason"},
	)

	DeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forwarder_delivery_failures_total",
			Help: "Records the producer reported as undeliverable",
		},
	)

	RecordsArchived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forwarder_failed_records_archived_total",
			Help: "Failed records written to the failure archive",
		},
	)

	ArchiveDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forwarder_failed_records_dropped_total",
			Help: "Failed records that could not be archived, by reason",
		},
		[]string{"reason"},
	)
)
