// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HttpRequestsTotal counts HTTP requests by route, method and status code.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of http requests handled by the service.",
		},
		[]string{"path", "method", "code"},
	)

	// AssignmentsTotal counts assignment attempts by outcome
	// (assigned, already_assigned, no_inspectors, failed).
	AssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complaint_assignments_total",
			Help: "Total number of complaint assignment attempts.",
		},
		[]string{"status"},
	)

	// InspectorAssignmentsTotal counts complaints assigned per inspector.
	InspectorAssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inspector_assignments_total",
			Help: "Total number of complaints assigned to each inspector.",
		},
		[]string{"inspector_id"},
	)

	// RotationCursor is the last persisted rotation index.
	RotationCursor = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rotation_cursor",
			Help: "Index within the active pool of the last inspector assigned.",
		},
	)

	// RotationPoolSize is the size of the active pool seen by the last assignment.
	RotationPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rotation_pool_size",
			Help: "Number of active inspectors at the last assignment.",
		},
	)

	// IsLeader marks whether this node runs the background triggers.
	IsLeader = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "is_leader",
			Help: "Is this node currently the leader. 1 if leader, 0 otherwise.",
		},
		[]string{"node_id"},
	)
)
