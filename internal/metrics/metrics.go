package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsCreated counts WorkflowRun rows created by reconciliation.
	RunsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runmanager_runs_created_total",
		Help: "Number of runs created, by run kind.",
	}, []string{"kind"})

	// TransitionsAccepted counts persisted state transitions.
	TransitionsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runmanager_transitions_accepted_total",
		Help: "Number of accepted state transitions, by resulting status.",
	}, []string{"status"})

	// TransitionsRejected counts dropped (non-advancing) state changes.
	TransitionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runmanager_transitions_rejected_total",
		Help: "Number of rejected state transitions, by rejection reason.",
	}, []string{"reason"})

	// EventsDeadLettered counts inbound events that failed deserialization.
	EventsDeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "runmanager_events_deadlettered_total",
		Help: "Number of inbound events pushed to the dead-letter list.",
	})
)
