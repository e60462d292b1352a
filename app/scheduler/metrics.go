package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Deliveries finalized by the dispatcher, partitioned by terminal status
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_deliveries_total",
			Help: "Total number of queue items finalized by the dispatcher",
		},
		[]string{"status", "message_type"},
	)

	// Schedules expanded into queue items per tick
	schedulesExpandedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_schedules_expanded_total",
			Help: "Total number of due schedules expanded into queue items",
		},
	)

	// Queue items written by the recurrence runner
	queueItemsEnqueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_queue_items_enqueued_total",
			Help: "Total number of queue items created from schedule expansion",
		},
	)

	// Stale sending rows recovered by the sweeper
	staleRequeuesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_stale_requeues_total",
			Help: "Total number of abandoned sending items returned to pending",
		},
	)

	// Stale sending rows escalated to error after exhausting requeues
	staleEscalationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_stale_escalations_total",
			Help: "Total number of abandoned sending items escalated to error",
		},
	)

	// Current queue depth by status, refreshed on each sweep
	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_queue_depth",
			Help: "Number of queue items per status",
		},
		[]string{"status"},
	)
)
