package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики ядра оркестрации. Экспортируются демоном через /metrics.
var (
	// Dispatches — количество диспетчеризаций PENDING → RUNNING.
	Dispatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "overseer_dispatches_total",
		Help: "Executions dispatched from PENDING to RUNNING.",
	})

	// CascadeFailures — количество executions, переведённых в FAILED
	// каскадом от упавшей зависимости.
	CascadeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "overseer_cascade_failures_total",
		Help: "Executions failed by dependency cascade.",
	})

	// ActiveExecutions — текущее количество выполняющихся executions.
	ActiveExecutions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "overseer_active_executions",
		Help: "Executions currently in RUNNING or REBASING.",
	})

	// EventsEmitted — количество событий, опубликованных в EventBus.
	EventsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "overseer_events_emitted_total",
		Help: "Events emitted on the event bus.",
	})

	// EventsDropped — количество событий, вытесненных у отставших подписчиков.
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "overseer_events_dropped_total",
		Help: "Events dropped due to lagging subscribers.",
	})

	// MessagesPersisted — количество сообщений, записанных Coordinator'ом.
	MessagesPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "overseer_messages_persisted_total",
		Help: "Coordination messages appended to the durable log.",
	}, []string{"kind"})

	// MessagesResolved — количество разрешённых сообщений.
	MessagesResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "overseer_messages_resolved_total",
		Help: "Coordination messages marked resolved.",
	})

	// IPCRequests — количество IPC запросов по типам.
	IPCRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "overseer_ipc_requests_total",
		Help: "IPC requests received by the daemon socket.",
	}, []string{"kind"})
)
