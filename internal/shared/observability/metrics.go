package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	FsEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docwatch_fs_events_total",
		Help: "Total number of raw filesystem events received by watch groups.",
	})

	UpdatesEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docwatch_updates_emitted_total",
		Help: "Total number of update events forwarded to the host, by group type.",
	}, []string{"type"})

	UpdatesSuppressedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docwatch_updates_suppressed_total",
		Help: "Total number of updates dropped because the trigger gate was off.",
	})

	ConsoleCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docwatch_console_commands_total",
		Help: "Total number of dispatched console commands, by outcome.",
	}, []string{"outcome"})

	ActiveGroups = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docwatch_active_groups",
		Help: "Number of watch groups currently ready and delivering changes.",
	})
)
