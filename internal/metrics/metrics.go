// Package metrics declares the Prometheus collectors the client
// publishes. Handlers registered in internal/handlers feed them from
// the event bus; nothing outside this package touches promauto
// directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesDecodedTotal counts successfully decoded inbound frames by
	// MID, for spotting traffic mix shifts.
	FramesDecodedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nutrunner_frames_decoded_total",
		Help: "The total number of inbound frames successfully decoded, by MID",
	}, []string{"mid"})

	// FrameErrorsTotal counts frame-level decode failures by error type.
	FrameErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nutrunner_frame_errors_total",
		Help: "The total number of frame decode errors, by error type",
	}, []string{"type"})

	// CommandsInFlight is a gauge of pending commands awaiting an ACK.
	CommandsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nutrunner_commands_in_flight",
		Help: "The number of commands currently awaiting acknowledgement",
	})

	// CommandOutcomesTotal counts how commands resolve, by MID and
	// outcome (success/failed/timeout/aborted).
	CommandOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nutrunner_command_outcomes_total",
		Help: "The total number of resolved commands, by MID and outcome",
	}, []string{"mid", "outcome"})

	// CyclesTotal counts completed tightening cycles by outcome
	// (ok/not_ok/incomplete).
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nutrunner_cycles_total",
		Help: "The total number of tightening cycles, by outcome",
	}, []string{"outcome"})

	// CycleDuration observes wall-clock time from cycle start to
	// completion. Cycles closed by the watchdog are not observed.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nutrunner_cycle_duration_seconds",
		Help:    "Time from cycle start to completion of the cycle",
		Buckets: prometheus.DefBuckets,
	})

	// AlarmsTotal counts alarms raised, by severity.
	AlarmsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nutrunner_alarms_total",
		Help: "The total number of alarms raised, by classified severity",
	}, []string{"severity"})

	// ReconnectAttemptsTotal counts reconnect attempts made.
	ReconnectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nutrunner_reconnect_attempts_total",
		Help: "The total number of reconnect attempts made after a lost connection",
	})

	// Connected is 1 while the socket to the controller is up.
	Connected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nutrunner_connected",
		Help: "1 if the client currently has a live connection to the controller, else 0",
	})
)
