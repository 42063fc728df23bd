// Package handlers wires the event bus to the concerns that only ever
// observe it, never drive it: metrics, the diagnostics dashboard, the
// audit log and structured logging. Keeping these as bus subscribers
// rather than calls scattered through the connection manager and
// aggregator is what lets those packages stay ignorant of Prometheus,
// websockets and the audit file.
package handlers

import (
	"log/slog"

	"github.com/hj91/node-nutrunner-open-library/internal/audit"
	"github.com/hj91/node-nutrunner-open-library/internal/dashboard"
	"github.com/hj91/node-nutrunner-open-library/internal/event"
	"github.com/hj91/node-nutrunner-open-library/internal/metrics"
)

// Register wires every ambient subscriber onto bus. log and tracker may
// be nil to skip the audit trail or the dashboard respectively (a
// caller that doesn't configure an audit path or a dashboard address
// still gets metrics and logging).
func Register(bus *event.Bus, log *audit.Log, tracker *dashboard.Tracker, logger *slog.Logger) {
	registerMetrics(bus)
	registerLogging(bus, logger)

	if log != nil {
		audit.Subscribe(bus, log)
	}
	if tracker != nil {
		tracker.Subscribe(bus)
	}
}

// registerMetrics feeds the Prometheus collectors declared in
// internal/metrics from the events that complete a command, a cycle or
// an alarm. The connection manager increments CommandsInFlight and the
// success/failed side of CommandOutcomesTotal directly, since it's the
// one place that knows a command was actually sent; the timeout and
// aborted outcomes only ever surface on the bus, so they're handled
// here instead.
func registerMetrics(bus *event.Bus) {
	bus.Subscribe(event.CommandTimeout, func(e event.Event) {
		metrics.CommandsInFlight.Dec()
		metrics.CommandOutcomesTotal.WithLabelValues(e.MID, "timeout").Inc()
	})
	bus.Subscribe(event.CommandAborted, func(e event.Event) {
		metrics.CommandsInFlight.Dec()
		metrics.CommandOutcomesTotal.WithLabelValues(e.MID, "aborted").Inc()
	})

	bus.Subscribe(event.TighteningCycleCompleted, func(e event.Event) {
		outcome := "ok"
		if !e.OverallOK {
			outcome = "not_ok"
		}
		metrics.CyclesTotal.WithLabelValues(outcome).Inc()
		metrics.CycleDuration.Observe(e.Duration.Seconds())
	})
	bus.Subscribe(event.TighteningIncomplete, func(e event.Event) {
		metrics.CyclesTotal.WithLabelValues("incomplete").Inc()
	})

	bus.Subscribe(event.AlarmEvent, func(e event.Event) {
		metrics.AlarmsTotal.WithLabelValues(e.AlarmSeverity).Inc()
	})
}

// registerLogging records the events an operator would want in the
// process log even without a dashboard or audit file attached.
func registerLogging(bus *event.Bus, logger *slog.Logger) {
	bus.Subscribe(event.Connected, func(e event.Event) {
		logger.Info("connected")
	})
	bus.Subscribe(event.Disconnected, func(e event.Event) {
		logger.Warn("disconnected")
	})
	bus.Subscribe(event.Reconnecting, func(e event.Event) {
		logger.Warn("reconnecting", "attempt", e.Attempt, "delay", e.Delay)
	})
	bus.Subscribe(event.LinkEstablished, func(e event.Event) {
		logger.Info("link established", "revision", e.Revision)
	})
	bus.Subscribe(event.CommandFailed, func(e event.Event) {
		logger.Error("command failed", "mid", e.MID, "error_code", e.ErrorCode, "message", e.Message)
	})
	bus.Subscribe(event.CommandTimeout, func(e event.Event) {
		logger.Warn("command timed out", "mid", e.MID)
	})
	bus.Subscribe(event.CommandAborted, func(e event.Event) {
		logger.Error("command aborted", "mid", e.MID, "command_id", e.CommandID)
	})
	bus.Subscribe(event.TighteningCycleCompleted, func(e event.Event) {
		logger.Info("cycle completed", "overall_ok", e.OverallOK, "duration", e.Duration)
	})
	bus.Subscribe(event.TighteningIncomplete, func(e event.Event) {
		logger.Warn("cycle incomplete", "expected", e.Expected, "received", e.Received)
	})
	bus.Subscribe(event.AlarmEvent, func(e event.Event) {
		logger.Warn("alarm raised", "number", e.AlarmNumber, "text", e.AlarmText, "severity", e.AlarmSeverity)
	})
	bus.Subscribe(event.ParseError, func(e event.Event) {
		logger.Warn("parse error", "message", e.Message)
	})
	bus.Subscribe(event.FrameError, func(e event.Event) {
		logger.Warn("frame error", "type", e.FrameErrorType, "message", e.Message)
	})
	bus.Subscribe(event.Error, func(e event.Event) {
		logger.Error("internal error", "error", e.Err)
	})
}
