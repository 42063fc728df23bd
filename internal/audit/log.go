// Package audit implements a write-only append log of domain events,
// adapted from the teacher's write-ahead log. The client is stateless
// across process restarts, so unlike the teacher's WAL this package
// deliberately has no Recover: the file exists purely so an operator
// or a downstream tool can tail the history of a run, never to
// reconstruct in-memory state on startup.
package audit

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/hj91/node-nutrunner-open-library/internal/event"
)

// Entry is one line of the audit log.
type Entry struct {
	Timestamp time.Time   `json:"timestamp"`
	Type      string      `json:"type"`
	MID       string      `json:"mid,omitempty"`
	Message   string      `json:"message,omitempty"`
	Detail    interface{} `json:"detail,omitempty"`
}

// Log appends newline-delimited JSON entries to a file, one goroutine
// at a time. It never reads the file back.
type Log struct {
	file *os.File
	mu   sync.Mutex
	now  func() time.Time
}

// Open creates or appends to the audit log at path.
func Open(path string) (*Log, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &Log{file: file, now: time.Now}, nil
}

// Append writes one entry, syncing to disk before returning so an
// operator reading the file mid-run never sees a torn line.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return err
	}
	return l.file.Sync()
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Subscribe wires the log to the events worth keeping a durable trail
// of: commands, cycle outcomes, alarms and connection transitions.
// State snapshots are deliberately excluded — they're high frequency
// and fully derivable from the events already logged.
func Subscribe(bus *event.Bus, log *Log) {
	record := func(typ event.Type, mid, message string, detail interface{}) {
		_ = log.Append(Entry{Type: string(typ), MID: mid, Message: message, Detail: detail})
	}

	bus.Subscribe(event.Connected, func(e event.Event) { record(e.Type, "", "connected", nil) })
	bus.Subscribe(event.Disconnected, func(e event.Event) { record(e.Type, "", "disconnected", nil) })
	bus.Subscribe(event.Reconnecting, func(e event.Event) {
		record(e.Type, "", "reconnecting", map[string]any{"attempt": e.Attempt, "delay": e.Delay.String()})
	})
	bus.Subscribe(event.LinkEstablished, func(e event.Event) {
		record(e.Type, "", "link established", map[string]any{"revision": e.Revision})
	})
	bus.Subscribe(event.CommandSuccess, func(e event.Event) { record(e.Type, e.MID, "command accepted", nil) })
	bus.Subscribe(event.CommandFailed, func(e event.Event) {
		record(e.Type, e.MID, "command failed", map[string]any{"error_code": e.ErrorCode, "message": e.Message})
	})
	bus.Subscribe(event.CommandTimeout, func(e event.Event) { record(e.Type, e.MID, "command timed out", nil) })
	bus.Subscribe(event.CommandAborted, func(e event.Event) { record(e.Type, e.MID, "command aborted", nil) })
	bus.Subscribe(event.TighteningCycleCompleted, func(e event.Event) {
		record(e.Type, "", "cycle completed", map[string]any{"overall_ok": e.OverallOK})
	})
	bus.Subscribe(event.TighteningIncomplete, func(e event.Event) {
		record(e.Type, "", "cycle incomplete", map[string]any{"expected": e.Expected, "received": e.Received})
	})
	bus.Subscribe(event.AlarmEvent, func(e event.Event) {
		record(e.Type, "", "alarm raised", map[string]any{"number": e.AlarmNumber, "text": e.AlarmText, "severity": e.AlarmSeverity})
	})
	bus.Subscribe(event.AlarmStatus, func(e event.Event) {
		record(e.Type, "", "alarm status", map[string]any{"active": e.AlarmActive})
	})
	bus.Subscribe(event.BatchResetConfirmed, func(e event.Event) { record(e.Type, "", "batch reset confirmed", nil) })
	bus.Subscribe(event.BatchResetFailed, func(e event.Event) { record(e.Type, "", "batch reset failed", nil) })
}
