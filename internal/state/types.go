// Package state owns the canonical state snapshot mirrored from the
// controller: connection, protocol, controller, tool, product (VIN),
// job and batch sub-states, plus the two ephemeral tables (in-flight
// tightening cycle, pending commands).
package state

import "time"

// SpindleCountSource records who last set Tool.SpindleCount, so a
// lower-authority source (a guessed default, or a controller-reported
// count) can never downgrade a value an operator or config file pinned
// explicitly.
type SpindleCountSource string

const (
	SourceDefault SpindleCountSource = "default"
	SourceConfig  SpindleCountSource = "config"
	SourceManual  SpindleCountSource = "manual"
	SourceMID101  SpindleCountSource = "mid101"
	SourceMID061  SpindleCountSource = "mid061"
)

// Connection mirrors §3's Connection substate.
type Connection struct {
	Connected         bool
	LinkReady         bool
	LastReceivedMID   string
	Reconnecting      bool
	ReconnectAttempts int
}

// Protocol mirrors §3's Protocol substate.
type Protocol struct {
	Revision                     int
	SubscribedTighteningResults  bool
	SubscribedAlarms             bool
	SubscribedMultiSpindleStatus bool
}

// AlarmRecord is one entry in Controller.Alarms. The projector sets
// Severity when it appends the record, from the alarm classifier
// (internal/classify), or "unclassified" when no classifier is
// configured or it returns an empty string.
type AlarmRecord struct {
	Number   string
	Text     string
	Severity string
}

// Controller mirrors §3's Controller substate.
type Controller struct {
	Ready       bool
	ErrorActive bool
	ErrorCode   string
	Alarms      []AlarmRecord
}

// Tool mirrors §3's Tool substate.
type Tool struct {
	Enabled            bool
	Running            bool
	SpindleCount       int
	SpindleCountSource SpindleCountSource
}

// Product mirrors §3's Product (VIN/traceability) substate.
type Product struct {
	VIN         string
	VINRequired bool
	VINValid    bool
	VINLocked   bool
}

// Job mirrors §3's Job substate.
type Job struct {
	JobID      int
	ParamSetID int
	Active     bool
	Locked     bool
}

// Batch mirrors §3's Batch substate.
type Batch struct {
	BatchID      int
	Size         int
	Counter      int
	Active       bool
	Complete     bool
	Locked       bool
	PendingReset bool
}

// SpindleResult is the trimmed, protocol-revision-agnostic view of a
// single spindle's tightening result, as stored in the ephemeral
// pending-spindles table and surfaced on tightening events. It is
// deliberately independent of internal/protocol's wire-layout types so
// that package doesn't need to be imported by state's callers.
type SpindleResult struct {
	Spindle      int
	TighteningID string
	Torque       float64
	Angle        float64
	OK           bool
	VIN          string
	JobID        string
	ParamSetID   string
	Timestamp    string
}

// Tightening mirrors §3's ephemeral Tightening table: live only while
// a cycle is being collected.
type Tightening struct {
	InProgress      bool
	CycleStartTS    time.Time
	PendingSpindles map[int]SpindleResult
	WatchdogDeadline time.Time
	TraceID         string
}

// PendingCommand mirrors one entry of §3's ephemeral pending-commands
// table.
type PendingCommand struct {
	CommandID uint64
	MID       string
	TraceID   string
	IssuedAt  time.Time
	Deadline  time.Time
}

// Snapshot is the full hierarchical state tree of §3. Callers only
// ever see a Clone() of this; Store is the only thing allowed to
// mutate the live copy.
type Snapshot struct {
	Connection      Connection
	Protocol        Protocol
	Controller      Controller
	Tool            Tool
	Product         Product
	Job             Job
	Batch           Batch
	Tightening      Tightening
	PendingCommands map[uint64]PendingCommand
}

// New returns the initial snapshot: disconnected, revision 1, a single
// spindle whose count nothing has claimed authority over yet.
func New() Snapshot {
	return Snapshot{
		Protocol: Protocol{Revision: 1},
		Tool:     Tool{SpindleCount: 1, SpindleCountSource: SourceDefault},
		Tightening: Tightening{
			PendingSpindles: make(map[int]SpindleResult),
		},
		PendingCommands: make(map[uint64]PendingCommand),
	}
}

// Clone deep-copies the snapshot so external callers can never mutate
// internal state through the alarms slice, the pending-spindles map,
// or the pending-commands map.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Controller.Alarms != nil {
		out.Controller.Alarms = append([]AlarmRecord(nil), s.Controller.Alarms...)
	}
	out.Tightening.PendingSpindles = make(map[int]SpindleResult, len(s.Tightening.PendingSpindles))
	for k, v := range s.Tightening.PendingSpindles {
		out.Tightening.PendingSpindles[k] = v
	}
	out.PendingCommands = make(map[uint64]PendingCommand, len(s.PendingCommands))
	for k, v := range s.PendingCommands {
		out.PendingCommands[k] = v
	}
	return out
}
