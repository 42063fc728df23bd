package state

import (
	"github.com/hj91/node-nutrunner-open-library/internal/event"
	"github.com/hj91/node-nutrunner-open-library/internal/protocol"
)

// AlarmClassifier assigns a severity tier to an alarm's number/text.
// internal/classify.Classifier implements this; the interface lives
// here so state doesn't need to import classify (or vice versa).
type AlarmClassifier interface {
	Classify(number, text string) string
}

// Projector applies inbound protocol messages to the shared Store and
// emits the domain events §4.E describes. It does not own the socket —
// the connection manager decodes frames and routes them here (except
// MID 0061/0065, which the manager routes straight to the cycle
// aggregator, and MID 0004/0005, which the command tracker resolves).
type Projector struct {
	store      *Store
	bus        *event.Bus
	classifier AlarmClassifier
}

// NewProjector returns a projector over store, publishing to bus.
// classifier may be nil, in which case alarms are tagged
// "unclassified".
func NewProjector(store *Store, bus *event.Bus, classifier AlarmClassifier) *Projector {
	return &Projector{store: store, bus: bus, classifier: classifier}
}

// commit mutates the live snapshot under the store's lock, emits
// stateChanged with the resulting deep copy, and returns that copy so
// callers can read back values they just set without a second lock
// round trip.
func (p *Projector) commit(mutate func(*Snapshot)) Snapshot {
	snap := p.store.Update(mutate)
	p.bus.Publish(event.Event{Type: event.StateChanged, Snapshot: &snap})
	return snap
}

// NoteReceivedMID records the last MID seen on the wire, regardless of
// which specific Apply* method (if any) subsequently handles it.
func (p *Projector) NoteReceivedMID(mid string) {
	p.store.Update(func(s *Snapshot) {
		s.Connection.LastReceivedMID = mid
	})
}

// ApplyLinkEstablished handles MID 0002/0003: the comm-start
// acknowledgement.
func (p *Projector) ApplyLinkEstablished(revision int) {
	p.commit(func(s *Snapshot) {
		s.Protocol.Revision = revision
		s.Connection.LinkReady = true
	})
	p.bus.Publish(event.Event{Type: event.LinkEstablished, Revision: revision})
}

// ApplyParamSetReply handles MID 0011.
func (p *Projector) ApplyParamSetReply(r protocol.ParamSetReply) {
	p.commit(func(s *Snapshot) {
		s.Job.ParamSetID = r.ParamSetID
	})
}

// ApplyBatchReply handles MID 0031: a new batch replaces the previous
// one wholesale.
func (p *Projector) ApplyBatchReply(r protocol.BatchReply) {
	p.commit(func(s *Snapshot) {
		s.Batch = Batch{
			BatchID:  r.BatchID,
			Size:     r.Size,
			Counter:  r.Counter,
			Active:   true,
			Complete: false,
			Locked:   true,
		}
		s.Product.VINLocked = false
	})
	p.bus.Publish(event.Event{Type: event.BatchStarted, BatchID: r.BatchID, BatchSize: r.Size})
}

// ApplyJobReply handles MID 0035.
func (p *Projector) ApplyJobReply(r protocol.JobReply) {
	p.commit(func(s *Snapshot) {
		s.Job.JobID = r.JobID
		s.Job.ParamSetID = r.ParamSetID
		s.Job.Active = r.Active
		s.Job.Locked = true
		s.Product.VINLocked = false
	})
	p.bus.Publish(event.Event{Type: event.JobSelected, JobID: r.JobID, ParamSetID: r.ParamSetID})
}

// ApplyToolStatus handles MID 0041 and reports whether tool.running
// just transitioned false->true, the cycle aggregator's start trigger.
func (p *Projector) ApplyToolStatus(ts protocol.ToolStatus) (risingEdge bool) {
	p.commit(func(s *Snapshot) {
		risingEdge = ts.ToolRunning && !s.Tool.Running
		s.Controller.Ready = ts.ControllerReady
		s.Tool.Enabled = ts.ToolEnabled
		s.Tool.Running = ts.ToolRunning
		s.Controller.ErrorActive = ts.AlarmActive
	})
	return risingEdge
}

// ApplyVinReply handles MID 0051.
func (p *Projector) ApplyVinReply(r protocol.VinReply) {
	p.commit(func(s *Snapshot) {
		s.Product.VIN = r.VIN
		s.Product.VINValid = r.VIN != ""
	})
}

// ApplyVinRequired handles MID 0052.
func (p *Projector) ApplyVinRequired(r protocol.VinRequired) {
	p.commit(func(s *Snapshot) {
		s.Product.VINRequired = r.Required
	})
	p.bus.Publish(event.Event{Type: event.VinRequired, Required: r.Required})
}

// ApplyAlarm handles MID 0070: appends to the alarm list, sets
// error_active, and runs the configured classifier.
func (p *Projector) ApplyAlarm(a protocol.Alarm) {
	severity := "unclassified"
	if p.classifier != nil {
		if s := p.classifier.Classify(a.Number, a.Text); s != "" {
			severity = s
		}
	}
	p.commit(func(s *Snapshot) {
		s.Controller.Alarms = append(s.Controller.Alarms, AlarmRecord{
			Number: a.Number, Text: a.Text, Severity: severity,
		})
		s.Controller.ErrorActive = true
	})
	p.bus.Publish(event.Event{
		Type: event.AlarmEvent, AlarmNumber: a.Number, AlarmText: a.Text, AlarmSeverity: severity,
	})
}

// ApplyAlarmStatus handles MID 0076: an alarm_status=false transition
// empties the alarm list and clears error_active.
func (p *Projector) ApplyAlarmStatus(a protocol.AlarmStatus) {
	p.commit(func(s *Snapshot) {
		if !a.Active {
			s.Controller.Alarms = nil
			s.Controller.ErrorActive = false
		}
	})
	p.bus.Publish(event.Event{Type: event.AlarmStatus, AlarmActive: a.Active})
}

// ApplyMultiSpindleStatus handles MID 0101: adopts the reported
// spindle count only if nothing of higher authority already claimed
// it, per the spindle-count-authority invariant.
func (p *Projector) ApplyMultiSpindleStatus(m protocol.MultiSpindleStatus) {
	var updated bool
	snap := p.commit(func(s *Snapshot) {
		if s.Tool.SpindleCountSource != SourceConfig && s.Tool.SpindleCountSource != SourceManual && m.SpindleCount > 0 {
			s.Tool.SpindleCount = m.SpindleCount
			s.Tool.SpindleCountSource = SourceMID101
			updated = true
		}
	})
	if updated {
		p.bus.Publish(event.Event{
			Type: event.SpindleCountUpdated, SpindleCount: snap.Tool.SpindleCount, SpindleCountSource: string(SourceMID101),
		})
	}
}

// ApplyBatchResetConfirmed handles the MID 0005 carve-out for the
// batch-reset command (MID 0020): only now does the counter actually
// reset.
func (p *Projector) ApplyBatchResetConfirmed() {
	p.commit(func(s *Snapshot) {
		s.Batch.Counter = 0
		s.Batch.Complete = false
		s.Batch.PendingReset = false
	})
	p.bus.Publish(event.Event{Type: event.BatchResetConfirmed})
}

// ApplyBatchResetFailed handles the MID 0004 carve-out for MID 0020:
// the counter is left untouched, but the pending flag still clears.
func (p *Projector) ApplyBatchResetFailed() {
	p.commit(func(s *Snapshot) {
		s.Batch.PendingReset = false
	})
	p.bus.Publish(event.Event{Type: event.BatchResetFailed})
}

// MarkBatchResetPending flags a resetBatch() call as outstanding so
// ApplyBatchResetConfirmed/Failed know to clear it. The counter itself
// is untouched until the controller actually confirms.
func (p *Projector) MarkBatchResetPending() {
	p.store.Update(func(s *Snapshot) {
		s.Batch.PendingReset = true
	})
}
