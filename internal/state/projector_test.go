package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hj91/node-nutrunner-open-library/internal/event"
	"github.com/hj91/node-nutrunner-open-library/internal/protocol"
)

type fixedClassifier struct{ severity string }

func (f fixedClassifier) Classify(number, text string) string { return f.severity }

func newProjector(t *testing.T, classifier AlarmClassifier) (*Projector, *Store, *event.Bus) {
	store := NewStore()
	bus := event.NewBus()
	return NewProjector(store, bus, classifier), store, bus
}

func TestApplyJobReplyLocksJobAndClearsVIN(t *testing.T) {
	p, store, bus := newProjector(t, nil)
	store.Update(func(s *Snapshot) { s.Product.VINLocked = true })

	selected := make(chan event.Event, 1)
	bus.Subscribe(event.JobSelected, func(e event.Event) { selected <- e })

	p.ApplyJobReply(protocol.JobReply{JobID: 7, ParamSetID: 3, Active: true})

	snap := store.Get()
	require.Equal(t, 7, snap.Job.JobID)
	require.Equal(t, 3, snap.Job.ParamSetID)
	require.True(t, snap.Job.Active)
	require.True(t, snap.Job.Locked)
	require.False(t, snap.Product.VINLocked)

	e := <-selected
	require.Equal(t, 7, e.JobID)
	require.Equal(t, 3, e.ParamSetID)
}

func TestApplyBatchReplyReplacesBatchWholesale(t *testing.T) {
	p, store, _ := newProjector(t, nil)
	store.Update(func(s *Snapshot) {
		s.Batch = Batch{BatchID: 1, Size: 5, Counter: 5, Active: true, Complete: true}
		s.Product.VINLocked = true
	})

	p.ApplyBatchReply(protocol.BatchReply{BatchID: 2, Size: 10, Counter: 0})

	snap := store.Get()
	require.Equal(t, 2, snap.Batch.BatchID)
	require.Equal(t, 10, snap.Batch.Size)
	require.Equal(t, 0, snap.Batch.Counter)
	require.False(t, snap.Batch.Complete)
	require.True(t, snap.Batch.Locked)
	require.False(t, snap.Product.VINLocked)
}

func TestApplyToolStatusReportsRisingEdgeOnlyOnce(t *testing.T) {
	p, _, _ := newProjector(t, nil)

	rising := p.ApplyToolStatus(protocol.ToolStatus{ToolRunning: true, ToolEnabled: true, ControllerReady: true})
	require.True(t, rising)

	rising = p.ApplyToolStatus(protocol.ToolStatus{ToolRunning: true, ToolEnabled: true, ControllerReady: true})
	require.False(t, rising)

	p.ApplyToolStatus(protocol.ToolStatus{ToolRunning: false, ToolEnabled: true, ControllerReady: true})
	rising = p.ApplyToolStatus(protocol.ToolStatus{ToolRunning: true, ToolEnabled: true, ControllerReady: true})
	require.True(t, rising)
}

func TestMultiSpindleStatusYieldsToHigherAuthority(t *testing.T) {
	p, store, _ := newProjector(t, nil)

	p.ApplyMultiSpindleStatus(protocol.MultiSpindleStatus{SpindleCount: 4})
	snap := store.Get()
	require.Equal(t, 4, snap.Tool.SpindleCount)
	require.Equal(t, SourceMID101, snap.Tool.SpindleCountSource)

	store.Update(func(s *Snapshot) {
		s.Tool.SpindleCount = 2
		s.Tool.SpindleCountSource = SourceConfig
	})
	p.ApplyMultiSpindleStatus(protocol.MultiSpindleStatus{SpindleCount: 6})
	snap = store.Get()
	require.Equal(t, 2, snap.Tool.SpindleCount, "config-sourced spindle count must not be overridden by MID 0101")
	require.Equal(t, SourceConfig, snap.Tool.SpindleCountSource)
}

func TestApplyAlarmClassifiesAndSetsErrorActive(t *testing.T) {
	p, store, bus := newProjector(t, fixedClassifier{severity: "critical"})

	fired := make(chan event.Event, 1)
	bus.Subscribe(event.AlarmEvent, func(e event.Event) { fired <- e })

	p.ApplyAlarm(protocol.Alarm{Number: "100", Text: "E-STOP"})

	snap := store.Get()
	require.True(t, snap.Controller.ErrorActive)
	require.Len(t, snap.Controller.Alarms, 1)
	require.Equal(t, "critical", snap.Controller.Alarms[0].Severity)

	e := <-fired
	require.Equal(t, "critical", e.AlarmSeverity)
}

func TestApplyAlarmWithoutClassifierIsUnclassified(t *testing.T) {
	p, store, _ := newProjector(t, nil)
	p.ApplyAlarm(protocol.Alarm{Number: "100", Text: "whatever"})
	snap := store.Get()
	require.Equal(t, "unclassified", snap.Controller.Alarms[0].Severity)
}

func TestApplyAlarmStatusClearsAlarmsOnlyWhenInactive(t *testing.T) {
	p, store, _ := newProjector(t, nil)
	store.Update(func(s *Snapshot) {
		s.Controller.Alarms = []AlarmRecord{{Number: "1", Text: "x"}}
		s.Controller.ErrorActive = true
	})

	p.ApplyAlarmStatus(protocol.AlarmStatus{Active: true})
	snap := store.Get()
	require.Len(t, snap.Controller.Alarms, 1, "active=true must not clear the alarm list")

	p.ApplyAlarmStatus(protocol.AlarmStatus{Active: false})
	snap = store.Get()
	require.Empty(t, snap.Controller.Alarms)
	require.False(t, snap.Controller.ErrorActive)
}

func TestBatchResetConfirmedAndFailedClearPendingDifferently(t *testing.T) {
	p, store, _ := newProjector(t, nil)
	store.Update(func(s *Snapshot) {
		s.Batch = Batch{Counter: 4, Size: 10, Complete: false}
	})

	p.MarkBatchResetPending()
	require.True(t, store.Get().Batch.PendingReset)

	p.ApplyBatchResetFailed()
	snap := store.Get()
	require.False(t, snap.Batch.PendingReset)
	require.Equal(t, 4, snap.Batch.Counter, "a failed reset must leave the counter untouched")

	p.MarkBatchResetPending()
	p.ApplyBatchResetConfirmed()
	snap = store.Get()
	require.False(t, snap.Batch.PendingReset)
	require.Equal(t, 0, snap.Batch.Counter)
}
