package cycle

import (
	"sync"
	"time"

	"github.com/hj91/node-nutrunner-open-library/internal/event"
	"github.com/hj91/node-nutrunner-open-library/internal/protocol"
	"github.com/hj91/node-nutrunner-open-library/internal/state"
)

// Watchdog is how long the aggregator waits, after a cycle starts,
// for every expected spindle result to arrive before declaring the
// cycle incomplete.
const Watchdog = 8 * time.Second

// AckSender emits the mandatory MID 0062 acknowledgement for a
// processed result. It takes no argument and returns no reply to
// await — §4.F requires the ack unconditionally and there's no
// ack-of-the-ack, so this never goes through the command tracker.
type AckSender func() error

// Aggregator is the Cycle Aggregator (§4.F): it watches tool-running
// transitions, collects per-spindle results into the ephemeral
// Tightening table, and resolves each cycle exactly one way —
// complete or incomplete, never both — via the cycle fsm.
type Aggregator struct {
	store   *state.Store
	bus     *event.Bus
	sendAck AckSender

	mu       sync.Mutex
	fsm      *fsm
	watchdog *time.Timer
}

// New returns an aggregator over store, publishing to bus and invoking
// sendAck after every processed result.
func New(store *state.Store, bus *event.Bus, sendAck AckSender) *Aggregator {
	return &Aggregator{store: store, bus: bus, sendAck: sendAck, fsm: newFSM()}
}

// State exposes the fsm's current state for tests and diagnostics.
func (a *Aggregator) State() State {
	return a.fsm.state()
}

// Start begins collecting a new cycle. The connection manager calls
// this when the state projector reports tool.running's rising edge
// and no cycle is already in progress.
func (a *Aggregator) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.fsm.fire(EventStart); err != nil {
		return
	}

	now := time.Now()
	snap := a.store.Update(func(s *state.Snapshot) {
		s.Tightening.InProgress = true
		s.Tightening.CycleStartTS = now
		s.Tightening.PendingSpindles = make(map[int]state.SpindleResult)
		s.Tightening.WatchdogDeadline = now.Add(Watchdog)
	})
	a.bus.Publish(event.Event{Type: event.StateChanged, Snapshot: &snap})
	a.bus.Publish(event.Event{Type: event.TighteningCycleStarted, Timestamp: now})

	a.armWatchdog()
}

func (a *Aggregator) armWatchdog() {
	if a.watchdog != nil {
		a.watchdog.Stop()
	}
	a.watchdog = time.AfterFunc(Watchdog, a.fireWatchdog)
}

func (a *Aggregator) disarmWatchdog() {
	if a.watchdog != nil {
		a.watchdog.Stop()
		a.watchdog = nil
	}
}

// fireWatchdog runs on the timer's own goroutine once Watchdog elapses
// with spindle results still outstanding.
func (a *Aggregator) fireWatchdog() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.fsm.state() != StateRunning {
		return
	}

	var expected, received int
	var results []state.SpindleResult
	snap := a.store.Update(func(s *state.Snapshot) {
		expected = s.Tool.SpindleCount
		received = len(s.Tightening.PendingSpindles)
		results = collectResults(s.Tightening.PendingSpindles)
		s.Tightening.InProgress = false
		s.Tightening.PendingSpindles = make(map[int]state.SpindleResult)
	})

	if err := a.fsm.fire(EventWatchdogFired); err != nil {
		return
	}
	_ = a.fsm.fire(EventReset)

	a.bus.Publish(event.Event{Type: event.StateChanged, Snapshot: &snap})
	a.bus.Publish(event.Event{
		Type: event.TighteningIncomplete, Expected: expected, Received: received, Results: results,
	})
}

// ProcessResult runs §4.F's per-result steps for one decoded MID
// 0061/0065 payload, regardless of whether the cycle it belongs to
// ultimately completes or times out. ProcessResult sends the mandatory
// MID 0062 ACK itself via sendAck on the way out, so callers must not
// send another one.
func (a *Aggregator) ProcessResult(r protocol.Result) {
	defer func() {
		if err := a.sendAck(); err != nil {
			a.bus.Publish(event.Event{Type: event.Error, Err: err})
		}
	}()

	a.mu.Lock()
	defer a.mu.Unlock()

	sr := state.SpindleResult{
		Spindle:      r.Spindle,
		TighteningID: r.TighteningID,
		Torque:       r.Torque,
		Angle:        r.Angle,
		OK:           r.OK,
		VIN:          r.VIN,
		JobID:        r.JobID,
		ParamSetID:   r.ParamSetID,
		Timestamp:    r.Timestamp,
	}

	var vinLocked bool
	var spindleCountUpdated bool
	var newSpindleCount int
	var pendingCount, expectedCount int
	var complete bool

	snap := a.store.Update(func(s *state.Snapshot) {
		if !s.Product.VINLocked && sr.VIN != "" {
			s.Product.VIN = sr.VIN
			s.Product.VINLocked = true
			vinLocked = true
		}

		if s.Tool.SpindleCountSource == state.SourceDefault && sr.Spindle > s.Tool.SpindleCount {
			s.Tool.SpindleCount = sr.Spindle
			s.Tool.SpindleCountSource = state.SourceMID061
			spindleCountUpdated = true
			newSpindleCount = sr.Spindle
		}

		if s.Tightening.PendingSpindles == nil {
			s.Tightening.PendingSpindles = make(map[int]state.SpindleResult)
		}
		s.Tightening.PendingSpindles[sr.Spindle] = sr

		pendingCount = len(s.Tightening.PendingSpindles)
		expectedCount = s.Tool.SpindleCount
		complete = pendingCount >= expectedCount
	})

	a.bus.Publish(event.Event{Type: event.StateChanged, Snapshot: &snap})
	if vinLocked {
		a.bus.Publish(event.Event{Type: event.VinLocked, VIN: sr.VIN})
	}
	if spindleCountUpdated {
		a.bus.Publish(event.Event{
			Type: event.SpindleCountUpdated, SpindleCount: newSpindleCount, SpindleCountSource: string(state.SourceMID061),
		})
	}
	a.bus.Publish(event.Event{Type: event.SpindleResultEvent, Result: sr})

	if !complete {
		return
	}

	a.completeCycle()
}

// completeCycle runs once the pending-spindles table has caught up to
// the expected count. Caller holds a.mu.
func (a *Aggregator) completeCycle() {
	a.disarmWatchdog()

	var results []state.SpindleResult
	var overallOK bool
	var batchID, batchSize, batchCounter int
	var batchJustCompleted, batchWasActive bool
	var duration time.Duration

	snap := a.store.Update(func(s *state.Snapshot) {
		results = collectResults(s.Tightening.PendingSpindles)
		overallOK = true
		for _, r := range results {
			if !r.OK {
				overallOK = false
				break
			}
		}
		duration = time.Since(s.Tightening.CycleStartTS)

		s.Tightening.InProgress = false
		s.Tightening.PendingSpindles = make(map[int]state.SpindleResult)

		batchWasActive = s.Batch.Active
		if s.Batch.Active && !s.Batch.Complete {
			s.Batch.Counter++
			if s.Batch.Counter >= s.Batch.Size {
				s.Batch.Complete = true
				s.Batch.Active = false
				batchJustCompleted = true
			}
		}
		batchID, batchSize, batchCounter = s.Batch.BatchID, s.Batch.Size, s.Batch.Counter
	})

	if err := a.fsm.fire(EventAllSpindlesIn); err == nil {
		_ = a.fsm.fire(EventReset)
	}

	a.bus.Publish(event.Event{Type: event.StateChanged, Snapshot: &snap})
	a.bus.Publish(event.Event{
		Type: event.TighteningCycleCompleted, Results: results, OverallOK: overallOK, Duration: duration,
	})

	if batchWasActive {
		a.bus.Publish(event.Event{Type: event.BatchProgress, BatchCounter: batchCounter, BatchSize: batchSize})
		if batchJustCompleted {
			a.bus.Publish(event.Event{Type: event.BatchCompleted, BatchID: batchID, BatchSize: batchSize})
		}
	}
}

func collectResults(m map[int]state.SpindleResult) []state.SpindleResult {
	out := make([]state.SpindleResult, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
