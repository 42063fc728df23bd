package dashboard

import (
	"sync"

	"github.com/hj91/node-nutrunner-open-library/internal/event"
	"github.com/hj91/node-nutrunner-open-library/internal/state"
)

// View is the trimmed, JSON-friendly projection of a Snapshot the
// dashboard broadcasts. It deliberately mirrors only the fields a
// viewer needs, not the full internal Snapshot shape.
type View struct {
	Connected       bool   `json:"connected"`
	LinkReady       bool   `json:"link_ready"`
	ControllerReady bool   `json:"controller_ready"`
	ToolEnabled     bool   `json:"tool_enabled"`
	ToolRunning     bool   `json:"tool_running"`
	AlarmActive     bool   `json:"alarm_active"`
	AlarmCount      int    `json:"alarm_count"`
	JobID           int    `json:"job_id"`
	ParamSetID      int    `json:"param_set_id"`
	VIN             string `json:"vin"`
	BatchID         int    `json:"batch_id"`
	BatchCounter    int    `json:"batch_counter"`
	BatchSize       int    `json:"batch_size"`
	SpindleCount    int    `json:"spindle_count"`
	CycleInProgress bool   `json:"cycle_in_progress"`
}

func viewOf(s state.Snapshot) View {
	return View{
		Connected:       s.Connection.Connected,
		LinkReady:       s.Connection.LinkReady,
		ControllerReady: s.Controller.Ready,
		ToolEnabled:     s.Tool.Enabled,
		ToolRunning:     s.Tool.Running,
		AlarmActive:     s.Controller.ErrorActive,
		AlarmCount:      len(s.Controller.Alarms),
		JobID:           s.Job.JobID,
		ParamSetID:      s.Job.ParamSetID,
		VIN:             s.Product.VIN,
		BatchID:         s.Batch.BatchID,
		BatchCounter:    s.Batch.Counter,
		BatchSize:       s.Batch.Size,
		SpindleCount:    s.Tool.SpindleCount,
		CycleInProgress: s.Tightening.InProgress,
	}
}

// Tracker keeps the latest View and rebroadcasts it through a Hub
// every time the store changes.
type Tracker struct {
	mu   sync.RWMutex
	view View
	hub  *Hub
}

// NewTracker returns a tracker that rebroadcasts through hub.
func NewTracker(hub *Hub) *Tracker {
	return &Tracker{hub: hub}
}

// Subscribe wires the tracker to stateChanged events on bus.
func (t *Tracker) Subscribe(bus *event.Bus) {
	bus.Subscribe(event.StateChanged, func(e event.Event) {
		snap, ok := e.Snapshot.(*state.Snapshot)
		if !ok || snap == nil {
			return
		}
		t.update(*snap)
	})
}

func (t *Tracker) update(s state.Snapshot) {
	v := viewOf(s)
	t.mu.Lock()
	t.view = v
	t.mu.Unlock()
	t.hub.Broadcast(v)
}

// Snapshot returns the latest view, for serving to a newly connected
// viewer before the next broadcast arrives.
func (t *Tracker) Snapshot() View {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.view
}
