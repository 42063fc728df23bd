package cycle

import (
	"fmt"
	"sync"
)

// State names one of the tightening cycle's lifecycle states.
type State string

// Event names a transition trigger for the cycle state machine.
type Event string

const (
	StateIdle       State = "IDLE"
	StateRunning    State = "RUNNING"
	StateCompleted  State = "COMPLETED"
	StateIncomplete State = "INCOMPLETE"
)

const (
	EventStart         Event = "START"
	EventAllSpindlesIn Event = "ALL_SPINDLES_IN"
	EventWatchdogFired Event = "WATCHDOG_FIRED"
	EventReset         Event = "RESET"
)

// fsm is a small hand-rolled state machine for the tightening cycle's
// lifecycle: a transition table plus per-state entry callbacks, guarded
// by a mutex so fire is safe to call from the watchdog timer's own
// goroutine as well as from the frame-processing path.
type fsm struct {
	current     State
	mu          sync.Mutex
	transitions map[State]map[Event]State
	callbacks   map[State]func()
}

func newFSM() *fsm {
	f := &fsm{
		current:     StateIdle,
		transitions: make(map[State]map[Event]State),
		callbacks:   make(map[State]func()),
	}
	f.addTransition(StateIdle, EventStart, StateRunning)
	f.addTransition(StateRunning, EventAllSpindlesIn, StateCompleted)
	f.addTransition(StateRunning, EventWatchdogFired, StateIncomplete)
	f.addTransition(StateCompleted, EventReset, StateIdle)
	f.addTransition(StateIncomplete, EventReset, StateIdle)
	return f
}

func (f *fsm) addTransition(from State, ev Event, to State) {
	if _, ok := f.transitions[from]; !ok {
		f.transitions[from] = make(map[Event]State)
	}
	f.transitions[from][ev] = to
}

// onEnter registers a callback run synchronously (under the FSM's lock)
// whenever state is entered. Callbacks must not call fire.
func (f *fsm) onEnter(state State, cb func()) {
	f.callbacks[state] = cb
}

func (f *fsm) fire(ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next, ok := f.transitions[f.current][ev]
	if !ok {
		return fmt.Errorf("cycle: invalid transition: cannot fire %s from %s", ev, f.current)
	}
	f.current = next
	if cb, ok := f.callbacks[next]; ok {
		cb()
	}
	return nil
}

func (f *fsm) state() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}
