// Package command implements the Command Tracker (§4.C): assigns
// sequence numbers to outbound commands expecting an ACK, enforces the
// one-pending-per-MID rule, resolves them against inbound MID 0005/0004,
// and times them out after a fixed deadline.
package command

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"github.com/hj91/node-nutrunner-open-library/internal/event"
	"github.com/hj91/node-nutrunner-open-library/internal/state"
)

// Timeout is the fixed per-command deadline (§5).
const Timeout = 5 * time.Second

// Outcome is delivered on a pending command's channel once it resolves,
// one way or another.
type Outcome struct {
	Success   bool
	ErrorCode int
	Message   string
	Aborted   bool
	TimedOut  bool
}

type entry struct {
	id       uint64
	mid      string
	traceID  string
	issuedAt time.Time
	deadline time.Time
	result   chan Outcome
	heapItem *deadlineItem
}

// Tracker owns the pending-commands table. It is not safe for
// concurrent use from more than one goroutine beyond its own internal
// locking — callers may call it from multiple goroutines, but all
// mutation happens under its mutex, consistent with §5's single
// logical executor per connection.
type Tracker struct {
	mu              sync.Mutex
	nextID          uint64
	pending         map[uint64]*entry
	byMID           map[string][]uint64 // FIFO order per MID
	deadlines       deadlineHeap
	allowDuplicates bool
	bus             *event.Bus
	store           *state.Store
}

// New returns an empty tracker. allowDuplicates disables the
// one-pending-per-MID rule when the client is configured for it.
// store's PendingCommands table is kept in lockstep with the
// tracker's own bookkeeping, the same way state.Projector mirrors
// every inbound MID's effect onto the snapshot.
func New(bus *event.Bus, store *state.Store, allowDuplicates bool) *Tracker {
	return &Tracker{
		pending:         make(map[uint64]*entry),
		byMID:           make(map[string][]uint64),
		allowDuplicates: allowDuplicates,
		bus:             bus,
		store:           store,
	}
}

// Track registers a new pending command for mid and returns its id and
// a channel that receives exactly one Outcome. It fails fast — no
// entry created, caller writes no bytes — if mid already has a pending
// entry and duplicates are not allowed.
func (t *Tracker) Track(mid, traceID string) (uint64, <-chan Outcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.allowDuplicates && len(t.byMID[mid]) > 0 {
		return 0, nil, fmt.Errorf("command: mid %s already has a pending command", mid)
	}

	t.nextID++
	id := t.nextID
	now := time.Now()
	e := &entry{
		id:       id,
		mid:      mid,
		traceID:  traceID,
		issuedAt: now,
		deadline: now.Add(Timeout),
		result:   make(chan Outcome, 1),
	}
	t.pending[id] = e
	t.byMID[mid] = append(t.byMID[mid], id)
	item := &deadlineItem{id: id, deadline: e.deadline}
	e.heapItem = item
	heap.Push(&t.deadlines, item)

	t.store.Update(func(s *state.Snapshot) {
		s.PendingCommands[id] = state.PendingCommand{
			CommandID: id,
			MID:       mid,
			TraceID:   traceID,
			IssuedAt:  now,
			Deadline:  e.deadline,
		}
	})

	return id, e.result, nil
}

// Resolve completes the first pending entry for mid as a success, per
// inbound MID 0005 (accepted_mid == mid). It returns false if nothing
// was pending for that MID.
func (t *Tracker) Resolve(mid string) bool {
	t.mu.Lock()
	e := t.popFirst(mid)
	t.mu.Unlock()
	if e == nil {
		return false
	}
	e.result <- Outcome{Success: true}
	t.bus.Publish(event.Event{Type: event.CommandSuccess, MID: mid, CommandID: e.id})
	t.bus.Publish(event.Event{Type: event.CommandAccepted, MID: mid})
	return true
}

// Fail completes the first pending entry for failedMID as a failure,
// per inbound MID 0004. It returns false if nothing was pending.
func (t *Tracker) Fail(failedMID string, errorCode int, message string) bool {
	t.mu.Lock()
	e := t.popFirst(failedMID)
	t.mu.Unlock()
	if e == nil {
		return false
	}
	e.result <- Outcome{Success: false, ErrorCode: errorCode, Message: message}
	t.bus.Publish(event.Event{Type: event.CommandFailed, MID: failedMID, CommandID: e.id, ErrorCode: errorCode, Message: message})
	t.bus.Publish(event.Event{Type: event.CommandError, MID: failedMID, ErrorCode: errorCode, Message: message})
	return true
}

// popFirst removes and returns the FIFO-first pending entry for mid,
// unlinking it from every index. Caller holds t.mu.
func (t *Tracker) popFirst(mid string) *entry {
	ids := t.byMID[mid]
	if len(ids) == 0 {
		return nil
	}
	id := ids[0]
	t.byMID[mid] = ids[1:]
	if len(t.byMID[mid]) == 0 {
		delete(t.byMID, mid)
	}
	e := t.pending[id]
	delete(t.pending, id)
	if e != nil && e.heapItem.index >= 0 {
		heap.Remove(&t.deadlines, e.heapItem.index)
	}
	if e != nil {
		t.store.Update(func(s *state.Snapshot) {
			delete(s.PendingCommands, e.id)
		})
	}
	return e
}

// Sweep pops every entry whose deadline has passed, emits
// commandTimeout for each, and removes it from the table. It should be
// called periodically (the connection manager's heartbeat ticker
// doubles as the sweep trigger).
func (t *Tracker) Sweep(now time.Time) {
	t.mu.Lock()
	var due []*entry
	for t.deadlines.Len() > 0 && !t.deadlines[0].deadline.After(now) {
		item := heap.Pop(&t.deadlines).(*deadlineItem)
		e, ok := t.pending[item.id]
		if !ok {
			continue
		}
		delete(t.pending, item.id)
		ids := t.byMID[e.mid]
		for i, id := range ids {
			if id == e.id {
				t.byMID[e.mid] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		if len(t.byMID[e.mid]) == 0 {
			delete(t.byMID, e.mid)
		}
		due = append(due, e)
	}
	t.mu.Unlock()

	if len(due) > 0 {
		t.store.Update(func(s *state.Snapshot) {
			for _, e := range due {
				delete(s.PendingCommands, e.id)
			}
		})
	}

	for _, e := range due {
		e.result <- Outcome{TimedOut: true}
		t.bus.Publish(event.Event{Type: event.CommandTimeout, MID: e.mid, CommandID: e.id})
	}
}

// AbortAll fails every pending command as aborted and clears the
// table. Called on disconnect.
func (t *Tracker) AbortAll() {
	t.mu.Lock()
	all := make([]*entry, 0, len(t.pending))
	for _, e := range t.pending {
		all = append(all, e)
	}
	t.pending = make(map[uint64]*entry)
	t.byMID = make(map[string][]uint64)
	t.deadlines = nil
	t.mu.Unlock()

	if len(all) > 0 {
		t.store.Update(func(s *state.Snapshot) {
			for _, e := range all {
				delete(s.PendingCommands, e.id)
			}
		})
	}

	for _, e := range all {
		e.result <- Outcome{Aborted: true}
		t.bus.Publish(event.Event{Type: event.CommandAborted, MID: e.mid, CommandID: e.id})
	}
}
