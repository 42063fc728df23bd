package state

import "sync"

// Store guards the single live Snapshot behind a mutex. Every mutation
// in the system — projections, cycle aggregation, command tracking —
// goes through Update, which matches §5's single-logical-executor
// model: callers never hold the lock across a blocking operation, they
// just read, mutate, and return.
type Store struct {
	mu       sync.Mutex
	snapshot Snapshot
}

// NewStore returns a Store seeded with the initial snapshot.
func NewStore() *Store {
	return &Store{snapshot: New()}
}

// Get returns a deep-copied snapshot safe for the caller to retain and
// inspect; it never shares mutable structure with the live state.
func (st *Store) Get() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snapshot.Clone()
}

// Update runs fn against the live snapshot under the lock and returns
// a deep-copied snapshot of the result, for callers (the projector,
// mainly) that need to emit a stateChanged event carrying the
// post-mutation state without a second round trip through Get.
func (st *Store) Update(fn func(*Snapshot)) Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(&st.snapshot)
	return st.snapshot.Clone()
}
