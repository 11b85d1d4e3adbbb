// Package txn implements the transaction manager: monotonic transaction
// ids, an active/committed/aborted status table, snapshot capture at
// BEGIN, and the MVCC visibility rule that decides which row versions a
// snapshot can see. It does not itself write pages — it hands the
// executor a Snapshot to check row versions against and a TxnID to
// stamp into new versions.
package txn

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Status is a transaction's lifecycle state.
type Status uint8

const (
	StatusActive Status = iota
	StatusCommitted
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCommitted:
		return "committed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ID is a monotonically increasing transaction identifier, also used as
// the xmin/xmax stamped into row versions.
type ID uint64

// Snapshot fixes the set of transactions a reader should treat as
// not-yet-committed: every id >= XMaxExclusive, plus every id in Active,
// regardless of that transaction's eventual outcome.
type Snapshot struct {
	XMaxExclusive ID
	Active        map[ID]struct{}
}

// Visible reports whether a row version with the given (xmin, xmax)
// bounds is visible under this snapshot to transaction self: xmin is
// visible if it is self's own write or it committed before the
// snapshot was taken; xmax hides the row under the symmetric rule (and
// a zero xmax never hides anything).
func (s Snapshot) Visible(xmin, xmax uint64, self ID) bool {
	if ID(xmin) != self && !s.committedBefore(ID(xmin)) {
		return false
	}
	if xmax == 0 {
		return true
	}
	if ID(xmax) == self {
		return false
	}
	return !s.committedBefore(ID(xmax))
}

func (s Snapshot) committedBefore(id ID) bool {
	if id >= s.XMaxExclusive {
		return false
	}
	if _, active := s.Active[id]; active {
		return false
	}
	return true
}

// ErrNoActiveTxn is returned by Commit/Rollback when called with
// an id that is not currently active (an orphan COMMIT/ROLLBACK).
var ErrNoActiveTxn = fmt.Errorf("txn: no active transaction with this id")

// Manager tracks every transaction's status and issues new ids and
// snapshots. Safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	nextID    ID
	status    map[ID]Status
	active    map[ID]struct{}
	InstanceID uuid.UUID
}

// NewManager returns a Manager starting transaction ids at 1 (0 is
// reserved to mean "never written" in row version headers). InstanceID
// is a fresh random UUID for every Manager, so each process start gets a
// new one.
func NewManager() *Manager {
	return &Manager{
		nextID:     1,
		status:     make(map[ID]Status),
		active:     make(map[ID]struct{}),
		InstanceID: uuid.New(),
	}
}

// Begin starts a new transaction, returning its id and a snapshot of the
// database state at this instant. Nested BEGIN (calling Begin again
// before Commit/Rollback on the caller's current transaction) is the
// caller's responsibility to reject — the manager itself places no limit
// on concurrently active transactions.
func (m *Manager) Begin() (ID, Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.status[id] = StatusActive
	m.active[id] = struct{}{}

	snap := Snapshot{XMaxExclusive: id, Active: make(map[ID]struct{}, len(m.active))}
	for a := range m.active {
		snap.Active[a] = struct{}{}
	}
	for a, st := range m.status {
		if st == StatusAborted {
			snap.Active[a] = struct{}{} // an aborted id never counts as committed
		}
	}
	return id, snap
}

// Commit marks id committed and removes it from the active set.
func (m *Manager) Commit(id ID) error {
	return m.finish(id, StatusCommitted)
}

// Rollback marks id aborted and removes it from the active set.
func (m *Manager) Rollback(id ID) error {
	return m.finish(id, StatusAborted)
}

func (m *Manager) finish(id ID, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[id]; !ok {
		return ErrNoActiveTxn
	}
	delete(m.active, id)
	m.status[id] = status
	return nil
}

// StatusOf reports id's current lifecycle state.
func (m *Manager) StatusOf(id ID) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status[id]
}

// IsActive reports whether id currently names an open transaction.
func (m *Manager) IsActive(id ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[id]
	return ok
}

// OldestActive returns the smallest currently-active transaction id, and
// false if no transaction is active. VACUUM uses this to avoid reclaiming
// a row version that an older snapshot might still need to see.
func (m *Manager) OldestActive() (ID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.active) == 0 {
		return 0, false
	}
	oldest := ID(0)
	first := true
	for id := range m.active {
		if first || id < oldest {
			oldest = id
			first = false
		}
	}
	return oldest, true
}
