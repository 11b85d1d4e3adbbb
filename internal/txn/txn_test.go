package txn

import "testing"

func TestBeginAssignsMonotonicIDs(t *testing.T) {
	m := NewManager()
	id1, _ := m.Begin()
	id2, _ := m.Begin()
	if id2 <= id1 {
		t.Fatalf("expected monotonically increasing ids, got %d then %d", id1, id2)
	}
}

func TestCommitRollbackTransitions(t *testing.T) {
	m := NewManager()
	id1, _ := m.Begin()
	if err := m.Commit(id1); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if m.StatusOf(id1) != StatusCommitted {
		t.Fatalf("expected committed, got %v", m.StatusOf(id1))
	}

	id2, _ := m.Begin()
	if err := m.Rollback(id2); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if m.StatusOf(id2) != StatusAborted {
		t.Fatalf("expected aborted, got %v", m.StatusOf(id2))
	}
}

func TestCommitWithoutActiveTxnErrors(t *testing.T) {
	m := NewManager()
	if err := m.Commit(99); err != ErrNoActiveTxn {
		t.Fatalf("expected ErrNoActiveTxn, got %v", err)
	}
	id, _ := m.Begin()
	m.Commit(id)
	if err := m.Commit(id); err != ErrNoActiveTxn {
		t.Fatalf("expected double-commit to fail with ErrNoActiveTxn, got %v", err)
	}
}

// TestSnapshotVisibility exercises the snapshot-isolation visibility
// rule directly: a transaction sees its own writes, sees rows whose
// xmin committed strictly before its snapshot, and does not see rows
// whose xmax committed before its snapshot.
func TestSnapshotVisibility(t *testing.T) {
	m := NewManager()

	t1, _ := m.Begin()
	if err := m.Commit(t1); err != nil {
		t.Fatalf("Commit t1: %v", err)
	}

	t2, snap2 := m.Begin() // snapshot after t1 committed, before t3 begins

	t3, _ := m.Begin()

	// snap2 should see t1's writes (committed before snap2) but not t3's
	// (t3 is concurrent/active relative to snap2).
	if !snap2.Visible(uint64(t1), 0, t2) {
		t.Fatalf("expected row created by committed t1 to be visible to snap2")
	}
	if snap2.Visible(uint64(t3), 0, t2) {
		t.Fatalf("expected row created by still-active t3 to be invisible to snap2")
	}
	// Own writes are always visible.
	if !snap2.Visible(uint64(t2), 0, t2) {
		t.Fatalf("expected snap2's own txn's writes to be visible to itself")
	}

	if err := m.Commit(t3); err != nil {
		t.Fatalf("Commit t3: %v", err)
	}
	// snap2 was captured before t3 committed, so t3's write must remain
	// invisible even after t3 commits (snapshot isolation, not read
	// committed).
	if snap2.Visible(uint64(t3), 0, t2) {
		t.Fatalf("expected snap2 to not observe t3's commit, which happened after snap2 was taken")
	}
}

func TestSnapshotXmaxHidesRow(t *testing.T) {
	m := NewManager()
	creator, _ := m.Begin()
	m.Commit(creator)

	deleter, _ := m.Begin()
	m.Commit(deleter)

	reader, _ := m.Begin()
	if reader <= deleter {
		t.Fatalf("test setup: expected reader to begin after deleter committed")
	}
	snap := Snapshot{XMaxExclusive: reader, Active: map[ID]struct{}{}}
	if snap.Visible(uint64(creator), uint64(deleter), reader) {
		t.Fatalf("expected row deleted by a committed-before-snapshot txn to be hidden")
	}
}

func TestOldestActive(t *testing.T) {
	m := NewManager()
	if _, ok := m.OldestActive(); ok {
		t.Fatalf("expected no active transactions initially")
	}
	id1, _ := m.Begin()
	id2, _ := m.Begin()
	oldest, ok := m.OldestActive()
	if !ok || oldest != id1 {
		t.Fatalf("expected oldest active to be %d, got %d,%v", id1, oldest, ok)
	}
	m.Commit(id1)
	oldest, ok = m.OldestActive()
	if !ok || oldest != id2 {
		t.Fatalf("expected oldest active to be %d after %d committed, got %d,%v", id2, id1, oldest, ok)
	}
}
