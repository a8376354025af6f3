package lockmgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopherdb/gopherdb/internal/txn"
)

func newTestManagers() (*txn.Manager, *LockManager) {
	tm := txn.NewManager()
	return tm, NewLockManager(tm)
}

func TestLockManager_SharedLocks_AreConcurrentlyHeld(t *testing.T) {
	tm, lm := newTestManagers()
	rid := txn.RID{PageID: 1, SlotNum: 0}

	t1 := tm.Begin(txn.RepeatableRead)
	t2 := tm.Begin(txn.RepeatableRead)

	require.NoError(t, lm.LockShared(t1, rid))
	require.NoError(t, lm.LockShared(t2, rid))

	assert.True(t, t1.State() == txn.StateGrowing)
	assert.True(t, t2.State() == txn.StateGrowing)
}

func TestLockManager_ExclusiveBlocksUntilReleased(t *testing.T) {
	tm, lm := newTestManagers()
	rid := txn.RID{PageID: 1, SlotNum: 0}

	t1 := tm.Begin(txn.RepeatableRead)
	t2 := tm.Begin(txn.RepeatableRead)

	require.NoError(t, lm.LockExclusive(t1, rid))

	granted := make(chan struct{})
	go func() {
		require.NoError(t, lm.LockExclusive(t2, rid))
		close(granted)
	}()

	select {
	case <-granted:
		t.Fatal("t2 should not be granted while t1 holds X")
	case <-time.After(30 * time.Millisecond):
	}

	require.NoError(t, lm.Unlock(t1, rid))

	select {
	case <-granted:
	case <-time.After(time.Second):
		t.Fatal("t2 was never granted after t1 released")
	}
}

// TestLockManager_WoundWait_OlderAbortsYounger reproduces spec.md §8
// scenario 5: a younger transaction holds X on R; an older transaction
// requests X on R and wound-waits the younger holder — the younger
// transaction is aborted and the older one is granted immediately.
func TestLockManager_WoundWait_OlderAbortsYounger(t *testing.T) {
	tm, lm := newTestManagers()
	rid := txn.RID{PageID: 7, SlotNum: 0}

	// Manager.Begin only ever increases ids, so beginning tOld first gives
	// it the lower (older) id — matching the scenario's "older transaction
	// wounds younger holder" shape.
	tOld := tm.Begin(txn.RepeatableRead)
	tYoung := tm.Begin(txn.RepeatableRead)

	require.NoError(t, lm.LockExclusive(tYoung, rid))

	err := lm.LockExclusive(tOld, rid)
	require.NoError(t, err, "older transaction must be granted after wounding the younger holder")

	assert.Equal(t, txn.StateAborted, tYoung.State(), "younger holder must be wounded")
}

// TestLockManager_ExclusiveWoundsEveryYoungerRequest reproduces the
// non-contiguous wounding case addExclusiveLock must still handle: a
// younger granted S (t6) sits ahead of an older granted S (t3) in the
// queue, which in turn sits ahead of another younger granted S (t8).
// Requesting X as t5 must wound both t6 and t8 even though t3, in
// between them, is not younger — stopping at the first non-younger entry
// would leave t6 granted and block t5 behind a younger transaction.
func TestLockManager_ExclusiveWoundsEveryYoungerRequest(t *testing.T) {
	tm, lm := newTestManagers()
	rid := txn.RID{PageID: 6, SlotNum: 0}

	// Begun in age order, so ids ascend t3 < t5 < t6 < t8.
	t3 := tm.Begin(txn.RepeatableRead)
	t5 := tm.Begin(txn.RepeatableRead)
	t6 := tm.Begin(txn.RepeatableRead)
	t8 := tm.Begin(txn.RepeatableRead)

	require.NoError(t, lm.LockShared(t6, rid))
	require.NoError(t, lm.LockShared(t3, rid))
	require.NoError(t, lm.LockShared(t8, rid))

	// t5's X still can't be granted while the older t3 holds S, so drive
	// the request in the background and check the wounding pass's
	// immediate effect rather than waiting for a grant.
	granted := make(chan error, 1)
	go func() { granted <- lm.LockExclusive(t5, rid) }()

	require.Eventually(t, func() bool {
		return t6.State() == txn.StateAborted && t8.State() == txn.StateAborted
	}, time.Second, time.Millisecond, "t6 and t8 must both be wounded despite the older t3 sitting between them in the queue")
	assert.NotEqual(t, txn.StateAborted, t3.State(), "older holder t3 must not be wounded")

	require.NoError(t, lm.Unlock(t3, rid))
	select {
	case err := <-granted:
		require.NoError(t, err, "t5 must be granted once the older t3 releases")
	case <-time.After(time.Second):
		t.Fatal("t5 was never granted after t3 released")
	}
}

// TestLockManager_UpgradeConflict covers spec.md §8 scenario 6's conflict
// path: T1 and T2 both hold S on R; with an upgrade by T1 marked as in
// progress on R, T2's LockUpgrade fails immediately with
// AbortUpgradeConflict.
func TestLockManager_UpgradeConflict(t *testing.T) {
	tm, lm := newTestManagers()
	rid := txn.RID{PageID: 3, SlotNum: 0}

	t1 := tm.Begin(txn.RepeatableRead)
	t2 := tm.Begin(txn.RepeatableRead)

	require.NoError(t, lm.LockShared(t1, rid))
	require.NoError(t, lm.LockShared(t2, rid))

	// Manually mark an upgrade in progress to exercise the immediate-fail
	// path without racing the real upgrade's blocking wait.
	lm.mu.Lock()
	q := lm.queueFor(rid)
	q.upgrading = t1.ID
	lm.mu.Unlock()

	err := lm.LockUpgrade(t2, rid)
	var abortErr *TransactionAbortedError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, AbortUpgradeConflict, abortErr.Reason)

	lm.mu.Lock()
	q.upgrading = invalidTxnID
	lm.mu.Unlock()
}

func TestLockManager_Upgrade_WoundsYoungerSharedHolder(t *testing.T) {
	tm, lm := newTestManagers()
	rid := txn.RID{PageID: 4, SlotNum: 0}

	t1 := tm.Begin(txn.RepeatableRead) // id 1
	t2 := tm.Begin(txn.RepeatableRead) // id 2, younger

	require.NoError(t, lm.LockShared(t1, rid))
	require.NoError(t, lm.LockShared(t2, rid))

	require.NoError(t, lm.LockUpgrade(t1, rid))

	assert.Equal(t, txn.StateAborted, t2.State(), "younger S holder must be wounded by the upgrade")
}

func TestLockManager_LockOnShrinking_Aborts(t *testing.T) {
	tm, lm := newTestManagers()
	rid := txn.RID{PageID: 9, SlotNum: 0}

	t1 := tm.Begin(txn.RepeatableRead)
	require.NoError(t, lm.LockShared(t1, rid))
	require.NoError(t, lm.Unlock(t1, rid))
	assert.Equal(t, txn.StateShrinking, t1.State())

	err := lm.LockShared(t1, txn.RID{PageID: 10, SlotNum: 0})
	var abortErr *TransactionAbortedError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, AbortLockOnShrinking, abortErr.Reason)
}

func TestLockManager_LockSharedOnReadUncommitted_Aborts(t *testing.T) {
	tm, lm := newTestManagers()
	t1 := tm.Begin(txn.ReadUncommitted)

	err := lm.LockShared(t1, txn.RID{PageID: 11, SlotNum: 0})
	var abortErr *TransactionAbortedError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, AbortLockSharedOnReadUncommitted, abortErr.Reason)
}
