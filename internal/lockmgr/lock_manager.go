// Package lockmgr implements row-level shared/exclusive locking with
// wound-wait deadlock prevention and two-phase-locking state transitions
// on the owning transaction (spec.md §4.5).
package lockmgr

import (
	"sync"

	"github.com/gopherdb/gopherdb/internal/txn"
)

// LockMode is the granularity of a single lock request.
type LockMode int

const (
	Shared LockMode = iota
	Exclusive
)

// invalidTxnID is the sentinel for "no one" in writing/upgrading, matching
// the original's INVALID_TXN_ID. Transaction ids from txn.Manager start
// at 1, so 0 is never a live id.
const invalidTxnID = 0

// lockRequest is one entry in a row's wait/grant queue.
type lockRequest struct {
	txnID   uint64
	mode    LockMode
	granted bool
}

// lockQueue is the per-row request queue (spec.md §3/§4.5): an ordered
// list of requests, a live share count, the holding writer (if any), and
// a pending-upgrade marker, plus the condition variable waiters block on.
// cond.L is always the owning LockManager's mutex — every queue shares
// the single latch spec.md §5 calls for ("Lock manager latch: a single
// mutex guarding every queue").
type lockQueue struct {
	requests   []*lockRequest
	shareCount int
	writing    uint64
	upgrading  uint64
	cond       *sync.Cond
}

func newLockQueue(l sync.Locker) *lockQueue {
	return &lockQueue{writing: invalidTxnID, upgrading: invalidTxnID, cond: sync.NewCond(l)}
}

// LockManager grants and tracks row-level S/X locks across all rows.
// Grounded line-for-line on original_source/src/concurrency/
// lock_manager.cpp's AddShareLock/AddExclusiveLock/AddUpgradeLock/
// GrantLock/LockShared/LockExclusive/LockUpgrade/Unlock; the Go shape
// (struct + mutex + map of queues) follows the state-machine idiom of
// mnohosten-laura-db/pkg/mvcc/transaction.go's TransactionManager, though
// that file implements MVCC rather than 2PL.
type LockManager struct {
	mu     sync.Mutex
	txnMgr *txn.Manager
	table  map[txn.RID]*lockQueue
}

func NewLockManager(txnMgr *txn.Manager) *LockManager {
	return &LockManager{txnMgr: txnMgr, table: make(map[txn.RID]*lockQueue)}
}

func (lm *LockManager) queueFor(rid txn.RID) *lockQueue {
	q, ok := lm.table[rid]
	if !ok {
		q = newLockQueue(&lm.mu)
		lm.table[rid] = q
	}
	return q
}

// preconditionsLocked runs the three transaction-state prechecks common
// to all three acquire methods (spec.md §4.5). Caller holds lm.mu.
func (lm *LockManager) preconditionsLocked(t *txn.Transaction, forShared bool) error {
	if t.State() == txn.StateAborted {
		return abortError(t.ID, AbortDeadlock)
	}
	if forShared && t.Isolation == txn.ReadUncommitted {
		t.SetState(txn.StateAborted)
		return abortError(t.ID, AbortLockSharedOnReadUncommitted)
	}
	if t.State() == txn.StateShrinking {
		t.SetState(txn.StateAborted)
		return abortError(t.ID, AbortLockOnShrinking)
	}
	return nil
}

// woundLocked aborts the transaction owning r, undoing its effect on the
// queue's counters if it was granted, and clears its lock set entry.
func (lm *LockManager) woundLocked(q *lockQueue, r *lockRequest, rid txn.RID) {
	victim, ok := lm.txnMgr.GetTransaction(r.txnID)
	if !ok {
		return
	}
	if r.granted {
		if r.mode == Shared {
			q.shareCount--
			victim.RemoveSharedLock(rid)
		} else {
			q.writing = invalidTxnID
			victim.RemoveExclusiveLock(rid)
		}
	}
	victim.SetState(txn.StateAborted)
}

// addShareLock implements spec.md §4.5's LockShared wounding rule: walk
// the queue from the tail, abort every granted X held by a younger
// transaction, and stop at the first S. Pending X requests and X requests
// of older transactions are passed over, not wounded.
func (lm *LockManager) addShareLock(q *lockQueue, req *lockRequest, rid txn.RID) *lockRequest {
	snapshot := append([]*lockRequest(nil), q.requests...)
	aborted := false
	for i := len(snapshot) - 1; i >= 0; i-- {
		r := snapshot[i]
		if r.mode == Shared {
			break
		}
		if r.granted && r.txnID > req.txnID {
			lm.woundLocked(q, r, rid)
			snapshot[i] = nil
			aborted = true
		}
	}
	kept := make([]*lockRequest, 0, len(snapshot)+1)
	for _, r := range snapshot {
		if r != nil {
			kept = append(kept, r)
		}
	}
	kept = append(kept, req)
	q.requests = kept

	if lm.grantLocked(q) || aborted {
		q.cond.Broadcast()
	}
	return req
}

// addExclusiveLock implements spec.md §4.5's LockExclusive wounding rule:
// walk the *entire* queue aborting every younger request, granted or
// pending, S or X, since an X is incompatible with everything. Unlike
// addShareLock, there's no stop-at-first-S short-circuit here — an older
// request further back in the queue than a younger one is a legal
// ordering (e.g. an older X can arrive after a younger S already granted),
// so stopping at the first non-younger entry would leave a younger
// granted request un-wounded and block this request behind it.
func (lm *LockManager) addExclusiveLock(q *lockQueue, req *lockRequest, rid txn.RID) *lockRequest {
	snapshot := append([]*lockRequest(nil), q.requests...)
	aborted := false
	for i := len(snapshot) - 1; i >= 0; i-- {
		r := snapshot[i]
		if r.txnID > req.txnID {
			lm.woundLocked(q, r, rid)
			snapshot[i] = nil
			aborted = true
		}
	}
	kept := make([]*lockRequest, 0, len(snapshot)+1)
	for _, r := range snapshot {
		if r != nil {
			kept = append(kept, r)
		}
	}
	kept = append(kept, req)
	q.requests = kept

	if lm.grantLocked(q) || aborted {
		q.cond.Broadcast()
	}
	return req
}

// addUpgradeLock implements spec.md §4.5's LockUpgrade mechanics: drop
// the caller's existing granted S, insert the new X request right at the
// boundary between the (now-shrunk) granted-S prefix and the waiting
// suffix, and abort every younger granted S left in that prefix — they
// cannot coexist with a future X.
func (lm *LockManager) addUpgradeLock(q *lockQueue, req *lockRequest, rid txn.RID) *lockRequest {
	for i, r := range q.requests {
		if r.txnID == req.txnID {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			q.shareCount--
			break
		}
	}

	boundary := q.shareCount
	if boundary > len(q.requests) {
		boundary = len(q.requests)
	}
	aborted := false
	kept := make([]*lockRequest, 0, len(q.requests)+1)
	for i := 0; i < boundary; i++ {
		r := q.requests[i]
		if r.txnID > req.txnID {
			lm.woundLocked(q, r, rid)
			aborted = true
			continue
		}
		kept = append(kept, r)
	}
	kept = append(kept, req)
	kept = append(kept, q.requests[boundary:]...)
	q.requests = kept

	if lm.grantLocked(q) || aborted {
		q.cond.Broadcast()
	}
	return req
}

// grantLocked scans from the head, granting every ungranted request
// compatible with the currently held set, stopping at the first
// incompatible one (spec.md §4.5). Reports whether anything changed.
func (lm *LockManager) grantLocked(q *lockQueue) bool {
	changed := false
	for _, r := range q.requests {
		if r.granted {
			continue
		}
		if q.writing == invalidTxnID && q.shareCount == 0 {
			r.granted = true
			changed = true
			if r.mode == Shared {
				q.shareCount = 1
			} else {
				q.writing = r.txnID
			}
			continue
		}
		if q.shareCount > 0 {
			if r.mode == Shared {
				r.granted = true
				changed = true
				q.shareCount++
				continue
			}
			break
		}
		// q.writing != invalidTxnID
		break
	}
	return changed
}

// LockShared acquires a shared lock on rid for t, blocking until granted
// or the transaction is wound.
func (lm *LockManager) LockShared(t *txn.Transaction, rid txn.RID) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if err := lm.preconditionsLocked(t, true); err != nil {
		return err
	}

	q := lm.queueFor(rid)
	req := &lockRequest{txnID: t.ID, mode: Shared}
	cur := lm.addShareLock(q, req, rid)

	for t.State() != txn.StateAborted && !cur.granted {
		q.cond.Wait()
	}
	if t.State() == txn.StateAborted {
		return abortError(t.ID, AbortDeadlock)
	}
	t.AddSharedLock(rid)
	return nil
}

// LockExclusive acquires an exclusive lock on rid for t, blocking until
// granted or the transaction is wound.
func (lm *LockManager) LockExclusive(t *txn.Transaction, rid txn.RID) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if err := lm.preconditionsLocked(t, false); err != nil {
		return err
	}

	q := lm.queueFor(rid)
	req := &lockRequest{txnID: t.ID, mode: Exclusive}
	cur := lm.addExclusiveLock(q, req, rid)

	for t.State() != txn.StateAborted && !cur.granted {
		q.cond.Wait()
	}
	if t.State() == txn.StateAborted {
		return abortError(t.ID, AbortDeadlock)
	}
	t.AddExclusiveLock(rid)
	return nil
}

// LockUpgrade converts t's existing shared lock on rid into an exclusive
// one. Fails immediately with AbortUpgradeConflict if another upgrade is
// already pending on this row.
func (lm *LockManager) LockUpgrade(t *txn.Transaction, rid txn.RID) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if err := lm.preconditionsLocked(t, false); err != nil {
		return err
	}

	q := lm.queueFor(rid)
	if q.upgrading != invalidTxnID {
		return abortError(t.ID, AbortUpgradeConflict)
	}

	t.RemoveSharedLock(rid)
	q.upgrading = t.ID
	req := &lockRequest{txnID: t.ID, mode: Exclusive}
	cur := lm.addUpgradeLock(q, req, rid)

	for t.State() != txn.StateAborted && !cur.granted {
		q.cond.Wait()
	}
	if t.State() == txn.StateAborted {
		q.upgrading = invalidTxnID
		return abortError(t.ID, AbortDeadlock)
	}
	q.upgrading = invalidTxnID
	t.AddExclusiveLock(rid)
	return nil
}

// Unlock releases t's lock on rid, transitioning t to SHRINKING under
// REPEATABLE_READ if it was still GROWING (spec.md §4.5).
func (lm *LockManager) Unlock(t *txn.Transaction, rid txn.RID) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	q, ok := lm.table[rid]
	if !ok {
		return nil
	}
	idx := -1
	for i, r := range q.requests {
		if r.txnID == t.ID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil
	}
	req := q.requests[idx]
	q.requests = append(q.requests[:idx], q.requests[idx+1:]...)

	t.RemoveSharedLock(rid)
	t.RemoveExclusiveLock(rid)

	if t.Isolation == txn.RepeatableRead && t.State() == txn.StateGrowing {
		t.SetState(txn.StateShrinking)
	}

	if req.mode == Shared {
		q.shareCount--
	} else {
		q.writing = invalidTxnID
	}

	if lm.grantLocked(q) {
		q.cond.Broadcast()
	}
	return nil
}
