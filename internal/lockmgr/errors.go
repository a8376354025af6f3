package lockmgr

import "fmt"

// AbortReason classifies why the lock manager forced a transaction into
// the ABORTED state (spec.md §7 "Concurrency violation" taxonomy).
type AbortReason int

const (
	AbortDeadlock AbortReason = iota
	AbortLockOnShrinking
	AbortLockSharedOnReadUncommitted
	AbortUpgradeConflict
)

func (r AbortReason) String() string {
	switch r {
	case AbortDeadlock:
		return "deadlock"
	case AbortLockOnShrinking:
		return "lock requested during shrinking phase"
	case AbortLockSharedOnReadUncommitted:
		return "shared lock requested under read-uncommitted"
	case AbortUpgradeConflict:
		return "concurrent upgrade already in progress"
	default:
		return "unknown"
	}
}

// TransactionAbortedError is the Go stand-in for the original's
// TransactionAbortException (spec.md §9 "Exceptions for lock failures"):
// a result type carrying the abort reason, which the caller (an
// executor) is responsible for unwinding against.
type TransactionAbortedError struct {
	TxnID  uint64
	Reason AbortReason
}

func (e *TransactionAbortedError) Error() string {
	return fmt.Sprintf("lockmgr: txn %d aborted: %s", e.TxnID, e.Reason)
}

func abortError(txnID uint64, reason AbortReason) *TransactionAbortedError {
	return &TransactionAbortedError{TxnID: txnID, Reason: reason}
}
