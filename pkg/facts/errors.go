package facts

import (
	"errors"
	"fmt"
)

// Sentinel errors for fact operations. Policy rules translate these into
// rejections; they are expected outcomes, not faults.
var (
	// ErrExists indicates create found an existing value for the key.
	ErrExists = errors.New("facts: fact already exists")

	// ErrNotFound indicates update or delete found no value for the key.
	ErrNotFound = errors.New("facts: fact not found")

	// ErrPreconditionFailed indicates an optimistic update's expected
	// prior value did not match the current value.
	ErrPreconditionFailed = errors.New("facts: precondition failed")

	// ErrTxClosed indicates use of a transaction after commit or discard.
	ErrTxClosed = errors.New("facts: transaction closed")
)

// CommitError indicates a storage-layer failure while committing a
// transaction. The transaction is rolled back whole; committed state is
// unchanged. This is the only fact-store error class surfaced as fatal for
// the owning command.
type CommitError struct {
	Backend string
	Cause   error
}

// Error implements the error interface.
func (e *CommitError) Error() string {
	return fmt.Sprintf("fact store commit failed (%s): %v", e.Backend, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *CommitError) Unwrap() error { return e.Cause }
