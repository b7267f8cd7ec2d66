package graph

import (
	"context"
	"fmt"

	"weftlabs/weft/pkg/command"
)

// Store is the durable command graph: append-only records indexed by
// identifier and by parent, plus the current head set. Append commits the
// record and the head movement atomically so a crash never leaves heads
// pointing at missing commands.
type Store interface {
	// Append stores a record and replaces the head set in one atomic
	// operation. Appending an identifier that already exists is an error;
	// callers check Get first.
	Append(ctx context.Context, rec *Record, heads []command.ID) error

	// Get returns the record for id, with a presence flag.
	Get(ctx context.Context, id command.ID) (*Record, bool, error)

	// ChildrenOf returns the identifiers of commands whose parent is id.
	ChildrenOf(ctx context.Context, id command.ID) ([]command.ID, error)

	// Heads returns the current frontier identifiers.
	Heads(ctx context.Context) ([]command.ID, error)

	// All returns every stored record. Used to rebuild derived state on
	// restart and to compute the canonical evaluation order.
	All(ctx context.Context) ([]*Record, error)

	// Close releases backend resources.
	Close() error
}

// StoreError indicates a storage-layer failure in the graph backend. It
// aborts the operation that hit it; the graph on disk is unchanged.
type StoreError struct {
	Backend string
	Op      string
	Cause   error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("graph store %s failed (%s): %v", e.Op, e.Backend, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *StoreError) Unwrap() error { return e.Cause }

// MissingAncestorError indicates a command references a parent not yet in
// the graph. This is not a failure of the command; it triggers an ancestor
// fetch and the command waits as pending.
type MissingAncestorError struct {
	Command command.ID
	Missing command.ID
}

// Error implements the error interface.
func (e *MissingAncestorError) Error() string {
	return fmt.Sprintf("command %s is missing ancestor %s", e.Command, e.Missing)
}
