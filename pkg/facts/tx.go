package facts

import (
	"context"
)

// Tx is one policy evaluation's view of the fact store. Reads see committed
// state plus the transaction's own prior writes; writes are buffered and hit
// the store only on Commit. Evaluation is strictly sequential, so a single
// Tx is active per graph at a time and Tx itself is not safe for concurrent
// use.
type Tx struct {
	store  Store
	writes []Mutation
	index  map[string]int // encoded key -> position in writes
	closed bool
}

// NewTx opens a transaction over the committed store state.
func NewTx(store Store) *Tx {
	return &Tx{
		store: store,
		index: make(map[string]int),
	}
}

// Query returns the current value for (schema, key): the transaction's own
// write if present, otherwise committed state.
func (tx *Tx) Query(ctx context.Context, schema string, key Key) (Value, bool, error) {
	if tx.closed {
		return nil, false, ErrTxClosed
	}

	if pos, ok := tx.index[encodeKey(schema, key)]; ok {
		mut := tx.writes[pos]
		if mut.Op == OpDelete {
			return nil, false, nil
		}
		return mut.Value.clone(), true, nil
	}

	return tx.store.Get(ctx, schema, key)
}

// Create inserts a new fact. It fails with ErrExists if a value is already
// present for the key.
func (tx *Tx) Create(ctx context.Context, schema string, key Key, value Value) error {
	if tx.closed {
		return ErrTxClosed
	}

	if _, present, err := tx.Query(ctx, schema, key); err != nil {
		return err
	} else if present {
		return ErrExists
	}

	tx.put(Mutation{Op: OpPut, Schema: schema, Key: key, Value: value.clone()})
	return nil
}

// Update replaces an existing fact. It fails with ErrNotFound if no value is
// present. If expect is non-nil the current value must match it exactly, or
// the update fails with ErrPreconditionFailed.
func (tx *Tx) Update(ctx context.Context, schema string, key Key, expect, value Value) error {
	if tx.closed {
		return ErrTxClosed
	}

	current, present, err := tx.Query(ctx, schema, key)
	if err != nil {
		return err
	}
	if !present {
		return ErrNotFound
	}
	if expect != nil && !current.Equal(expect) {
		return ErrPreconditionFailed
	}

	tx.put(Mutation{Op: OpPut, Schema: schema, Key: key, Value: value.clone()})
	return nil
}

// Delete removes an existing fact. It fails with ErrNotFound if no value is
// present.
func (tx *Tx) Delete(ctx context.Context, schema string, key Key) error {
	if tx.closed {
		return ErrTxClosed
	}

	_, present, err := tx.Query(ctx, schema, key)
	if err != nil {
		return err
	}
	if !present {
		return ErrNotFound
	}

	tx.put(Mutation{Op: OpDelete, Schema: schema, Key: key})
	return nil
}

// put records a mutation, collapsing repeated writes to the same key so the
// batch carries only each key's final state.
func (tx *Tx) put(mut Mutation) {
	enc := encodeKey(mut.Schema, mut.Key)
	if pos, ok := tx.index[enc]; ok {
		tx.writes[pos] = mut
		return
	}
	tx.index[enc] = len(tx.writes)
	tx.writes = append(tx.writes, mut)
}

// Mutations returns the buffered writes in application order.
func (tx *Tx) Mutations() []Mutation {
	return tx.writes
}

// Commit atomically applies the buffered mutations to the store and closes
// the transaction. A storage failure is returned as a CommitError and leaves
// committed state unchanged.
func (tx *Tx) Commit(ctx context.Context) error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true

	if len(tx.writes) == 0 {
		return nil
	}
	return tx.store.ApplyBatch(ctx, tx.writes)
}

// Discard drops the buffered mutations and closes the transaction. Committed
// state is untouched.
func (tx *Tx) Discard() {
	tx.closed = true
	tx.writes = nil
	tx.index = nil
}
