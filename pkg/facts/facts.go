package facts

import (
	"context"
	"strings"
)

// Key is the ordered tuple identifying a fact within its schema. Tuple
// elements are compared positionally; the empty key is valid for singleton
// facts.
type Key []string

// Value is the structured record stored for a fact. Values are compared
// field-by-field for optimistic update checks.
type Value map[string]string

// Equal reports whether two values hold the same fields.
func (v Value) Equal(other Value) bool {
	if len(v) != len(other) {
		return false
	}
	for k, val := range v {
		if other[k] != val {
			return false
		}
	}
	return true
}

// clone returns a copy so committed state never aliases caller maps.
func (v Value) clone() Value {
	if v == nil {
		return nil
	}
	out := make(Value, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Op is a mutation operation type.
type Op string

const (
	// OpPut inserts or replaces a fact value.
	OpPut Op = "put"
	// OpDelete removes a fact.
	OpDelete Op = "delete"
)

// Mutation is one buffered fact change. Mutations are applied atomically as
// a batch when the owning policy evaluation commits.
type Mutation struct {
	Op     Op
	Schema string
	Key    Key
	Value  Value
}

// Store is the committed fact state. Implementations provide point lookups
// and atomic multi-key batch commits; all mutation goes through ApplyBatch
// so a transaction either lands whole or not at all.
type Store interface {
	// Get returns the committed value for (schema, key), with a presence
	// flag.
	Get(ctx context.Context, schema string, key Key) (Value, bool, error)

	// ApplyBatch atomically applies a transaction's buffered mutations.
	ApplyBatch(ctx context.Context, muts []Mutation) error

	// Clear removes all committed facts. Used when derived state is
	// recomputed from the command graph.
	Clear(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// encodeKey flattens (schema, key) into the single lookup key used by the
// backends. 0x1f (unit separator) cannot appear in schema names or key
// elements.
func encodeKey(schema string, key Key) string {
	parts := make([]string, 0, len(key)+1)
	parts = append(parts, schema)
	parts = append(parts, key...)
	return strings.Join(parts, "\x1f")
}
