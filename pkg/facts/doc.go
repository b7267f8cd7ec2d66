// Package facts implements the versioned fact store.
//
// A fact is a (schema, key tuple) -> value entry mutated only inside policy
// evaluation. Mutations are buffered in a Tx and applied to the committed
// Store atomically on commit; a rejected or failed evaluation discards the
// transaction whole. Queries inside a transaction see committed state plus
// the transaction's own prior writes.
//
// Two backends implement Store: MemoryStore for tests and diskless nodes,
// and SQLiteStore for durable state that survives process restart. The
// create/update/delete discipline (create fails on existing, update fails on
// absent or mismatched expected value) lives in Tx, so backends only need
// point lookups and atomic batch application.
package facts
