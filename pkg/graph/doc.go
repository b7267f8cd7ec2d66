// Package graph implements the append-only command graph store.
//
// Commands are immutable once stored; the graph only grows. Records are
// indexed by identifier and by parent identifier, and the store tracks the
// head frontier (commands with no known child). Because identifiers are
// content-derived and a parent must already exist (or be the sentinel)
// before a child is accepted, cycles are impossible by construction.
//
// The Graph manager layers the command state machine over a Store backend:
// Pending commands wait in an in-memory buffer keyed by their missing
// ancestor; Accepted commands advance the head frontier; Rejected commands
// are recorded durably (so their identifiers cannot be replayed) without
// moving the frontier. Pending commands that outlive their deadline are
// reported, never silently dropped.
//
// Backends: MemoryStore for tests and diskless nodes, SQLiteStore for
// durable graphs that survive restart.
package graph
