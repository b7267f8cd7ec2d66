// Package syncer exchanges commands between devices so partitioned graphs
// converge.
//
// The protocol is pull-based and tolerant of loss: a round advertises the
// local head frontier, the peer requests whatever it lacks (including
// ancestors blocking its pending commands), and sealed envelopes travel back
// verbatim so signatures verify unchanged. Nothing in the protocol is
// trusted; every received envelope goes through the same verification and
// policy evaluation as a local command.
//
// Rounds run on a cron schedule. Each exchange is tracked as a session so
// stalls are detected and abandoned rather than wedging a peer.
package syncer
