package graph

import (
	"fmt"
	"time"

	"weftlabs/weft/pkg/command"
	"weftlabs/weft/pkg/identity"
)

// State is a command's position in its lifecycle. Pending commands are held
// in memory only; Accepted and Rejected are terminal and durable.
type State int

const (
	// StatePending marks a command buffered awaiting its ancestor chain.
	StatePending State = iota

	// StateAccepted marks a command whose policy evaluation succeeded. It
	// is part of the graph and may be a head.
	StateAccepted

	// StateRejected marks a command that opened and verified but whose
	// policy evaluation rejected it. Its identifier is remembered so
	// replays are refused; it is never a head.
	StateRejected
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAccepted:
		return "accepted"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Record is a durably stored command: its graph metadata plus the original
// sealed envelope bytes, kept bit-identical so the command can be relayed to
// peers with its signature intact.
type Record struct {
	ID       command.ID
	Parent   command.ID
	Author   identity.AuthorID
	State    State
	Envelope []byte
}

// PendingReport describes a command that stayed pending past the configured
// deadline. Dangling ancestries are reported, never silently dropped.
type PendingReport struct {
	ID      command.ID
	Missing command.ID
	Since   time.Time
}
