package policy

import "weftlabs/weft/pkg/identity"

// Effect is an immutable, typed record emitted by policy evaluation and
// handed to the application. Effects are not persisted by the core and are
// delivered once per successful evaluation.
type Effect interface {
	// EffectKind names the effect type for logging and dispatch.
	EffectKind() string
}

// AmbientColorChanged reports that the shared ambient color changed.
type AmbientColorChanged struct {
	Color string
}

// EffectKind implements Effect.
func (AmbientColorChanged) EffectKind() string { return "AmbientColorChanged" }

// MessagePosted reports a broadcast message from a member.
type MessagePosted struct {
	Author identity.AuthorID
	Text   string
}

// EffectKind implements Effect.
func (MessagePosted) EffectKind() string { return "MessagePosted" }

// AuthorAdded reports that an author joined the member set.
type AuthorAdded struct {
	Author identity.AuthorID
	Name   string
}

// EffectKind implements Effect.
func (AuthorAdded) EffectKind() string { return "AuthorAdded" }
