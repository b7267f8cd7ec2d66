// Package command defines the command model: content-derived identifiers
// and the closed set of typed command payloads.
//
// A command is an immutable, signed, causally-linked state-change record.
// Its identifier is the SHA-256 digest of the sealed envelope bytes, so
// identity is a pure function of content and devices never negotiate IDs.
// The zero ID is the sentinel parent marking a graph-initializing command.
//
// The payload variants (Init, AddAuthor, SetAmbientColor, PostMessage) are
// a closed set fixed at build time; DecodePayload dispatches over the kind
// tag and rejects anything else.
package command
