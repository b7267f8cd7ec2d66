// Package envelope seals commands into signed transport envelopes and opens
// received envelopes back into verified commands.
//
// Sealing signs a canonical encoding of (parent, author, payload) and
// derives the command identifier from the sealed bytes including the
// signature, so identity is a pure function of content. Opening verifies the
// identifier, the signature, and the payload shape before anything reaches
// the graph; integrity and malformed-payload failures never propagate past
// this package and the graph store.
//
// The codec performs no I/O of its own: all key material is resolved through
// the identity.Provider it was constructed with.
package envelope
