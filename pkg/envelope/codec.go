package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"weftlabs/weft/pkg/command"
	"weftlabs/weft/pkg/identity"
)

// Envelope is the transport wrapper of a sealed command: parent linkage,
// author identity, content-derived identifier, signature, and the opaque
// payload bytes. Envelopes are produced by sealing or received read-only
// from the network and never mutated after creation.
type Envelope struct {
	Parent    command.ID        `json:"parent"`
	Author    identity.AuthorID `json:"author"`
	ID        command.ID        `json:"id"`
	Signature []byte            `json:"sig"`
	Payload   []byte            `json:"payload"`
}

// signedPortion is the canonical encoding the signature covers: parent,
// author, and payload, in fixed field order.
type signedPortion struct {
	Parent  command.ID        `json:"parent"`
	Author  identity.AuthorID `json:"author"`
	Payload []byte            `json:"payload"`
}

// sealedPortion is the canonical encoding the identifier is derived from:
// the signed portion plus the signature itself, so an envelope with a forged
// signature cannot claim an honest command's identifier.
type sealedPortion struct {
	Parent    command.ID        `json:"parent"`
	Author    identity.AuthorID `json:"author"`
	Payload   []byte            `json:"payload"`
	Signature []byte            `json:"sig"`
}

// Codec seals and opens envelopes using an identity provider for all
// cryptographic operations. A Codec is a pure function of its inputs and
// the provider's key lookups; it holds no mutable state.
type Codec struct {
	provider identity.Provider
}

// NewCodec creates a codec backed by the given identity provider.
func NewCodec(provider identity.Provider) *Codec {
	return &Codec{provider: provider}
}

// Seal serializes fields, signs the canonical (parent, author, payload)
// encoding as the current device author, derives the content identifier,
// and returns the envelope.
func (c *Codec) Seal(fields command.Fields, parent command.ID) (*Envelope, error) {
	payload, err := command.EncodePayload(fields)
	if err != nil {
		return nil, &MalformedPayloadError{Cause: err}
	}

	author := c.provider.CurrentAuthor()
	signed, err := json.Marshal(signedPortion{Parent: parent, Author: author, Payload: payload})
	if err != nil {
		return nil, &SigningError{Cause: err}
	}

	sig, err := c.provider.Sign(signed)
	if err != nil {
		return nil, &SigningError{Cause: err}
	}

	id, err := deriveID(parent, author, payload, sig)
	if err != nil {
		return nil, &SigningError{Cause: err}
	}

	return &Envelope{
		Parent:    parent,
		Author:    author,
		ID:        id,
		Signature: sig,
		Payload:   payload,
	}, nil
}

// Open verifies an envelope and returns the decoded command. It checks, in
// order: the claimed identifier matches the content, the signature verifies
// against the claimed author's key, and the payload decodes into a known
// command kind.
func (c *Codec) Open(env *Envelope) (*command.Command, error) {
	id, err := deriveID(env.Parent, env.Author, env.Payload, env.Signature)
	if err != nil {
		return nil, &MalformedPayloadError{Cause: err}
	}
	if id != env.ID {
		return nil, &IntegrityError{Reason: fmt.Sprintf("claimed id %s does not match content id %s", env.ID, id)}
	}

	signed, err := json.Marshal(signedPortion{Parent: env.Parent, Author: env.Author, Payload: env.Payload})
	if err != nil {
		return nil, &MalformedPayloadError{Cause: err}
	}
	if err := c.provider.Verify(env.Author, signed, env.Signature); err != nil {
		if errors.Is(err, identity.ErrUnknownAuthor) {
			return nil, &UnknownAuthorError{Author: env.Author}
		}
		return nil, &IntegrityError{Reason: "signature verification failed", Cause: err}
	}

	fields, err := command.DecodePayload(env.Payload)
	if err != nil {
		return nil, &MalformedPayloadError{Cause: err}
	}

	return &command.Command{
		ID:     env.ID,
		Parent: env.Parent,
		Author: env.Author,
		Fields: fields,
	}, nil
}

// deriveID computes the content identifier over the canonical sealed bytes.
func deriveID(parent command.ID, author identity.AuthorID, payload, sig []byte) (command.ID, error) {
	sealed, err := json.Marshal(sealedPortion{Parent: parent, Author: author, Payload: payload, Signature: sig})
	if err != nil {
		return command.ID{}, err
	}
	return command.DeriveID(sealed), nil
}

// Marshal encodes the envelope for the wire. The encoding is stable: a
// re-marshalled envelope is bit-identical to the original, preserving
// signatures across relays.
func Marshal(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Unmarshal decodes wire bytes into an envelope. Decoding performs no
// verification; callers must Open the result before trusting it.
func Unmarshal(data []byte) (*Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return nil, &MalformedPayloadError{Cause: err}
	}
	return &env, nil
}
