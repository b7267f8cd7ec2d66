package command

import (
	"encoding/json"
	"fmt"

	"weftlabs/weft/pkg/identity"
)

// Kind names a command type. The set of kinds is closed: it is fixed by the
// deployed policy definition, and payload decoding dispatches over it.
type Kind string

const (
	// KindInit creates a new graph and seeds its initial facts.
	KindInit Kind = "Init"

	// KindAddAuthor admits a new author to the graph's member set.
	KindAddAuthor Kind = "AddAuthor"

	// KindSetAmbientColor changes the shared ambient color.
	KindSetAmbientColor Kind = "SetAmbientColor"

	// KindPostMessage posts a broadcast text message.
	KindPostMessage Kind = "PostMessage"
)

// Fields is the typed payload of a command. Implementations form a closed
// set of variants, one per Kind.
type Fields interface {
	// Kind returns the command type this payload belongs to.
	Kind() Kind
}

// InitFields initializes a graph. Nonce makes independently created graphs
// distinct even when authored by the same device.
type InitFields struct {
	Nonce string `json:"nonce"`
}

// Kind implements Fields.
func (InitFields) Kind() Kind { return KindInit }

// AddAuthorFields admits an author. The author must already be trusted at
// the identity layer; this command grants graph membership.
type AddAuthorFields struct {
	Author identity.AuthorID `json:"author"`
	Name   string            `json:"name,omitempty"`
}

// Kind implements Fields.
func (AddAuthorFields) Kind() Kind { return KindAddAuthor }

// SetAmbientColorFields changes the shared ambient color.
type SetAmbientColorFields struct {
	Color string `json:"color"`
}

// Kind implements Fields.
func (SetAmbientColorFields) Kind() Kind { return KindSetAmbientColor }

// PostMessageFields posts a message to all members.
type PostMessageFields struct {
	Text string `json:"text"`
}

// Kind implements Fields.
func (PostMessageFields) Kind() Kind { return KindPostMessage }

// payloadWrapper is the wire form of a payload: the kind tag plus the
// kind-specific fields.
type payloadWrapper struct {
	Kind   Kind            `json:"kind"`
	Fields json.RawMessage `json:"fields"`
}

// EncodePayload serializes fields into payload bytes for sealing. The
// encoding is canonical: struct fields marshal in declaration order, so the
// same fields always produce the same bytes.
func EncodePayload(fields Fields) ([]byte, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s fields: %w", fields.Kind(), err)
	}
	return json.Marshal(payloadWrapper{Kind: fields.Kind(), Fields: raw})
}

// DecodePayload deserializes payload bytes into typed fields. An unknown
// kind or malformed fields is an error; the caller classifies it as a
// malformed payload.
func DecodePayload(payload []byte) (Fields, error) {
	var wrapper payloadWrapper
	if err := json.Unmarshal(payload, &wrapper); err != nil {
		return nil, fmt.Errorf("malformed payload: %w", err)
	}

	var fields Fields
	switch wrapper.Kind {
	case KindInit:
		fields = &InitFields{}
	case KindAddAuthor:
		fields = &AddAuthorFields{}
	case KindSetAmbientColor:
		fields = &SetAmbientColorFields{}
	case KindPostMessage:
		fields = &PostMessageFields{}
	default:
		return nil, fmt.Errorf("unknown command kind %q", wrapper.Kind)
	}

	if err := json.Unmarshal(wrapper.Fields, fields); err != nil {
		return nil, fmt.Errorf("malformed %s fields: %w", wrapper.Kind, err)
	}
	return deref(fields), nil
}

// deref returns the value form so callers can type-switch on value types.
func deref(fields Fields) Fields {
	switch f := fields.(type) {
	case *InitFields:
		return *f
	case *AddAuthorFields:
		return *f
	case *SetAmbientColorFields:
		return *f
	case *PostMessageFields:
		return *f
	default:
		return fields
	}
}
