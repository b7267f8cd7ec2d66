package command

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"weftlabs/weft/pkg/identity"
)

// ID is a content-derived command identifier: the SHA-256 digest of the
// sealed envelope's canonical bytes. Two devices that receive the same bytes
// compute the same identifier.
type ID [sha256.Size]byte

// Sentinel is the distinguished parent of a graph-initializing command.
var Sentinel ID

// DeriveID computes the identifier for canonical sealed bytes.
func DeriveID(sealed []byte) ID {
	return sha256.Sum256(sealed)
}

// IsSentinel reports whether id marks a graph-initializing parent.
func (id ID) IsSentinel() bool {
	return id == Sentinel
}

// String returns the hex form of the identifier. The lexicographic order of
// this form is the deterministic tie-break between concurrent commands, so
// it must stay a fixed-width lowercase hex encoding.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Less reports whether id orders before other under the tie-break order.
func (id ID) Less(other ID) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// MarshalJSON encodes the identifier as its hex form.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON decodes the hex form produced by MarshalJSON.
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseID parses the hex form produced by String.
func ParseID(s string) (ID, error) {
	var id ID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("malformed command id %q: %w", s, err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("malformed command id %q: want %d bytes, got %d", s, len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// Command is an opened, verified command ready for policy evaluation.
// Immutable once constructed.
type Command struct {
	// ID is the content-derived identifier of the sealed envelope.
	ID ID

	// Parent is the identifier this command causally follows, or Sentinel
	// for a graph-initializing command.
	Parent ID

	// Author is the verified author identity.
	Author identity.AuthorID

	// Fields is the command-type-specific payload.
	Fields Fields
}
