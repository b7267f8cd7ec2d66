package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// AuthorID identifies the author of a command. It is derived from the
// author's public verification key, so two devices that trust the same key
// agree on the identifier without coordination.
type AuthorID string

// DeriveAuthorID computes the author identifier for a public key: the hex
// form of the first 16 bytes of the key's SHA-256 digest.
func DeriveAuthorID(pub ed25519.PublicKey) AuthorID {
	sum := sha256.Sum256(pub)
	return AuthorID(hex.EncodeToString(sum[:16]))
}

// Provider resolves identity and key material for the envelope codec. The
// core never touches raw keys outside this interface; signing and
// verification failures surface as codec errors.
type Provider interface {
	// CurrentAuthor returns the identity this device signs as.
	CurrentAuthor() AuthorID

	// Sign signs payload with the device signing key.
	Sign(payload []byte) ([]byte, error)

	// Verify checks sig over payload against the named author's
	// verification key. It returns ErrUnknownAuthor if no key is on
	// record and ErrBadSignature on mismatch.
	Verify(author AuthorID, payload, sig []byte) error
}

// Sentinel errors returned by Provider implementations.
var (
	// ErrUnknownAuthor indicates no verification key is on record for the
	// claimed author.
	ErrUnknownAuthor = fmt.Errorf("identity: unknown author")

	// ErrBadSignature indicates signature verification failed.
	ErrBadSignature = fmt.Errorf("identity: signature verification failed")

	// ErrNoSigningKey indicates the device signing key is unavailable.
	ErrNoSigningKey = fmt.Errorf("identity: signing key unavailable")
)
