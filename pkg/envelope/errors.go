package envelope

import (
	"fmt"

	"weftlabs/weft/pkg/identity"
)

// SigningError indicates the device signing key was unavailable or signing
// failed. Sealing cannot proceed.
type SigningError struct {
	Cause error
}

// Error implements the error interface.
func (e *SigningError) Error() string {
	return fmt.Sprintf("sealing failed: %v", e.Cause)
}

// Unwrap returns the underlying cause.
func (e *SigningError) Unwrap() error { return e.Cause }

// IntegrityError indicates signature verification failed or the envelope's
// content does not match its claimed identifier. The envelope is discarded
// and never appended.
type IntegrityError struct {
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("integrity check failed: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("integrity check failed: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *IntegrityError) Unwrap() error { return e.Cause }

// UnknownAuthorError indicates no verification key is on record for the
// claimed author. The envelope may be buffered pending identity propagation.
type UnknownAuthorError struct {
	Author identity.AuthorID
}

// Error implements the error interface.
func (e *UnknownAuthorError) Error() string {
	return fmt.Sprintf("no verification key on record for author %s", e.Author)
}

// MalformedPayloadError indicates deserialization of the envelope or its
// payload failed. The envelope is discarded, not retried.
type MalformedPayloadError struct {
	Cause error
}

// Error implements the error interface.
func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed payload: %v", e.Cause)
}

// Unwrap returns the underlying cause.
func (e *MalformedPayloadError) Unwrap() error { return e.Cause }
