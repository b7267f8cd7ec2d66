// Package identity resolves the key material behind command authorship.
//
// The core treats identity and cryptography as an external dependency: the
// envelope codec consumes the Provider interface and never touches raw keys.
// The file-backed Keystore is the reference Provider: a single device
// signing key file plus a trusted-keys directory holding one public key file
// per author.
//
// Author identifiers are derived from public keys, so every device that
// trusts a key agrees on the author's identifier without coordination.
//
// KeyWatcher watches the trusted-keys directory with fsnotify. When a new
// author key lands on disk (however it propagates: provisioning, sneakernet,
// a sideband channel), envelopes buffered on that unknown author become
// verifiable and are released to the graph.
package identity
