package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Keystore is a file-backed Provider. The device signing key lives in a
// single key file; trusted author verification keys live in a directory with
// one file per author, named by author identifier.
type Keystore struct {
	author AuthorID
	priv   ed25519.PrivateKey

	mu      sync.RWMutex
	trusted map[AuthorID]ed25519.PublicKey
}

// GenerateKeyFile creates a new ed25519 signing key and writes it to path.
// It fails if the file already exists. The derived author identifier is
// returned so callers can publish it.
func GenerateKeyFile(path string) (AuthorID, error) {
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("key file %q already exists", path)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("failed to create key directory: %w", err)
	}
	data := hex.EncodeToString(priv.Seed()) + "\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		return "", fmt.Errorf("failed to write key file: %w", err)
	}

	return DeriveAuthorID(pub), nil
}

// LoadKeystore loads the device signing key from keyPath and all trusted
// author keys from trustedDir. A missing trusted directory is not an error;
// it simply means no foreign authors are trusted yet.
func LoadKeystore(keyPath, trustedDir string) (*Keystore, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSigningKey, err)
	}

	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: malformed key file %q", ErrNoSigningKey, keyPath)
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)

	ks := &Keystore{
		author:  DeriveAuthorID(pub),
		priv:    priv,
		trusted: make(map[AuthorID]ed25519.PublicKey),
	}
	// The device always trusts its own key.
	ks.trusted[ks.author] = pub

	if trustedDir != "" {
		if err := ks.loadTrustedDir(trustedDir); err != nil {
			return nil, err
		}
	}

	return ks, nil
}

func (ks *Keystore) loadTrustedDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read trusted keys dir %q: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if _, err := ks.LoadTrustedKey(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// LoadTrustedKey reads a single public key file and adds it to the trusted
// set, returning the derived author identifier. The file contains the
// hex-encoded public key; the identifier is derived from the key, not the
// file name, so a renamed file cannot impersonate another author.
func (ks *Keystore) LoadTrustedKey(path string) (AuthorID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read trusted key %q: %w", path, err)
	}

	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return "", fmt.Errorf("malformed trusted key file %q", path)
	}

	pub := ed25519.PublicKey(raw)
	id := DeriveAuthorID(pub)
	ks.mu.Lock()
	ks.trusted[id] = pub
	ks.mu.Unlock()
	return id, nil
}

// AddTrustedKey adds a public key to the in-memory trusted set.
func (ks *Keystore) AddTrustedKey(pub ed25519.PublicKey) AuthorID {
	id := DeriveAuthorID(pub)
	ks.mu.Lock()
	ks.trusted[id] = pub
	ks.mu.Unlock()
	return id
}

// PublicKey returns this device's public verification key.
func (ks *Keystore) PublicKey() ed25519.PublicKey {
	return ks.priv.Public().(ed25519.PublicKey)
}

// CurrentAuthor returns the identity this device signs as.
func (ks *Keystore) CurrentAuthor() AuthorID {
	return ks.author
}

// Sign signs payload with the device signing key.
func (ks *Keystore) Sign(payload []byte) ([]byte, error) {
	if ks.priv == nil {
		return nil, ErrNoSigningKey
	}
	return ed25519.Sign(ks.priv, payload), nil
}

// Verify checks sig over payload against the named author's key.
func (ks *Keystore) Verify(author AuthorID, payload, sig []byte) error {
	ks.mu.RLock()
	pub, ok := ks.trusted[author]
	ks.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAuthor, author)
	}
	if !ed25519.Verify(pub, payload, sig) {
		return fmt.Errorf("%w: author %s", ErrBadSignature, author)
	}
	return nil
}

// TrustedAuthors returns the identifiers of all authors with a verification
// key on record, sorted, including this device's own.
func (ks *Keystore) TrustedAuthors() []AuthorID {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	out := make([]AuthorID, 0, len(ks.trusted))
	for id := range ks.trusted {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Knows reports whether a verification key is on record for author.
func (ks *Keystore) Knows(author AuthorID) bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	_, ok := ks.trusted[author]
	return ok
}
