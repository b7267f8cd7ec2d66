package engine

import (
	"context"
	"errors"
	"time"

	"weftlabs/weft/pkg/command"
	"weftlabs/weft/pkg/envelope"
	"weftlabs/weft/pkg/identity"
	"weftlabs/weft/pkg/policy"
)

// IngestRemote verifies a sealed envelope received from a peer and merges
// its command into the graph. Duplicates are ignored, commands from unknown
// authors are held until the author's key arrives, and commands with missing
// ancestors wait in the pending buffer. A policy rejection is recorded
// durably and is not an error: the merge itself succeeded.
func (e *Engine) IngestRemote(ctx context.Context, sealed []byte, from string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.ingestSealed(ctx, sealed, from)
}

func (e *Engine) ingestSealed(ctx context.Context, sealed []byte, from string) error {
	env, err := envelope.Unmarshal(sealed)
	if err != nil {
		return err
	}

	cmd, err := e.codec.Open(env)
	if err != nil {
		var unknown *envelope.UnknownAuthorError
		if errors.As(err, &unknown) {
			e.holdForAuthor(unknown.Author, sealed, from)
			return nil
		}
		return err
	}

	return e.ingestVerified(ctx, cmd, env, sealed)
}

func (e *Engine) ingestVerified(ctx context.Context, cmd *command.Command, env *envelope.Envelope, sealed []byte) error {
	// Replay protection: identifiers are content-derived, so a known
	// identifier means the exact same command.
	_, known, err := e.graph.Status(ctx, cmd.ID)
	if err != nil {
		return err
	}
	if known {
		return nil
	}

	ok, err := e.graph.HasAncestor(ctx, cmd.Parent)
	if err != nil {
		return err
	}
	if !ok {
		e.graph.Defer(env, time.Now())
		e.metrics.SetPending(e.graph.PendingCount())
		return nil
	}

	_, err = e.apply(ctx, cmd, sealed, true)
	var rej *policy.Rejection
	if errors.As(err, &rej) {
		return nil
	}
	return err
}

// holdForAuthor buffers an envelope whose author key has not propagated yet.
// The buffer is bounded; when full the oldest held envelope is dropped and
// must be re-synced later.
func (e *Engine) holdForAuthor(author identity.AuthorID, sealed []byte, from string) {
	if len(e.buffered) >= e.bufferCap {
		dropped := e.buffered[0]
		e.buffered = e.buffered[1:]
		e.log.Warn("unknown-author buffer full, dropping oldest",
			"dropped_author", dropped.author)
	}
	held := make([]byte, len(sealed))
	copy(held, sealed)
	e.buffered = append(e.buffered, heldEnvelope{author: author, sealed: held, from: from})
	e.log.Debug("envelope held for unknown author", "author", author, "held", len(e.buffered))
}

// AuthorKeyLoaded re-ingests envelopes that were waiting for the given
// author's key. Wire it to the trusted-key watcher so commands flow as soon
// as a key file lands.
func (e *Engine) AuthorKeyLoaded(ctx context.Context, author identity.AuthorID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	var kept, ready []heldEnvelope
	for _, held := range e.buffered {
		if held.author == author {
			ready = append(ready, held)
		} else {
			kept = append(kept, held)
		}
	}
	e.buffered = kept

	for _, held := range ready {
		if err := e.ingestSealed(ctx, held.sealed, held.from); err != nil {
			e.log.Warn("held envelope failed after key load",
				"author", author, "error", err)
		}
	}
}

// HeldCount returns the number of envelopes waiting on unknown authors.
func (e *Engine) HeldCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buffered)
}
