package graph

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"weftlabs/weft/pkg/command"
	"weftlabs/weft/pkg/envelope"
)

// Graph manages the command graph over a Store: it computes head movement
// on append, remembers rejected identifiers, and buffers commands whose
// ancestor chain is incomplete. Pending commands live only in memory; the
// durability contract covers Accepted and Rejected commands.
type Graph struct {
	store  Store
	logger *slog.Logger

	mu      sync.Mutex
	pending map[command.ID]*pendingEntry   // own id -> buffered envelope
	waiting map[command.ID][]command.ID    // missing ancestor -> pending ids
}

type pendingEntry struct {
	env   *envelope.Envelope
	since time.Time
}

// New creates a graph manager over the given store.
func New(store Store, logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{
		store:   store,
		logger:  logger.With("component", "graph"),
		pending: make(map[command.ID]*pendingEntry),
		waiting: make(map[command.ID][]command.ID),
	}
}

// Store returns the underlying durable store.
func (g *Graph) Store() Store { return g.store }

// Status returns a command's state and whether it is known at all. Pending
// commands are known but not durable.
func (g *Graph) Status(ctx context.Context, id command.ID) (State, bool, error) {
	rec, ok, err := g.store.Get(ctx, id)
	if err != nil {
		return 0, false, err
	}
	if ok {
		return rec.State, true, nil
	}

	g.mu.Lock()
	_, isPending := g.pending[id]
	g.mu.Unlock()
	if isPending {
		return StatePending, true, nil
	}
	return 0, false, nil
}

// HasAncestor reports whether the parent of a command is present in the
// durable graph. The sentinel parent is always present.
func (g *Graph) HasAncestor(ctx context.Context, parent command.ID) (bool, error) {
	if parent.IsSentinel() {
		return true, nil
	}
	_, ok, err := g.store.Get(ctx, parent)
	return ok, err
}

// AppendAccepted durably appends an accepted command and advances the head
// frontier: the command's parent stops being a head (if it was one) and the
// command becomes one.
func (g *Graph) AppendAccepted(ctx context.Context, cmd *command.Command, sealed []byte) error {
	heads, err := g.store.Heads(ctx)
	if err != nil {
		return err
	}

	next := make([]command.ID, 0, len(heads)+1)
	for _, head := range heads {
		if head != cmd.Parent {
			next = append(next, head)
		}
	}
	next = append(next, cmd.ID)
	sort.Slice(next, func(i, j int) bool { return next[i].Less(next[j]) })

	rec := &Record{
		ID:       cmd.ID,
		Parent:   cmd.Parent,
		Author:   cmd.Author,
		State:    StateAccepted,
		Envelope: sealed,
	}
	return g.store.Append(ctx, rec, next)
}

// AppendRejected durably records a rejected command so its identifier can
// never be replayed. The head frontier does not move.
func (g *Graph) AppendRejected(ctx context.Context, cmd *command.Command, sealed []byte) error {
	heads, err := g.store.Heads(ctx)
	if err != nil {
		return err
	}

	rec := &Record{
		ID:       cmd.ID,
		Parent:   cmd.Parent,
		Author:   cmd.Author,
		State:    StateRejected,
		Envelope: sealed,
	}
	return g.store.Append(ctx, rec, heads)
}

// Heads returns the current frontier identifiers.
func (g *Graph) Heads(ctx context.Context) ([]command.ID, error) {
	return g.store.Heads(ctx)
}

// Defer buffers an envelope whose parent is not yet present and returns the
// MissingAncestorError that should drive an ancestor fetch. Buffering the
// same command twice is a no-op.
func (g *Graph) Defer(env *envelope.Envelope, now time.Time) *MissingAncestorError {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.pending[env.ID]; !exists {
		g.pending[env.ID] = &pendingEntry{env: env, since: now}
		g.waiting[env.Parent] = append(g.waiting[env.Parent], env.ID)
		g.logger.Debug("command deferred on missing ancestor",
			"id", env.ID.String(),
			"missing", env.Parent.String(),
		)
	}

	return &MissingAncestorError{Command: env.ID, Missing: env.Parent}
}

// IsPending reports whether id is buffered awaiting ancestors.
func (g *Graph) IsPending(id command.ID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.pending[id]
	return ok
}

// PendingCount returns the number of buffered commands.
func (g *Graph) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// MissingAncestors returns the distinct ancestor identifiers currently
// blocking pending commands, in tie-break order for deterministic requests.
func (g *Graph) MissingAncestors() []command.ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]command.ID, 0, len(g.waiting))
	for missing := range g.waiting {
		out = append(out, missing)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Release pops the pending envelopes that were waiting on the given
// identifier, in tie-break order. The caller re-appends them now that the
// ancestor is present.
func (g *Graph) Release(parent command.ID) []*envelope.Envelope {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := g.waiting[parent]
	if len(ids) == 0 {
		return nil
	}
	delete(g.waiting, parent)

	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	out := make([]*envelope.Envelope, 0, len(ids))
	for _, id := range ids {
		if entry, ok := g.pending[id]; ok {
			out = append(out, entry.env)
			delete(g.pending, id)
		}
	}
	return out
}

// ExpirePending removes commands that have been pending longer than timeout
// and returns a report for each. Expired commands may be re-received later;
// nothing about them was ever visible in fact state.
func (g *Graph) ExpirePending(now time.Time, timeout time.Duration) []PendingReport {
	g.mu.Lock()
	defer g.mu.Unlock()

	var reports []PendingReport
	for id, entry := range g.pending {
		if now.Sub(entry.since) < timeout {
			continue
		}
		reports = append(reports, PendingReport{
			ID:      id,
			Missing: entry.env.Parent,
			Since:   entry.since,
		})
		delete(g.pending, id)
		g.removeWaiting(entry.env.Parent, id)
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].ID.Less(reports[j].ID) })
	return reports
}

func (g *Graph) removeWaiting(parent, id command.ID) {
	ids := g.waiting[parent]
	for i, waiting := range ids {
		if waiting == id {
			g.waiting[parent] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(g.waiting[parent]) == 0 {
		delete(g.waiting, parent)
	}
}
