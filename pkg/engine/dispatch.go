package engine

import (
	"context"

	"weftlabs/weft/pkg/command"
	"weftlabs/weft/pkg/envelope"
	"weftlabs/weft/pkg/policy"
)

// Dispatch seals the given fields as a new local command, evaluates it, and
// returns its effects. The command's parent is the greatest current head, so
// local actions extend the canonical order. A policy failure comes back as a
// *policy.Rejection and leaves no trace: the command was never shared, so
// nothing needs to remember it.
func (e *Engine) Dispatch(ctx context.Context, fields command.Fields) ([]policy.Effect, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	heads, err := e.graph.Heads(ctx)
	if err != nil {
		return nil, err
	}

	var parent command.ID
	if len(heads) == 0 {
		if fields.Kind() != command.KindInit {
			return nil, ErrNotInitialized
		}
	} else {
		parent = heads[len(heads)-1]
	}

	env, err := e.codec.Seal(fields, parent)
	if err != nil {
		return nil, err
	}
	sealed, err := envelope.Marshal(env)
	if err != nil {
		return nil, err
	}
	cmd := &command.Command{
		ID:     env.ID,
		Parent: parent,
		Author: env.Author,
		Fields: fields,
	}

	effects, err := e.apply(ctx, cmd, sealed, false)
	if err != nil {
		return nil, err
	}
	e.log.Info("local command accepted",
		"id", cmd.ID,
		"kind", fields.Kind(),
		"effects", len(effects))
	return effects, nil
}
