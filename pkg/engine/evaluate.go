package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"weftlabs/weft/pkg/command"
	"weftlabs/weft/pkg/envelope"
	"weftlabs/weft/pkg/facts"
	"weftlabs/weft/pkg/graph"
	"weftlabs/weft/pkg/policy"
)

// apply evaluates a verified command whose ancestor chain is complete and
// records the verdict. Accepted commands land in canonical-order position:
// when that position is at the end of the order the command is evaluated
// incrementally, otherwise derived state is rebuilt by full replay so every
// verdict after the merge point is recomputed.
func (e *Engine) apply(ctx context.Context, cmd *command.Command, sealed []byte, recordRejection bool) ([]policy.Effect, error) {
	records, err := e.graph.Store().All(ctx)
	if err != nil {
		return nil, err
	}

	candidate := &graph.Record{
		ID:       cmd.ID,
		Parent:   cmd.Parent,
		Author:   cmd.Author,
		State:    graph.StatePending,
		Envelope: sealed,
	}
	order := canonicalOrder(append(records, candidate))

	if order[len(order)-1].ID == cmd.ID {
		return e.applyInOrder(ctx, cmd, sealed, recordRejection)
	}
	return e.applyMerged(ctx, cmd, sealed, order, recordRejection)
}

// applyInOrder evaluates a command that extends the canonical order, against
// the live fact state.
func (e *Engine) applyInOrder(ctx context.Context, cmd *command.Command, sealed []byte, recordRejection bool) ([]policy.Effect, error) {
	tx := facts.NewTx(e.facts)
	sink := policy.NewVecSink()

	start := time.Now()
	evalErr := e.eval.Evaluate(ctx, cmd, tx, sink)
	e.metrics.RecordEvaluation(string(cmd.Fields.Kind()), evalErr == nil, time.Since(start))

	if evalErr != nil {
		tx.Discard()
		var rej *policy.Rejection
		if !errors.As(evalErr, &rej) {
			return nil, evalErr
		}
		if recordRejection {
			if err := e.graph.AppendRejected(ctx, cmd, sealed); err != nil {
				return nil, err
			}
			e.metrics.RecordAppend(graph.StateRejected.String())
			e.drainReleased(ctx, cmd.ID)
		}
		return nil, evalErr
	}

	if err := e.graph.AppendAccepted(ctx, cmd, sealed); err != nil {
		tx.Discard()
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	sink.Commit()
	e.metrics.RecordAppend(graph.StateAccepted.String())
	e.updateHeadMetrics(ctx)

	effects := e.deliverEffects(cmd.ID, sink.Effects(), false)
	e.drainReleased(ctx, cmd.ID)
	return effects, nil
}

// applyMerged handles a command whose canonical position precedes commands
// already evaluated: derived state is cleared and the whole order replayed,
// recomputing every verdict. Effects already delivered in an earlier pass
// are filtered out by their digest, so the application sees each distinct
// effect once.
func (e *Engine) applyMerged(ctx context.Context, cmd *command.Command, sealed []byte, order []*graph.Record, recordRejection bool) ([]policy.Effect, error) {
	e.log.Debug("out-of-order merge, replaying graph",
		"command", cmd.ID,
		"commands", len(order))

	fresh := map[command.ID]*command.Command{cmd.ID: cmd}
	verdicts, freshEffects, err := e.replay(ctx, order, fresh, false)
	if err != nil {
		return nil, err
	}

	// The graph append follows the fact replay; if it fails here the fact
	// store is ahead of the graph until the next restart replay heals it.
	verdict := verdicts[cmd.ID]
	if verdict == nil {
		if err := e.graph.AppendAccepted(ctx, cmd, sealed); err != nil {
			return nil, err
		}
		e.metrics.RecordAppend(graph.StateAccepted.String())
	} else if recordRejection {
		if err := e.graph.AppendRejected(ctx, cmd, sealed); err != nil {
			return nil, err
		}
		e.metrics.RecordAppend(graph.StateRejected.String())
	}
	if verdict == nil || recordRejection {
		e.updateHeadMetrics(ctx)
		e.drainReleased(ctx, cmd.ID)
	}
	return freshEffects[cmd.ID], verdict
}

// replay clears derived state and re-evaluates the given canonical order
// from scratch. Commands in fresh are evaluated from their decoded form;
// everything else is reopened from stored envelope bytes. Verdicts and
// effects are returned for fresh commands only. With suppress set, effects
// are marked delivered without being handed to the application, which is
// the restart case.
func (e *Engine) replay(ctx context.Context, order []*graph.Record, fresh map[command.ID]*command.Command, suppress bool) (map[command.ID]error, map[command.ID][]policy.Effect, error) {
	if err := e.facts.Clear(ctx); err != nil {
		return nil, nil, err
	}

	verdicts := make(map[command.ID]error, len(fresh))
	freshEffects := make(map[command.ID][]policy.Effect, len(fresh))

	for _, rec := range order {
		cmd, ok := fresh[rec.ID]
		if !ok {
			var err error
			cmd, err = e.reopen(rec)
			if err != nil {
				// A stored envelope that no longer opens is skipped:
				// it contributed nothing durable beyond its record.
				e.log.Warn("stored envelope failed to reopen", "id", rec.ID, "error", err)
				continue
			}
		}

		tx := facts.NewTx(e.facts)
		sink := policy.NewVecSink()
		evalErr := e.eval.Evaluate(ctx, cmd, tx, sink)
		if evalErr != nil {
			tx.Discard()
			var rej *policy.Rejection
			if !errors.As(evalErr, &rej) {
				return nil, nil, evalErr
			}
			if _, isFresh := fresh[rec.ID]; isFresh {
				verdicts[rec.ID] = evalErr
			}
			continue
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, nil, err
		}
		sink.Commit()

		delivered := e.deliverEffects(cmd.ID, sink.Effects(), suppress)
		if _, isFresh := fresh[rec.ID]; isFresh {
			verdicts[rec.ID] = nil
			freshEffects[rec.ID] = delivered
		}
	}
	return verdicts, freshEffects, nil
}

// reopen decodes and re-verifies a stored envelope.
func (e *Engine) reopen(rec *graph.Record) (*command.Command, error) {
	env, err := envelope.Unmarshal(rec.Envelope)
	if err != nil {
		return nil, err
	}
	return e.codec.Open(env)
}

// deliverEffects hands previously unseen effects to the application and
// returns them. Digests make delivery exactly-once across replays: a replay
// that recomputes the same effect for the same command skips it, while a
// merge that changes a command's effects delivers the new ones.
func (e *Engine) deliverEffects(id command.ID, effects []policy.Effect, suppress bool) []policy.Effect {
	var out []policy.Effect
	for i, effect := range effects {
		key := effectKey(id, i, effect)
		if e.delivered[key] {
			continue
		}
		e.delivered[key] = true
		if suppress {
			continue
		}
		out = append(out, effect)
		if e.onEffect != nil {
			e.onEffect(effect)
		}
	}
	if len(out) > 0 {
		e.metrics.RecordEffects(len(out))
	}
	return out
}

func effectKey(id command.ID, index int, effect policy.Effect) string {
	payload, err := json.Marshal(effect)
	if err != nil {
		payload = []byte(fmt.Sprintf("%+v", effect))
	}
	return fmt.Sprintf("%s/%d/%s/%s", id, index, effect.EffectKind(), payload)
}

// drainReleased re-ingests pending commands that were waiting on the given
// identifier, now that it is durable.
func (e *Engine) drainReleased(ctx context.Context, id command.ID) {
	released := e.graph.Release(id)
	if len(released) == 0 {
		return
	}
	e.metrics.SetPending(e.graph.PendingCount())

	for _, env := range released {
		cmd, err := e.codec.Open(env)
		if err != nil {
			e.log.Warn("released envelope failed verification", "id", env.ID, "error", err)
			continue
		}
		sealed, err := envelope.Marshal(env)
		if err != nil {
			e.log.Warn("released envelope failed to encode", "id", env.ID, "error", err)
			continue
		}
		if err := e.ingestVerified(ctx, cmd, env, sealed); err != nil {
			e.log.Warn("released command failed", "id", env.ID, "error", err)
		}
	}
}

// updateHeadMetrics refreshes the head gauge after an append.
func (e *Engine) updateHeadMetrics(ctx context.Context) {
	heads, err := e.graph.Heads(ctx)
	if err != nil {
		return
	}
	e.metrics.SetHeads(len(heads))
}
