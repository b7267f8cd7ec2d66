package policy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"weftlabs/weft/pkg/command"
	"weftlabs/weft/pkg/facts"
)

// Fact schemas maintained by the built-in rule set.
const (
	// SchemaMember holds one fact per authorized author, keyed by author
	// identifier.
	SchemaMember = "Member"

	// SchemaCurrentColor holds the singleton ambient color fact.
	SchemaCurrentColor = "CurrentColor"
)

// ColorBlack is the ambient color established by graph initialization.
const ColorBlack = "black"

// Evaluator applies the rule set to commands. Evaluation is deterministic:
// verdicts, mutations, and effects depend only on the command and the fact
// state presented through the transaction. The evaluator never consults the
// clock, randomness, or anything outside its arguments, so every device
// replaying the same commands in the same order reaches the same state.
type Evaluator struct {
	log *slog.Logger
}

// NewEvaluator creates an evaluator. A nil logger disables logging.
func NewEvaluator(log *slog.Logger) *Evaluator {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Evaluator{log: log}
}

// Evaluate runs the command through its rule. On acceptance it returns nil
// with mutations buffered in tx and effects staged in sink; the caller
// commits the transaction and then the sink so both land together. On a rule
// failure it returns a *Rejection with the sink already rolled back; the
// caller discards the transaction. Any other error is an infrastructure
// fault and leaves no partial state behind.
func (e *Evaluator) Evaluate(ctx context.Context, cmd *command.Command, tx *facts.Tx, sink Sink) error {
	sink.Begin()

	err := e.apply(ctx, cmd, tx, sink)
	if err != nil {
		sink.Rollback()
		var rej *Rejection
		if errors.As(err, &rej) {
			e.log.Debug("command rejected",
				"command", cmd.ID,
				"kind", cmd.Fields.Kind(),
				"reason", rej.Reason)
		}
		return err
	}

	e.log.Debug("command accepted", "command", cmd.ID, "kind", cmd.Fields.Kind())
	return nil
}

// apply dispatches on the command kind. The switch is closed: an envelope
// with an unmapped kind never gets this far because payload decoding fails
// first, so an unknown type here is a programming error.
func (e *Evaluator) apply(ctx context.Context, cmd *command.Command, tx *facts.Tx, sink Sink) error {
	if cmd.Parent.IsSentinel() {
		if _, ok := cmd.Fields.(command.InitFields); !ok {
			return reject(cmd, "only %s commands may start a graph", command.KindInit)
		}
	}

	switch fields := cmd.Fields.(type) {
	case command.InitFields:
		return e.applyInit(ctx, cmd, tx, sink)
	case command.AddAuthorFields:
		return e.applyAddAuthor(ctx, cmd, fields, tx, sink)
	case command.SetAmbientColorFields:
		return e.applySetAmbientColor(ctx, cmd, fields, tx, sink)
	case command.PostMessageFields:
		return e.applyPostMessage(ctx, cmd, fields, tx, sink)
	default:
		return fmt.Errorf("policy: no rule for command type %T", cmd.Fields)
	}
}

// applyInit establishes the graph: the creator becomes the first member and
// the ambient color fact is created at its initial value.
func (e *Evaluator) applyInit(ctx context.Context, cmd *command.Command, tx *facts.Tx, sink Sink) error {
	if !cmd.Parent.IsSentinel() {
		return reject(cmd, "init must be the first command in a graph")
	}

	member := facts.Value{"name": "owner"}
	if err := tx.Create(ctx, SchemaMember, facts.Key{string(cmd.Author)}, member); err != nil {
		if errors.Is(err, facts.ErrExists) {
			return reject(cmd, "graph already initialized")
		}
		return err
	}
	if err := tx.Create(ctx, SchemaCurrentColor, facts.Key{}, facts.Value{"color": ColorBlack}); err != nil {
		if errors.Is(err, facts.ErrExists) {
			return reject(cmd, "graph already initialized")
		}
		return err
	}

	sink.Consume(AuthorAdded{Author: cmd.Author, Name: "owner"})
	sink.Consume(AmbientColorChanged{Color: ColorBlack})
	return nil
}

// applyAddAuthor admits a new author. Only existing members may add authors,
// and an author cannot be admitted twice.
func (e *Evaluator) applyAddAuthor(ctx context.Context, cmd *command.Command, fields command.AddAuthorFields, tx *facts.Tx, sink Sink) error {
	if err := e.requireMember(ctx, cmd, tx); err != nil {
		return err
	}
	if fields.Author == "" {
		return reject(cmd, "author identifier is empty")
	}

	member := facts.Value{"name": fields.Name}
	if err := tx.Create(ctx, SchemaMember, facts.Key{string(fields.Author)}, member); err != nil {
		if errors.Is(err, facts.ErrExists) {
			return reject(cmd, "author %s is already a member", fields.Author)
		}
		return err
	}

	sink.Consume(AuthorAdded{Author: fields.Author, Name: fields.Name})
	return nil
}

// applySetAmbientColor moves the singleton color fact and reports the change.
func (e *Evaluator) applySetAmbientColor(ctx context.Context, cmd *command.Command, fields command.SetAmbientColorFields, tx *facts.Tx, sink Sink) error {
	if err := e.requireMember(ctx, cmd, tx); err != nil {
		return err
	}
	if fields.Color == "" {
		return reject(cmd, "color is empty")
	}

	if err := tx.Update(ctx, SchemaCurrentColor, facts.Key{}, nil, facts.Value{"color": fields.Color}); err != nil {
		if errors.Is(err, facts.ErrNotFound) {
			return reject(cmd, "graph has no ambient color")
		}
		return err
	}

	sink.Consume(AmbientColorChanged{Color: fields.Color})
	return nil
}

// applyPostMessage broadcasts a message. It touches no facts; the verdict
// still depends on fact state through the membership check.
func (e *Evaluator) applyPostMessage(ctx context.Context, cmd *command.Command, fields command.PostMessageFields, tx *facts.Tx, sink Sink) error {
	if err := e.requireMember(ctx, cmd, tx); err != nil {
		return err
	}
	if fields.Text == "" {
		return reject(cmd, "message text is empty")
	}

	sink.Consume(MessagePosted{Author: cmd.Author, Text: fields.Text})
	return nil
}

// requireMember rejects commands whose author is not in the member set.
func (e *Evaluator) requireMember(ctx context.Context, cmd *command.Command, tx *facts.Tx) error {
	_, ok, err := tx.Query(ctx, SchemaMember, facts.Key{string(cmd.Author)})
	if err != nil {
		return err
	}
	if !ok {
		return reject(cmd, "author %s is not a member", cmd.Author)
	}
	return nil
}
