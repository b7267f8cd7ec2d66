package policy

import (
	"context"
	"errors"
	"testing"

	"weftlabs/weft/pkg/command"
	"weftlabs/weft/pkg/facts"
	"weftlabs/weft/pkg/identity"
)

const (
	ownerAuthor = identity.AuthorID("aaaa000000000000")
	guestAuthor = identity.AuthorID("bbbb000000000000")
)

func newCommand(seed string, parent command.ID, author identity.AuthorID, fields command.Fields) *command.Command {
	return &command.Command{
		ID:     command.DeriveID([]byte(seed)),
		Parent: parent,
		Author: author,
		Fields: fields,
	}
}

// initGraph evaluates and commits an init command, returning the live store.
func initGraph(t *testing.T) facts.Store {
	t.Helper()
	store := facts.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	eval := NewEvaluator(nil)
	sink := NewVecSink()
	tx := facts.NewTx(store)
	cmd := newCommand("init", command.Sentinel, ownerAuthor, command.InitFields{Nonce: "n0"})
	if err := eval.Evaluate(context.Background(), cmd, tx, sink); err != nil {
		t.Fatalf("Init evaluation failed: %v", err)
	}
	if err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	sink.Commit()
	return store
}

func TestInitEstablishesMemberAndColor(t *testing.T) {
	store := facts.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	eval := NewEvaluator(nil)
	sink := NewVecSink()
	tx := facts.NewTx(store)
	cmd := newCommand("init", command.Sentinel, ownerAuthor, command.InitFields{Nonce: "n0"})

	if err := eval.Evaluate(ctx, cmd, tx, sink); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	sink.Commit()

	member, ok, err := store.Get(ctx, SchemaMember, facts.Key{string(ownerAuthor)})
	if err != nil || !ok {
		t.Fatalf("Expected member fact for creator, ok=%v err=%v", ok, err)
	}
	if member["name"] != "owner" {
		t.Errorf("Unexpected member value: %v", member)
	}

	color, ok, err := store.Get(ctx, SchemaCurrentColor, facts.Key{})
	if err != nil || !ok {
		t.Fatalf("Expected color fact, ok=%v err=%v", ok, err)
	}
	if color["color"] != ColorBlack {
		t.Errorf("Expected initial color %q, got %v", ColorBlack, color)
	}

	effects := sink.Effects()
	if len(effects) != 2 {
		t.Fatalf("Expected 2 effects, got %d", len(effects))
	}
	if _, ok := effects[0].(AuthorAdded); !ok {
		t.Errorf("Expected AuthorAdded first, got %T", effects[0])
	}
	if changed, ok := effects[1].(AmbientColorChanged); !ok || changed.Color != ColorBlack {
		t.Errorf("Expected AmbientColorChanged(%s), got %+v", ColorBlack, effects[1])
	}
}

func TestInitMustBeFirstCommand(t *testing.T) {
	store := initGraph(t)
	eval := NewEvaluator(nil)

	parent := command.DeriveID([]byte("init"))
	cmd := newCommand("init-again", parent, ownerAuthor, command.InitFields{Nonce: "n1"})

	sink := NewVecSink()
	tx := facts.NewTx(store)
	err := eval.Evaluate(context.Background(), cmd, tx, sink)
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("Expected rejection, got %v", err)
	}
	tx.Discard()

	if len(sink.Effects()) != 0 {
		t.Errorf("Rejected command must emit no effects, got %v", sink.Effects())
	}
}

func TestOnlyInitMayStartGraph(t *testing.T) {
	store := facts.NewMemoryStore()
	defer store.Close()
	eval := NewEvaluator(nil)

	cmd := newCommand("stray", command.Sentinel, ownerAuthor, command.PostMessageFields{Text: "hi"})
	sink := NewVecSink()
	tx := facts.NewTx(store)
	err := eval.Evaluate(context.Background(), cmd, tx, sink)
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("Expected rejection for non-init at graph start, got %v", err)
	}
}

func TestNonMemberIsRejected(t *testing.T) {
	store := initGraph(t)
	eval := NewEvaluator(nil)
	parent := command.DeriveID([]byte("init"))

	cases := []struct {
		name   string
		fields command.Fields
	}{
		{"set-color", command.SetAmbientColorFields{Color: "red"}},
		{"post-message", command.PostMessageFields{Text: "hello"}},
		{"add-author", command.AddAuthorFields{Author: "cccc000000000000", Name: "eve"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := newCommand(tc.name, parent, guestAuthor, tc.fields)
			sink := NewVecSink()
			tx := facts.NewTx(store)
			err := eval.Evaluate(context.Background(), cmd, tx, sink)
			var rej *Rejection
			if !errors.As(err, &rej) {
				t.Fatalf("Expected rejection for non-member, got %v", err)
			}
			if rej.Command != cmd.ID {
				t.Errorf("Rejection names wrong command: %s", rej.Command)
			}
			tx.Discard()
		})
	}
}

func TestAddAuthorAdmitsAndRejectsDuplicates(t *testing.T) {
	store := initGraph(t)
	ctx := context.Background()
	eval := NewEvaluator(nil)
	parent := command.DeriveID([]byte("init"))

	add := newCommand("add", parent, ownerAuthor, command.AddAuthorFields{Author: guestAuthor, Name: "guest"})
	sink := NewVecSink()
	tx := facts.NewTx(store)
	if err := eval.Evaluate(ctx, add, tx, sink); err != nil {
		t.Fatalf("AddAuthor evaluation failed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	sink.Commit()

	if _, ok, _ := store.Get(ctx, SchemaMember, facts.Key{string(guestAuthor)}); !ok {
		t.Fatal("Expected member fact for admitted author")
	}

	// The guest is now a member and can act.
	post := newCommand("post", add.ID, guestAuthor, command.PostMessageFields{Text: "hello"})
	sink = NewVecSink()
	tx = facts.NewTx(store)
	if err := eval.Evaluate(ctx, post, tx, sink); err != nil {
		t.Fatalf("Member's command rejected: %v", err)
	}
	tx.Discard()

	// Admitting the same author twice fails.
	dup := newCommand("add-dup", add.ID, ownerAuthor, command.AddAuthorFields{Author: guestAuthor, Name: "guest"})
	sink = NewVecSink()
	tx = facts.NewTx(store)
	err := eval.Evaluate(ctx, dup, tx, sink)
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("Expected rejection for duplicate member, got %v", err)
	}
	tx.Discard()
}

func TestSetAmbientColorMovesSingleton(t *testing.T) {
	store := initGraph(t)
	ctx := context.Background()
	eval := NewEvaluator(nil)
	parent := command.DeriveID([]byte("init"))

	cmd := newCommand("to-red", parent, ownerAuthor, command.SetAmbientColorFields{Color: "red"})
	sink := NewVecSink()
	tx := facts.NewTx(store)
	if err := eval.Evaluate(ctx, cmd, tx, sink); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	sink.Commit()

	color, ok, err := store.Get(ctx, SchemaCurrentColor, facts.Key{})
	if err != nil || !ok {
		t.Fatalf("Expected color fact, ok=%v err=%v", ok, err)
	}
	if color["color"] != "red" {
		t.Errorf("Expected color red, got %v", color)
	}

	effects := sink.Effects()
	if len(effects) != 1 {
		t.Fatalf("Expected 1 effect, got %d", len(effects))
	}
	if changed, ok := effects[0].(AmbientColorChanged); !ok || changed.Color != "red" {
		t.Errorf("Expected AmbientColorChanged(red), got %+v", effects[0])
	}
}

func TestRejectionLeavesFactsUntouched(t *testing.T) {
	store := initGraph(t)
	ctx := context.Background()
	eval := NewEvaluator(nil)
	parent := command.DeriveID([]byte("init"))

	cmd := newCommand("empty-color", parent, ownerAuthor, command.SetAmbientColorFields{Color: ""})
	sink := NewVecSink()
	tx := facts.NewTx(store)
	err := eval.Evaluate(ctx, cmd, tx, sink)
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("Expected rejection, got %v", err)
	}
	tx.Discard()

	color, _, _ := store.Get(ctx, SchemaCurrentColor, facts.Key{})
	if color["color"] != ColorBlack {
		t.Errorf("Rejected command must not change facts, got %v", color)
	}
	if len(sink.Effects()) != 0 {
		t.Errorf("Rejected command must emit no effects, got %v", sink.Effects())
	}
}

func TestEmptyMessageIsRejected(t *testing.T) {
	store := initGraph(t)
	eval := NewEvaluator(nil)
	parent := command.DeriveID([]byte("init"))

	cmd := newCommand("empty-post", parent, ownerAuthor, command.PostMessageFields{Text: ""})
	sink := NewVecSink()
	tx := facts.NewTx(store)
	err := eval.Evaluate(context.Background(), cmd, tx, sink)
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("Expected rejection for empty message, got %v", err)
	}
	tx.Discard()
}

func TestVecSinkRollbackDropsStagedEffects(t *testing.T) {
	sink := NewVecSink()

	sink.Begin()
	sink.Consume(MessagePosted{Author: ownerAuthor, Text: "kept"})
	sink.Commit()

	sink.Begin()
	sink.Consume(MessagePosted{Author: ownerAuthor, Text: "dropped"})
	sink.Rollback()

	effects := sink.Effects()
	if len(effects) != 1 {
		t.Fatalf("Expected 1 committed effect, got %d", len(effects))
	}
	if posted := effects[0].(MessagePosted); posted.Text != "kept" {
		t.Errorf("Wrong effect survived: %+v", posted)
	}
}
