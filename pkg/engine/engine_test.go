package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"weftlabs/weft/pkg/command"
	"weftlabs/weft/pkg/envelope"
	"weftlabs/weft/pkg/facts"
	"weftlabs/weft/pkg/graph"
	"weftlabs/weft/pkg/identity"
	"weftlabs/weft/pkg/policy"
)

// device bundles an engine with its stores for assertions.
type device struct {
	engine  *Engine
	keys    *identity.Keystore
	facts   *facts.MemoryStore
	effects *[]policy.Effect
}

func newKeystore(t *testing.T) *identity.Keystore {
	t.Helper()
	keyPath := filepath.Join(t.TempDir(), "device.key")
	if _, err := identity.GenerateKeyFile(keyPath); err != nil {
		t.Fatalf("GenerateKeyFile failed: %v", err)
	}
	ks, err := identity.LoadKeystore(keyPath, "")
	if err != nil {
		t.Fatalf("LoadKeystore failed: %v", err)
	}
	return ks
}

func newDevice(t *testing.T) *device {
	t.Helper()
	ks := newKeystore(t)
	factStore := facts.NewMemoryStore()
	t.Cleanup(func() { factStore.Close() })

	var effects []policy.Effect
	eng, err := New(Options{
		Provider: ks,
		Graph:    graph.New(graph.NewMemoryStore(), nil),
		Facts:    factStore,
		OnEffect: func(e policy.Effect) { effects = append(effects, e) },
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return &device{engine: eng, keys: ks, facts: factStore, effects: &effects}
}

// trust makes d accept commands signed by other.
func (d *device) trust(other *device) {
	d.keys.AddTrustedKey(other.keys.PublicKey())
}

// sealedCommands returns every durable envelope in append order.
func (d *device) sealedCommands(t *testing.T) [][]byte {
	t.Helper()
	records, err := d.engine.graph.Store().All(context.Background())
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	out := make([][]byte, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Envelope)
	}
	return out
}

func (d *device) currentColor(t *testing.T) string {
	t.Helper()
	value, ok, err := d.facts.Get(context.Background(), policy.SchemaCurrentColor, facts.Key{})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		return ""
	}
	return value["color"]
}

func TestDispatchBeforeInitFails(t *testing.T) {
	d := newDevice(t)
	_, err := d.engine.Dispatch(context.Background(), command.PostMessageFields{Text: "hi"})
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Expected ErrNotInitialized, got %v", err)
	}
}

func TestDispatchInitAndActions(t *testing.T) {
	d := newDevice(t)
	ctx := context.Background()

	initEffects, err := d.engine.Dispatch(ctx, command.InitFields{Nonce: "n0"})
	if err != nil {
		t.Fatalf("Init dispatch failed: %v", err)
	}
	if len(initEffects) != 2 {
		t.Fatalf("Expected 2 init effects, got %d", len(initEffects))
	}
	if d.currentColor(t) != policy.ColorBlack {
		t.Errorf("Expected initial color, got %q", d.currentColor(t))
	}

	colorEffects, err := d.engine.Dispatch(ctx, command.SetAmbientColorFields{Color: "red"})
	if err != nil {
		t.Fatalf("SetAmbientColor dispatch failed: %v", err)
	}
	if len(colorEffects) != 1 {
		t.Fatalf("Expected 1 effect, got %d", len(colorEffects))
	}
	if changed, ok := colorEffects[0].(policy.AmbientColorChanged); !ok || changed.Color != "red" {
		t.Errorf("Expected AmbientColorChanged(red), got %+v", colorEffects[0])
	}
	if d.currentColor(t) != "red" {
		t.Errorf("Expected red, got %q", d.currentColor(t))
	}

	heads, err := d.engine.Heads(ctx)
	if err != nil {
		t.Fatalf("Heads failed: %v", err)
	}
	if len(heads) != 1 {
		t.Errorf("Linear dispatch should keep one head, got %v", heads)
	}
}

func TestDispatchRejectionLeavesNoTrace(t *testing.T) {
	d := newDevice(t)
	ctx := context.Background()

	if _, err := d.engine.Dispatch(ctx, command.InitFields{Nonce: "n0"}); err != nil {
		t.Fatalf("Init dispatch failed: %v", err)
	}
	headsBefore, _ := d.engine.Heads(ctx)

	_, err := d.engine.Dispatch(ctx, command.SetAmbientColorFields{Color: ""})
	var rej *policy.Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("Expected rejection, got %v", err)
	}

	headsAfter, _ := d.engine.Heads(ctx)
	if len(headsAfter) != len(headsBefore) || headsAfter[0] != headsBefore[0] {
		t.Errorf("Rejected local command must not move heads: %v vs %v", headsBefore, headsAfter)
	}
	if len(d.sealedCommands(t)) != 1 {
		t.Errorf("Rejected local command must not be stored")
	}
}

func TestRemoteIngestConverges(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t)
	b := newDevice(t)
	b.trust(a)

	if _, err := a.engine.Dispatch(ctx, command.InitFields{Nonce: "n0"}); err != nil {
		t.Fatalf("Init dispatch failed: %v", err)
	}
	if _, err := a.engine.Dispatch(ctx, command.SetAmbientColorFields{Color: "red"}); err != nil {
		t.Fatalf("SetAmbientColor dispatch failed: %v", err)
	}

	for _, sealed := range a.sealedCommands(t) {
		if err := b.engine.IngestRemote(ctx, sealed, "a"); err != nil {
			t.Fatalf("IngestRemote failed: %v", err)
		}
	}

	if b.currentColor(t) != "red" {
		t.Errorf("Expected replicated color red, got %q", b.currentColor(t))
	}
	if len(*b.effects) == 0 {
		t.Error("Expected effects delivered for replicated commands")
	}

	aHeads, _ := a.engine.Heads(ctx)
	bHeads, _ := b.engine.Heads(ctx)
	if len(aHeads) != len(bHeads) || aHeads[0] != bHeads[0] {
		t.Errorf("Heads diverged: %v vs %v", aHeads, bHeads)
	}
}

func TestDuplicateIngestIsIgnored(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t)
	b := newDevice(t)
	b.trust(a)

	if _, err := a.engine.Dispatch(ctx, command.InitFields{Nonce: "n0"}); err != nil {
		t.Fatalf("Init dispatch failed: %v", err)
	}
	sealed := a.sealedCommands(t)[0]

	for i := 0; i < 3; i++ {
		if err := b.engine.IngestRemote(ctx, sealed, "a"); err != nil {
			t.Fatalf("IngestRemote failed: %v", err)
		}
	}
	if got := len(b.sealedCommands(t)); got != 1 {
		t.Errorf("Expected 1 stored command, got %d", got)
	}
}

func TestRemoteRejectionRecordedAndIdempotent(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t)
	b := newDevice(t)
	outsider := newDevice(t)
	b.trust(a)
	b.trust(outsider)

	if _, err := a.engine.Dispatch(ctx, command.InitFields{Nonce: "n0"}); err != nil {
		t.Fatalf("Init dispatch failed: %v", err)
	}
	if err := b.engine.IngestRemote(ctx, a.sealedCommands(t)[0], "a"); err != nil {
		t.Fatalf("IngestRemote failed: %v", err)
	}
	headsBefore, _ := b.engine.Heads(ctx)

	// A correctly signed command from an author no AddAuthor ever admitted:
	// it verifies but fails policy.
	env, err := envelope.NewCodec(outsider.keys).Seal(command.PostMessageFields{Text: "hi"}, headsBefore[0])
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	sealed, err := envelope.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	if err := b.engine.IngestRemote(ctx, sealed, "outsider"); err != nil {
		t.Fatalf("IngestRemote of failing command must not error: %v", err)
	}

	state, known, err := b.engine.graph.Status(ctx, env.ID)
	if err != nil || !known {
		t.Fatalf("Rejected command must be durably known, known=%v err=%v", known, err)
	}
	if state != graph.StateRejected {
		t.Fatalf("Expected StateRejected, got %v", state)
	}
	headsAfter, _ := b.engine.Heads(ctx)
	if len(headsAfter) != 1 || headsAfter[0] != headsBefore[0] {
		t.Errorf("Rejected command must not join the frontier: %v", headsAfter)
	}
	effectsBefore := len(*b.effects)

	// The identifier is consumed: re-delivery changes nothing and stays
	// quiet.
	for i := 0; i < 3; i++ {
		if err := b.engine.IngestRemote(ctx, sealed, "outsider"); err != nil {
			t.Fatalf("Re-delivery failed: %v", err)
		}
	}
	if got := len(b.sealedCommands(t)); got != 2 {
		t.Errorf("Expected 2 stored records after re-delivery, got %d", got)
	}
	if len(*b.effects) != effectsBefore {
		t.Errorf("Re-delivered rejected command emitted effects: %d vs %d", len(*b.effects), effectsBefore)
	}
	if b.currentColor(t) != policy.ColorBlack {
		t.Errorf("Fact state moved on a rejected command: %q", b.currentColor(t))
	}
}

func TestOutOfOrderIngestWaitsForAncestor(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t)
	b := newDevice(t)
	b.trust(a)

	if _, err := a.engine.Dispatch(ctx, command.InitFields{Nonce: "n0"}); err != nil {
		t.Fatalf("Init dispatch failed: %v", err)
	}
	if _, err := a.engine.Dispatch(ctx, command.SetAmbientColorFields{Color: "red"}); err != nil {
		t.Fatalf("SetAmbientColor dispatch failed: %v", err)
	}
	sealed := a.sealedCommands(t)

	// Child first: it must wait, invisible in fact state.
	if err := b.engine.IngestRemote(ctx, sealed[1], "a"); err != nil {
		t.Fatalf("IngestRemote failed: %v", err)
	}
	if b.currentColor(t) != "" {
		t.Errorf("Pending command leaked into facts: %q", b.currentColor(t))
	}
	if len(b.engine.MissingAncestors()) != 1 {
		t.Fatalf("Expected 1 missing ancestor, got %v", b.engine.MissingAncestors())
	}

	// Parent arrives: both evaluate.
	if err := b.engine.IngestRemote(ctx, sealed[0], "a"); err != nil {
		t.Fatalf("IngestRemote failed: %v", err)
	}
	if b.currentColor(t) != "red" {
		t.Errorf("Expected red after ancestor arrived, got %q", b.currentColor(t))
	}
	if len(b.engine.MissingAncestors()) != 0 {
		t.Errorf("Expected no missing ancestors, got %v", b.engine.MissingAncestors())
	}
}

func TestUnknownAuthorHeldUntilKeyLoads(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t)
	b := newDevice(t)
	// No trust yet.

	if _, err := a.engine.Dispatch(ctx, command.InitFields{Nonce: "n0"}); err != nil {
		t.Fatalf("Init dispatch failed: %v", err)
	}
	sealed := a.sealedCommands(t)[0]

	if err := b.engine.IngestRemote(ctx, sealed, "a"); err != nil {
		t.Fatalf("IngestRemote failed: %v", err)
	}
	if b.engine.HeldCount() != 1 {
		t.Fatalf("Expected 1 held envelope, got %d", b.engine.HeldCount())
	}
	if got := len(b.sealedCommands(t)); got != 0 {
		t.Fatalf("Held envelope must not be stored, got %d records", got)
	}

	author := b.keys.AddTrustedKey(a.keys.PublicKey())
	b.engine.AuthorKeyLoaded(ctx, author)

	if b.engine.HeldCount() != 0 {
		t.Errorf("Expected buffer drained, got %d", b.engine.HeldCount())
	}
	if got := len(b.sealedCommands(t)); got != 1 {
		t.Errorf("Expected held command ingested, got %d records", got)
	}
}

func TestDivergedDevicesConvergeAfterExchange(t *testing.T) {
	ctx := context.Background()
	a := newDevice(t)
	b := newDevice(t)
	a.trust(b)
	b.trust(a)

	if _, err := a.engine.Dispatch(ctx, command.InitFields{Nonce: "n0"}); err != nil {
		t.Fatalf("Init dispatch failed: %v", err)
	}
	if _, err := a.engine.Dispatch(ctx, command.AddAuthorFields{Author: b.keys.CurrentAuthor(), Name: "b"}); err != nil {
		t.Fatalf("AddAuthor dispatch failed: %v", err)
	}
	for _, sealed := range a.sealedCommands(t) {
		if err := b.engine.IngestRemote(ctx, sealed, "a"); err != nil {
			t.Fatalf("IngestRemote failed: %v", err)
		}
	}

	// Partitioned: each device moves the color on its own.
	if _, err := a.engine.Dispatch(ctx, command.SetAmbientColorFields{Color: "red"}); err != nil {
		t.Fatalf("Dispatch on a failed: %v", err)
	}
	if _, err := b.engine.Dispatch(ctx, command.SetAmbientColorFields{Color: "blue"}); err != nil {
		t.Fatalf("Dispatch on b failed: %v", err)
	}

	// Reconnect: exchange everything both ways.
	for _, sealed := range a.sealedCommands(t) {
		if err := b.engine.IngestRemote(ctx, sealed, "a"); err != nil {
			t.Fatalf("IngestRemote into b failed: %v", err)
		}
	}
	for _, sealed := range b.sealedCommands(t) {
		if err := a.engine.IngestRemote(ctx, sealed, "b"); err != nil {
			t.Fatalf("IngestRemote into a failed: %v", err)
		}
	}

	aColor := a.currentColor(t)
	bColor := b.currentColor(t)
	if aColor != bColor {
		t.Fatalf("Devices did not converge: %q vs %q", aColor, bColor)
	}
	if aColor != "red" && aColor != "blue" {
		t.Fatalf("Converged color must be one of the dispatched values, got %q", aColor)
	}

	aHeads, _ := a.engine.Heads(ctx)
	bHeads, _ := b.engine.Heads(ctx)
	if len(aHeads) != 2 || len(bHeads) != 2 {
		t.Errorf("Expected 2 heads on both after merge, got %v and %v", aHeads, bHeads)
	}
}

func TestRestartReplayRebuildsFactsWithoutEffects(t *testing.T) {
	ctx := context.Background()
	ks := newKeystore(t)
	graphPath := filepath.Join(t.TempDir(), "graph.db")

	openGraph := func() *graph.SQLiteStore {
		store, err := graph.NewSQLiteStore(graph.SQLiteConfig{Path: graphPath})
		if err != nil {
			t.Fatalf("NewSQLiteStore failed: %v", err)
		}
		return store
	}

	// First run: build up state.
	store := openGraph()
	factStore := facts.NewMemoryStore()
	eng, err := New(Options{Provider: ks, Graph: graph.New(store, nil), Facts: factStore})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := eng.Dispatch(ctx, command.InitFields{Nonce: "n0"}); err != nil {
		t.Fatalf("Init dispatch failed: %v", err)
	}
	if _, err := eng.Dispatch(ctx, command.SetAmbientColorFields{Color: "red"}); err != nil {
		t.Fatalf("SetAmbientColor dispatch failed: %v", err)
	}
	eng.Close()
	factStore.Close()
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Second run: facts are rebuilt from the durable graph, effects stay
	// quiet.
	var replayed []policy.Effect
	store = openGraph()
	defer store.Close()
	freshFacts := facts.NewMemoryStore()
	defer freshFacts.Close()
	eng2, err := New(Options{
		Provider: ks,
		Graph:    graph.New(store, nil),
		Facts:    freshFacts,
		OnEffect: func(e policy.Effect) { replayed = append(replayed, e) },
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := eng2.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	value, ok, err := freshFacts.Get(ctx, policy.SchemaCurrentColor, facts.Key{})
	if err != nil || !ok {
		t.Fatalf("Expected color fact after replay, ok=%v err=%v", ok, err)
	}
	if value["color"] != "red" {
		t.Errorf("Expected red after replay, got %v", value)
	}
	if len(replayed) != 0 {
		t.Errorf("Restart replay must not re-deliver effects, got %v", replayed)
	}
}

func TestCanonicalOrderIsDeterministic(t *testing.T) {
	root := &graph.Record{ID: command.DeriveID([]byte("root")), Parent: command.Sentinel}
	left := &graph.Record{ID: command.DeriveID([]byte("left")), Parent: root.ID}
	right := &graph.Record{ID: command.DeriveID([]byte("right")), Parent: root.ID}

	a := canonicalOrder([]*graph.Record{root, left, right})
	b := canonicalOrder([]*graph.Record{right, root, left})

	if len(a) != 3 || len(b) != 3 {
		t.Fatalf("Expected full orders, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("Order differs at %d: %s vs %s", i, a[i].ID, b[i].ID)
		}
	}
	if a[0].ID != root.ID {
		t.Errorf("Root must order first, got %s", a[0].ID)
	}
	// Siblings order by identifier.
	if !a[1].ID.Less(a[2].ID) {
		t.Error("Concurrent siblings must order by identifier")
	}
}
