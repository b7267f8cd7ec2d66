package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"weftlabs/weft/pkg/command"
	"weftlabs/weft/pkg/config"
	"weftlabs/weft/pkg/envelope"
	"weftlabs/weft/pkg/graph"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect the stored command graph",
	Long: `Read-only inspection of the durable command graph.

Examples:
  # List all stored commands in append order
  weft graph show

  # Render ancestry as an indented tree
  weft graph show --tree

  # Show the current head frontier
  weft graph heads`,
}

var graphShowFlags struct {
	tree bool
}

var graphShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List stored commands",
	RunE:  showGraph,
}

var graphHeadsCmd = &cobra.Command{
	Use:   "heads",
	Short: "Show the head frontier",
	RunE:  showHeads,
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.AddCommand(graphShowCmd, graphHeadsCmd)
	graphShowCmd.Flags().BoolVar(&graphShowFlags.tree, "tree", false, "render parent/child ancestry instead of a flat list")
}

func openConfiguredGraphStore() (graph.Store, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return openGraphStore(cfg.Storage.Graph)
}

func showGraph(cmd *cobra.Command, args []string) error {
	store, err := openConfiguredGraphStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if graphShowFlags.tree {
		return renderTree(context.Background(), store, os.Stdout)
	}

	records, err := store.All(context.Background())
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("(empty graph)")
		return nil
	}

	fmt.Printf("%-16s %-16s %-16s %-10s %s\n", "ID", "PARENT", "AUTHOR", "STATE", "KIND")
	for _, rec := range records {
		parent := rec.Parent.String()
		if rec.Parent.IsSentinel() {
			parent = "(root)"
		}
		fmt.Printf("%-16s %-16s %-16s %-10s %s\n",
			shortID(rec.ID.String()),
			shortID(parent),
			rec.Author,
			rec.State,
			recordKind(rec))
	}
	fmt.Printf("\n%d command(s)\n", len(records))
	return nil
}

func showHeads(cmd *cobra.Command, args []string) error {
	store, err := openConfiguredGraphStore()
	if err != nil {
		return err
	}
	defer store.Close()

	heads, err := store.Heads(context.Background())
	if err != nil {
		return err
	}
	if len(heads) == 0 {
		fmt.Println("(no heads, graph is empty)")
		return nil
	}
	for _, head := range heads {
		fmt.Println(head)
	}
	return nil
}

// renderTree walks the parent index from the roots and prints each command
// indented under its parent. Children order by identifier so the layout is
// the same on every device holding the same commands.
func renderTree(ctx context.Context, store graph.Store, w io.Writer) error {
	records, err := store.All(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "(empty graph)")
		return nil
	}

	byID := make(map[command.ID]*graph.Record, len(records))
	var roots []command.ID
	for _, rec := range records {
		byID[rec.ID] = rec
		if rec.Parent.IsSentinel() {
			roots = append(roots, rec.ID)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].Less(roots[j]) })

	var walk func(id command.ID, depth int) error
	walk = func(id command.ID, depth int) error {
		rec, ok := byID[id]
		if !ok {
			return nil
		}
		fmt.Fprintf(w, "%s%s  [%s] %s\n",
			strings.Repeat("  ", depth),
			shortID(id.String()),
			rec.State,
			recordKind(rec))

		children, err := store.ChildrenOf(ctx, id)
		if err != nil {
			return err
		}
		sort.Slice(children, func(i, j int) bool { return children[i].Less(children[j]) })
		for _, child := range children {
			if err := walk(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	for _, root := range roots {
		if err := walk(root, 0); err != nil {
			return err
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 16 {
		return id[:16]
	}
	return id
}

// recordKind decodes just enough of the stored envelope to name the command
// kind. Verification is skipped; this is local inspection of local storage.
func recordKind(rec *graph.Record) string {
	env, err := envelope.Unmarshal(rec.Envelope)
	if err != nil {
		return "?"
	}
	fields, err := command.DecodePayload(env.Payload)
	if err != nil {
		return "?"
	}
	return string(fields.Kind())
}
