package schema

import (
	"testing"

	"github.com/spf13/cobra"
)

func testTree() *cobra.Command {
	root := &cobra.Command{Use: "sonichash"}
	root.PersistentFlags().String("persona-dir", "", "persona directory")
	child := &cobra.Command{Use: "actions", Short: "action commands"}
	leaf := &cobra.Command{Use: "list", Short: "list recorded plans", RunE: func(*cobra.Command, []string) error { return nil }}
	leaf.Flags().Int("limit", 20, "maximum plans")
	show := &cobra.Command{Use: "show <plan-id>", Short: "show one plan", RunE: func(*cobra.Command, []string) error { return nil }}
	child.AddCommand(leaf, show)
	root.AddCommand(child)
	return root
}

func TestBuildSchema(t *testing.T) {
	s, err := Build(testTree(), "actions list")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if s.Path != "sonichash actions list" {
		t.Fatalf("unexpected path: %s", s.Path)
	}
	if !s.Runnable {
		t.Fatal("expected leaf to be runnable")
	}
	if len(s.Flags) != 1 || s.Flags[0].Name != "limit" || s.Flags[0].Global {
		t.Fatalf("unexpected flags: %+v", s.Flags)
	}
}

func TestBuildSchemaArgsAndGlobalFlags(t *testing.T) {
	root := testTree()
	s, err := Build(root, "actions show")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(s.Args) != 1 || s.Args[0] != "plan-id" {
		t.Fatalf("unexpected args: %v", s.Args)
	}

	top, err := Build(root, "")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(top.Flags) != 1 || !top.Flags[0].Global {
		t.Fatalf("expected persistent flag marked global: %+v", top.Flags)
	}
	if len(top.Subcommands) != 1 || len(top.Subcommands[0].Subcommands) != 2 {
		t.Fatalf("unexpected tree: %+v", top.Subcommands)
	}
}

func TestBuildSchemaUnknownPath(t *testing.T) {
	if _, err := Build(testTree(), "bridge quote"); err == nil {
		t.Fatal("expected error for unknown command path")
	}
}
