package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// CommandSchema describes one command for agents driving the CLI.
type CommandSchema struct {
	Path        string          `json:"path"`
	Use         string          `json:"use"`
	Args        []string        `json:"args,omitempty"`
	Short       string          `json:"short"`
	Aliases     []string        `json:"aliases,omitempty"`
	Runnable    bool            `json:"runnable"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

type FlagSchema struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
	Global    bool   `json:"global,omitempty"`
}

func Build(root *cobra.Command, commandPath string) (CommandSchema, error) {
	cmd := root
	for _, p := range strings.Fields(commandPath) {
		next := find(cmd, p)
		if next == nil {
			return CommandSchema{}, fmt.Errorf("command not found: %s", commandPath)
		}
		cmd = next
	}
	return serialize(cmd), nil
}

func find(cmd *cobra.Command, name string) *cobra.Command {
	for _, c := range cmd.Commands() {
		if c.Name() == name || slices.Contains(c.Aliases, name) {
			return c
		}
	}
	return nil
}

func serialize(cmd *cobra.Command) CommandSchema {
	s := CommandSchema{
		Path:     strings.TrimSpace(cmd.CommandPath()),
		Use:      cmd.Use,
		Args:     argNames(cmd.Use),
		Short:    cmd.Short,
		Aliases:  cmd.Aliases,
		Runnable: cmd.Runnable(),
		Flags:    collectFlags(cmd),
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		s.Subcommands = append(s.Subcommands, serialize(sub))
	}
	return s
}

// argNames returns the placeholders after the command name in a Use line,
// e.g. "chat <persona-id> <message...>" yields [persona-id message...].
func argNames(use string) []string {
	fields := strings.Fields(use)
	if len(fields) <= 1 {
		return nil
	}
	out := make([]string, 0, len(fields)-1)
	for _, f := range fields[1:] {
		out = append(out, strings.Trim(f, "<>[]"))
	}
	return out
}

// collectFlags lists the flags declared on cmd. Persistent flags show up on
// the command that declares them and are marked global.
func collectFlags(cmd *cobra.Command) []FlagSchema {
	items := []FlagSchema{}
	persistent := cmd.PersistentFlags()
	cmd.NonInheritedFlags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "help" {
			return
		}
		items = append(items, FlagSchema{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Type:      f.Value.Type(),
			Usage:     f.Usage,
			Default:   f.DefValue,
			Global:    persistent.Lookup(f.Name) != nil,
		})
	})
	return items
}
