package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/bldr/internal/blocks"
	"github.com/marcus/bldr/internal/call"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles, tasks and call types",
	Long: `List the profiles and tasks defined by the project config, and the
call types registered by the built-in blocks.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyColorFlags(cmd)
		p, err := loadProject(cmd)
		if err != nil {
			return err
		}
		renderList(cmd.OutOrStdout(), p, blocks.Registry())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func renderList(w io.Writer, p *project, calls *call.Registry) {
	s := newBuildStyles()

	fmt.Fprintln(w, s.Title.Render("Profiles"))
	if len(p.profiles) == 0 {
		fmt.Fprintln(w, s.Muted.Render("  (none)"))
	}
	for _, name := range p.profiles.Names() {
		prof := p.profiles[name]
		line := "  " + s.Accent.Render(name)
		if prof.Description != "" {
			line += s.Muted.Render(" - " + prof.Description)
		}
		fmt.Fprintln(w, line)
		if len(prof.Uses.Before) > 0 {
			fmt.Fprintf(w, "    %s %s\n", s.Label.Render("before:"), strings.Join(prof.Uses.Before, ", "))
		}
		fmt.Fprintf(w, "    %s %s\n", s.Label.Render("tasks: "), strings.Join(prof.Tasks, ", "))
		if len(prof.Uses.After) > 0 {
			fmt.Fprintf(w, "    %s %s\n", s.Label.Render("after: "), strings.Join(prof.Uses.After, ", "))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, s.Title.Render("Tasks"))
	for _, name := range p.tasks.Names() {
		def := p.tasks[name]
		line := "  " + s.Accent.Render(name)
		if def.Description != "" {
			line += s.Muted.Render(" - " + def.Description)
		}
		if def.RunOnFailure != nil && *def.RunOnFailure {
			line += s.Warn.Render(" [runOnFailure]")
		}
		fmt.Fprintln(w, line)

		types := make([]string, len(def.Calls))
		for i, c := range def.Calls {
			types[i] = c.Type
			if !calls.Has(c.Type) {
				types[i] += s.Error.Render("?")
			}
		}
		fmt.Fprintf(w, "    %s %s\n", s.Label.Render("calls:"), strings.Join(types, " -> "))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, s.Title.Render("Call types"))
	byBlock := map[string][]string{}
	for _, typ := range calls.Types() {
		owner := calls.Owner(typ)
		byBlock[owner] = append(byBlock[owner], typ)
	}
	owners := make([]string, 0, len(byBlock))
	for owner := range byBlock {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	for _, owner := range owners {
		fmt.Fprintf(w, "  %s %s\n", s.Label.Render(owner+":"), strings.Join(byBlock[owner], ", "))
	}
}
