package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zeusync/intellitrack/internal/config"
	"github.com/zeusync/intellitrack/internal/core/space"
	"github.com/zeusync/intellitrack/internal/injector"
	"github.com/zeusync/intellitrack/pkg/sequence"
)

func newInspectCmd(load func() (*config.Config, error)) *cobra.Command {
	var summary bool
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the entity tree the config builds",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			cfg.Server.Enabled = false
			cfg.Persistence.Driver = ""
			app, cleanup, err := injector.InitializeApp(cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			if summary {
				printSummary(cmd.OutOrStdout(), app.Space)
				return nil
			}
			for _, root := range app.Space.Roots() {
				printTree(cmd.OutOrStdout(), root, 0)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "print entity counts per kind instead of the tree")
	return cmd
}

func printTree(w io.Writer, e *space.Entity, depth int) {
	_, _ = fmt.Fprintf(w, "%s%s %s\n", strings.Repeat("  ", depth), e.Name(), e.Kind())
	for _, c := range e.Children() {
		printTree(w, c, depth+1)
	}
}

// printSummary writes one "kind count" line per entity kind, sorted by kind.
func printSummary(w io.Writer, s *space.Space) {
	var all []*space.Entity
	for _, e := range s.Entries() {
		all = append(all, e)
	}

	byKind := sequence.GroupBy(sequence.From(all), (*space.Entity).Kind)
	kinds := sequence.From(slices.Collect(maps.Keys(byKind))).Sort(func(a, b string) bool {
		return a < b
	})
	for kind := range kinds.Seq() {
		_, _ = fmt.Fprintf(w, "%s %d\n", kind, len(byKind[kind]))
	}
}
