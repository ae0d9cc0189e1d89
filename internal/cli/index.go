package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/morozRed/classlens/internal/fileutil"
	"github.com/morozRed/classlens/internal/inheritance"
	"github.com/morozRed/classlens/internal/store"
	"github.com/morozRed/classlens/internal/workers"
)

var errNotIndexed = errors.New("archive has no usage index: run `classlens index` first")

func RunIndex(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	list, err := OptionalBoolFlag(cmd, "list")
	if err != nil {
		return err
	}
	if list {
		return a.listIndexes(cmd)
	}
	drop, err := OptionalBoolFlag(cmd, "drop")
	if err != nil {
		return err
	}
	refresh, err := OptionalBoolFlag(cmd, "refresh")
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	arc, path, err := a.openArchive("")
	if err != nil {
		return err
	}

	if drop {
		release, err := a.claim(ctx, arc.Version(), store.JobIndex)
		if err != nil {
			return err
		}
		defer release()
		if err := a.store.Drop(ctx, arc.Version()); err != nil {
			return err
		}
		a.state.ClearIndexed(path)
		if err := a.saveState(); err != nil {
			return err
		}
		if !a.asJSON {
			fmt.Fprintf(a.out, "index: dropped usages of %s (%s)\n", path, arc.Version())
			return nil
		}
		return fileutil.PrintJSON(a.out, IndexSummary{Path: path, Version: arc.Version()})
	}

	progress := workers.NewProgress()
	reporter := newProgressReporter(a.errOut, "indexing", a.asJSON)
	stop := reporter.Track(progress)
	defer stop()

	idx := a.usageIndex(progress)
	summary := IndexSummary{Path: path, Version: arc.Version()}
	if !refresh {
		indexed, err := idx.Indexed(ctx, arc.Version())
		if err != nil {
			return err
		}
		if indexed {
			summary.Skipped = true
			if a.state.Archives[path].IndexedAt.IsZero() {
				a.state.MarkIndexed(path)
			}
			if err := a.saveState(); err != nil {
				return err
			}
			return PrintIndexSummary(a.out, summary, a.asJSON)
		}
	}

	stats, err := idx.Build(ctx, arc)
	if err != nil {
		return err
	}
	reporter.Done(stats.Classes)

	a.state.MarkIndexed(path)
	if err := a.saveState(); err != nil {
		return err
	}
	summary.Classes = stats.Classes
	summary.DurationMS = stats.Duration.Milliseconds()
	return PrintIndexSummary(a.out, summary, a.asJSON)
}

func (a *app) listIndexes(cmd *cobra.Command) error {
	s, err := a.openStore()
	if err != nil {
		return err
	}
	infos, err := s.Versions(commandContext(cmd))
	if err != nil {
		return err
	}
	if a.asJSON {
		if infos == nil {
			infos = []store.VersionInfo{}
		}
		return fileutil.PrintJSON(a.out, infos)
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tCOMPLETE\tEDGES\tUPDATED")
	for _, info := range infos {
		updated := "-"
		if !info.UpdatedAt.IsZero() {
			updated = info.UpdatedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%t\t%d\t%s\n", info.Version, info.Complete, info.Edges, updated)
	}
	return tw.Flush()
}

func RunUsages(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	all, err := OptionalBoolFlag(cmd, "all")
	if err != nil {
		return err
	}
	if !all && len(args) == 0 {
		return errors.New("usages requires a subject or --all")
	}

	ctx := commandContext(cmd)
	arc, _, err := a.openArchive("")
	if err != nil {
		return err
	}
	idx := a.usageIndex(nil)
	indexed, err := idx.Indexed(ctx, arc.Version())
	if err != nil {
		return err
	}
	if !indexed {
		return errNotIndexed
	}
	if err := a.saveState(); err != nil {
		return err
	}

	if all {
		s, err := a.openStore()
		if err != nil {
			return err
		}
		edges, err := s.Edges(ctx, arc.Version())
		if err != nil {
			return err
		}
		if a.asJSON {
			return fileutil.PrintJSON(a.out, edges)
		}
		for _, edge := range edges {
			fmt.Fprintf(a.out, "%s <- %s\n", edge.Subject, edge.Locator)
		}
		return nil
	}

	found := make([][]string, 0, len(args))
	for _, subject := range args {
		locators, err := idx.Usages(ctx, arc.Version(), ClassName(subject))
		if err != nil {
			return err
		}
		found = append(found, locators)
	}
	return printLines(a.out, fileutil.SortedUnion(found...), a.asJSON)
}

type HierarchyResult struct {
	Class    string   `json:"class"`
	Root     string   `json:"root"`
	Parents  []string `json:"parents"`
	Children []string `json:"children"`
	Subtypes []string `json:"subtypes,omitempty"`
}

func RunInheritance(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	top, err := OptionalIntFlag(cmd, "top", 0)
	if err != nil {
		return err
	}
	withSubtypes, err := OptionalBoolFlag(cmd, "subtypes")
	if err != nil {
		return err
	}
	if top <= 0 && len(args) == 0 {
		return errors.New("inheritance requires a class or --top")
	}

	arc, _, err := a.openArchive("")
	if err != nil {
		return err
	}
	progress := workers.NewProgress()
	reporter := newProgressReporter(a.errOut, "hierarchy", a.asJSON)
	stop := reporter.Track(progress)
	graph, err := inheritance.Build(arc, progress)
	stop()
	if err != nil {
		return err
	}
	reporter.Done(graph.Len())
	if err := a.saveState(); err != nil {
		return err
	}

	if top > 0 {
		ranked := graph.Top(top)
		if a.asJSON {
			return fileutil.PrintJSON(a.out, ranked)
		}
		for _, r := range ranked {
			fmt.Fprintf(a.out, "%.4f %s\n", r.Score, r.Name)
		}
		return nil
	}

	name := ClassName(args[0])
	id, ok := graph.Lookup(name)
	if !ok {
		return fmt.Errorf("class %s not found in archive", name)
	}
	result := HierarchyResult{
		Class:    name,
		Root:     graph.Name(graph.Root(id)),
		Parents:  graph.Parents(id),
		Children: graph.Children(id),
	}
	if withSubtypes {
		result.Subtypes = graph.Subtypes(id)
	}
	if a.asJSON {
		return fileutil.PrintJSON(a.out, result)
	}
	fmt.Fprintf(a.out, "class: %s\n", result.Class)
	fmt.Fprintf(a.out, "root: %s\n", result.Root)
	if len(result.Parents) > 0 {
		fmt.Fprintf(a.out, "parents (%d): %s\n", len(result.Parents), SummarizePaths(result.Parents, 8))
	}
	if len(result.Children) > 0 {
		fmt.Fprintf(a.out, "children (%d): %s\n", len(result.Children), SummarizePaths(result.Children, 8))
	}
	if len(result.Subtypes) > 0 {
		fmt.Fprintf(a.out, "subtypes (%d): %s\n", len(result.Subtypes), SummarizePaths(result.Subtypes, 8))
	}
	return nil
}
