package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/morozRed/classlens/internal/archive"
	"github.com/morozRed/classlens/internal/fileutil"
	"github.com/morozRed/classlens/internal/search"
)

func RunOpen(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	before := a.state.ActiveVersion()
	arc, path, err := a.openArchive(args[0])
	if err != nil {
		return err
	}
	if err := search.Write(a.cfg.Paths.State, search.Build(arc)); err != nil {
		return err
	}
	if err := a.saveState(); err != nil {
		return err
	}

	summary := a.archiveSummary(arc, path)
	summary.Changed = before != arc.Version()
	return PrintArchiveSummary(a.out, summary, a.asJSON)
}

func RunInfo(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	arc, path, err := a.openArchive("")
	if err != nil {
		return err
	}
	if err := a.saveState(); err != nil {
		return err
	}
	return PrintArchiveSummary(a.out, a.archiveSummary(arc, path), a.asJSON)
}

func (a *app) archiveSummary(arc *archive.Archive, path string) ArchiveSummary {
	known := a.state.Archives[path]
	return ArchiveSummary{
		Path:      path,
		Version:   arc.Version(),
		Entries:   arc.Len(),
		Classes:   len(arc.ClassNames()),
		Outer:     len(arc.OuterClassNames()),
		Indexed:   !known.IndexedAt.IsZero(),
		IndexedAt: known.IndexedAt,
		OpenTabs:  a.tabs.Keys(),
	}
}

func RunClasses(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	outerOnly, err := OptionalBoolFlag(cmd, "outer")
	if err != nil {
		return err
	}
	prefix, err := OptionalStringFlag(cmd, "prefix")
	if err != nil {
		return err
	}
	if prefix != "" {
		prefix = ClassName(prefix)
	}

	arc, _, err := a.openArchive("")
	if err != nil {
		return err
	}
	entries := arc.ClassNames()
	if outerOnly {
		entries = arc.OuterClassNames()
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := archive.ClassName(entry)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	if err := a.saveState(); err != nil {
		return err
	}
	return printLines(a.out, names, a.asJSON)
}

func RunSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	limit, err := OptionalIntFlag(cmd, "limit", search.DefaultLimit)
	if err != nil {
		return err
	}
	arc, _, err := a.openArchive("")
	if err != nil {
		return err
	}

	index, err := search.Load(a.cfg.Paths.State, arc.Version())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(a.errOut, "warning: %v; rebuilding search index\n", err)
		}
		index = search.Build(arc)
		if err := search.Write(a.cfg.Paths.State, index); err != nil {
			a.logger.Warn("search index not saved", "error", err)
		}
	}
	if err := a.saveState(); err != nil {
		return err
	}

	results := search.Search(index, strings.Join(args, " "), limit)
	if a.asJSON {
		if results == nil {
			results = []search.Result{}
		}
		return fileutil.PrintJSON(a.out, results)
	}
	for _, result := range results {
		fmt.Fprintf(a.out, "%8.3f %s\n", result.Score, result.ID)
	}
	return nil
}
